package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	openapi_types "github.com/oapi-codegen/runtime/types"
	log "github.com/sirupsen/logrus"

	"github.com/mkmk6794/timepick/internal/domain"
	"github.com/mkmk6794/timepick/internal/message"
	"github.com/mkmk6794/timepick/internal/schedule"
)

// Scheduler is the part of schedule.Service the public API calls.
type Scheduler interface {
	CreateEvent(ctx context.Context, in schedule.NewEvent) (*domain.Event, error)
	GetEventForOrganizer(ctx context.Context, organizerToken string) (*schedule.OrganizerView, error)
	GetEventForParticipant(ctx context.Context, responseToken string) (*schedule.ParticipantView, error)
	SubmitResponse(ctx context.Context, responseToken string, selected []string) (*domain.Response, error)
	ConfirmEvent(ctx context.Context, eventID, organizerToken, dateID, msg string) (*schedule.Confirmation, error)
	ParticipantCalendar(ctx context.Context, responseToken string) ([]byte, error)
}

// Handler implements ServerInterface.
type Handler struct {
	svc Scheduler
	// publicURL is the origin of the web client. Empty means the origin of
	// the incoming request.
	publicURL string
}

func NewHandler(svc Scheduler, publicURL string) *Handler {
	return &Handler{svc: svc, publicURL: strings.TrimRight(publicURL, "/")}
}

var _ ServerInterface = (*Handler)(nil)

func (h *Handler) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok", Timestamp: time.Now().UTC()})
}

func (h *Handler) GetOpenAPISpec(c *gin.Context) {
	c.Data(http.StatusOK, "application/yaml", specYAML)
}

func (h *Handler) CreateEvent(c *gin.Context) {
	var body CreateEventRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, Error{Message: "invalid request body"})
		return
	}

	ev, err := h.svc.CreateEvent(c.Request.Context(), schedule.NewEvent(body))
	if err != nil {
		writeError(c, log.WithField("op", "create_event"), err)
		return
	}

	base := h.baseURL(c)
	out := CreatedEvent{
		ID:             ev.ID,
		OrganizerToken: ev.OrganizerToken,
		DashboardLink:  base + "/dashboard/" + ev.OrganizerToken,
		Participants:   make([]ParticipantLink, 0, len(ev.Participants)),
	}
	for _, p := range ev.Participants {
		link := base + "/respond/" + p.ResponseToken
		out.Participants = append(out.Participants, ParticipantLink{
			ID:            p.ID,
			Name:          p.Name,
			Email:         p.Email,
			ResponseToken: p.ResponseToken,
			ResponseLink:  link,
			Invitation:    message.InvitationFor(ev, p, link),
		})
	}

	log.WithFields(log.Fields{
		"event_id":     ev.ID,
		"participants": len(ev.Participants),
		"dates":        len(ev.ProposedDates),
	}).Info("event created")
	c.JSON(http.StatusCreated, CreateEventResponse{Success: true, Event: out})
}

func (h *Handler) GetOrganizerEvent(c *gin.Context, token openapi_types.UUID) {
	logger := log.WithField("op", "get_organizer_event")

	view, err := h.svc.GetEventForOrganizer(c.Request.Context(), token.String())
	if err != nil {
		writeError(c, logger, err)
		return
	}

	ev := view.Event
	c.JSON(http.StatusOK, OrganizerEventResponse{
		Success: true,
		Event: OrganizerEvent{
			ID:                  ev.ID,
			Title:               ev.Title,
			Description:         ev.Description,
			OrganizerName:       ev.OrganizerName,
			OrganizerEmail:      ev.OrganizerEmail,
			ProposedDates:       ev.ProposedDates,
			Participants:        view.Summary.Participants,
			Status:              ev.Status,
			ConfirmedDate:       ev.ConfirmedDate,
			ConfirmationMessage: ev.ConfirmationMessage,
			CreatedAt:           ev.CreatedAt,
			ConfirmedAt:         ev.ConfirmedAt,
			AvailabilityByDate:  view.Summary.ByDate,
			RankedDates:         view.Ranked,
			TotalResponses:      view.Summary.TotalResponses,
			ResponseRate:        view.Summary.ResponseRate,
		},
	})
}

func (h *Handler) GetParticipantEvent(c *gin.Context, token openapi_types.UUID) {
	logger := log.WithField("op", "get_participant_event")

	view, err := h.svc.GetEventForParticipant(c.Request.Context(), token.String())
	if err != nil {
		writeError(c, logger, err)
		return
	}

	c.JSON(http.StatusOK, ParticipantEventResponse{
		Success: true,
		Event:   view.Event,
		Participant: ParticipantInfo{
			ID:    view.Participant.ID,
			Name:  view.Participant.Name,
			Email: view.Participant.Email,
		},
		ExistingResponse: view.Selection,
	})
}

func (h *Handler) GetParticipantCalendar(c *gin.Context, token openapi_types.UUID) {
	logger := log.WithField("op", "get_participant_calendar")

	data, err := h.svc.ParticipantCalendar(c.Request.Context(), token.String())
	if err != nil {
		writeError(c, logger, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="timepick.ics"`)
	c.Data(http.StatusOK, "text/calendar; charset=utf-8", data)
}

func (h *Handler) SubmitResponse(c *gin.Context) {
	var body SubmitResponseRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, Error{Message: "invalid request body"})
		return
	}

	r, err := h.svc.SubmitResponse(c.Request.Context(), body.ResponseToken, body.SelectedDates)
	if err != nil {
		writeError(c, log.WithField("op", "submit_response"), err)
		return
	}

	log.WithFields(log.Fields{
		"event_id":       r.EventID,
		"participant_id": r.ParticipantID,
		"selected":       len(r.SelectedDates),
	}).Info("response submitted")
	c.JSON(http.StatusOK, SubmitResponseResponse{
		Success:     true,
		Message:     "Response submitted successfully",
		ResponseID:  r.ID,
		SubmittedAt: r.SubmittedAt,
	})
}

func (h *Handler) ConfirmEvent(c *gin.Context, eventID openapi_types.UUID) {
	idStr := eventID.String()
	logger := log.WithField("event_id", idStr)

	var body ConfirmEventRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, Error{Message: "invalid request body"})
		return
	}

	var msg string
	if body.Message != nil {
		msg = *body.Message
	}

	res, err := h.svc.ConfirmEvent(c.Request.Context(), idStr, body.OrganizerToken, body.ConfirmedDateID, msg)
	if err != nil {
		writeError(c, logger, err)
		return
	}

	logger.WithField("date_id", res.Event.ConfirmedDate.ID).Info("event confirmed")
	c.JSON(http.StatusOK, ConfirmEventResponse{
		Success:  true,
		Event:    res.Event,
		Messages: res.Messages,
	})
}

func (h *Handler) baseURL(c *gin.Context) string {
	if h.publicURL != "" {
		return h.publicURL
	}
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + c.Request.Host
}

// writeError maps core errors to HTTP statuses. Unknown events and wrong
// organizer tokens share one answer so a token guess reveals nothing.
func writeError(c *gin.Context, logger *log.Entry, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrEmptySelection),
		errors.Is(err, domain.ErrInvalidDate):
		logger.WithError(err).Debug("request rejected")
		c.JSON(http.StatusBadRequest, Error{Message: err.Error()})
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrUnauthorized):
		c.JSON(http.StatusNotFound, Error{Message: "event not found"})
	case errors.Is(err, domain.ErrAlreadyConfirmed), errors.Is(err, domain.ErrNotConfirmed):
		c.JSON(http.StatusConflict, Error{Message: err.Error()})
	default:
		logger.WithError(err).Error("request failed")
		c.JSON(http.StatusInternalServerError, Error{Message: "internal error"})
	}
}
