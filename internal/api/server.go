package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oapi-codegen/runtime"
	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/mkmk6794/timepick/internal/availability"
	"github.com/mkmk6794/timepick/internal/domain"
	"github.com/mkmk6794/timepick/internal/message"
	"github.com/mkmk6794/timepick/internal/schedule"
)

type Error struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type CreateEventRequest schedule.NewEvent

type ParticipantLink struct {
	ID            string             `json:"id"`
	Name          string             `json:"name"`
	Email         string             `json:"email"`
	ResponseToken string             `json:"responseToken"`
	ResponseLink  string             `json:"responseLink"`
	Invitation    message.Invitation `json:"invitation"`
}

type CreatedEvent struct {
	ID             string            `json:"id"`
	OrganizerToken string            `json:"organizerToken"`
	DashboardLink  string            `json:"dashboardLink"`
	Participants   []ParticipantLink `json:"participants"`
}

type CreateEventResponse struct {
	Success bool         `json:"success"`
	Event   CreatedEvent `json:"event"`
}

type OrganizerEvent struct {
	ID                  string                           `json:"id"`
	Title               string                           `json:"title"`
	Description         string                           `json:"description"`
	OrganizerName       string                           `json:"organizerName"`
	OrganizerEmail      string                           `json:"organizerEmail"`
	ProposedDates       []domain.ProposedDate            `json:"proposedDates"`
	Participants        []availability.ParticipantStatus `json:"participants"`
	Status              domain.EventStatus               `json:"status"`
	ConfirmedDate       *domain.ProposedDate             `json:"confirmedDate"`
	ConfirmationMessage string                           `json:"confirmationMessage,omitempty"`
	CreatedAt           time.Time                        `json:"createdAt"`
	ConfirmedAt         *time.Time                       `json:"confirmedAt,omitempty"`
	AvailabilityByDate  []availability.DateAvailability  `json:"availabilityByDate"`
	RankedDates         []availability.DateAvailability  `json:"rankedDates"`
	TotalResponses      int                              `json:"totalResponses"`
	ResponseRate        int                              `json:"responseRate"`
}

type OrganizerEventResponse struct {
	Success bool           `json:"success"`
	Event   OrganizerEvent `json:"event"`
}

type ParticipantInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type ParticipantEventResponse struct {
	Success          bool                 `json:"success"`
	Event            schedule.PublicEvent `json:"event"`
	Participant      ParticipantInfo      `json:"participant"`
	ExistingResponse []string             `json:"existingResponse"`
}

type SubmitResponseRequest struct {
	ResponseToken string   `json:"responseToken"`
	SelectedDates []string `json:"selectedDates"`
}

type SubmitResponseResponse struct {
	Success     bool      `json:"success"`
	Message     string    `json:"message"`
	ResponseID  string    `json:"responseId"`
	SubmittedAt time.Time `json:"submittedAt"`
}

type ConfirmEventRequest struct {
	OrganizerToken  string  `json:"organizerToken"`
	ConfirmedDateID string  `json:"confirmedDateId"`
	Message         *string `json:"message,omitempty"`
}

type ConfirmEventResponse struct {
	Success  bool                 `json:"success"`
	Event    *domain.Event        `json:"event"`
	Messages message.Confirmation `json:"messages"`
}

// ServerInterface lists one method per operation of openapi.yaml.
type ServerInterface interface {
	GetHealth(c *gin.Context)
	GetOpenAPISpec(c *gin.Context)
	CreateEvent(c *gin.Context)
	GetOrganizerEvent(c *gin.Context, token openapi_types.UUID)
	GetParticipantEvent(c *gin.Context, token openapi_types.UUID)
	GetParticipantCalendar(c *gin.Context, token openapi_types.UUID)
	SubmitResponse(c *gin.Context)
	ConfirmEvent(c *gin.Context, eventID openapi_types.UUID)
}

// ServerInterfaceWrapper binds path parameters before calling the handler.
type ServerInterfaceWrapper struct {
	Handler      ServerInterface
	ErrorHandler func(*gin.Context, error, int)
}

func (w *ServerInterfaceWrapper) bindUUID(c *gin.Context, name string) (openapi_types.UUID, bool) {
	var id openapi_types.UUID
	err := runtime.BindStyledParameterWithOptions("simple", name, c.Param(name), &id, runtime.BindStyledParameterOptions{
		ParamLocation: runtime.ParamLocationPath,
		Explode:       false,
		Required:      true,
	})
	if err != nil {
		w.ErrorHandler(c, fmt.Errorf("invalid format for parameter %s: %w", name, err), http.StatusBadRequest)
		return id, false
	}
	return id, true
}

func (w *ServerInterfaceWrapper) withToken(fn func(*gin.Context, openapi_types.UUID)) gin.HandlerFunc {
	return func(c *gin.Context) {
		if id, ok := w.bindUUID(c, "token"); ok {
			fn(c, id)
		}
	}
}

func (w *ServerInterfaceWrapper) ConfirmEvent(c *gin.Context) {
	if id, ok := w.bindUUID(c, "eventId"); ok {
		w.Handler.ConfirmEvent(c, id)
	}
}

func defaultErrorHandler(c *gin.Context, err error, status int) {
	c.JSON(status, Error{Message: err.Error()})
}

// RegisterHandlers mounts every operation on router.
func RegisterHandlers(router gin.IRouter, si ServerInterface) {
	w := &ServerInterfaceWrapper{Handler: si, ErrorHandler: defaultErrorHandler}

	router.GET("/health", si.GetHealth)
	router.GET("/openapi.yaml", si.GetOpenAPISpec)
	router.POST("/api/events", si.CreateEvent)
	router.GET("/api/events/organizer/:token", w.withToken(si.GetOrganizerEvent))
	router.GET("/api/events/respond/:token", w.withToken(si.GetParticipantEvent))
	router.GET("/api/events/respond/:token/calendar.ics", w.withToken(si.GetParticipantCalendar))
	router.POST("/api/responses", si.SubmitResponse)
	router.POST("/api/events/:eventId/confirm", w.ConfirmEvent)
}
