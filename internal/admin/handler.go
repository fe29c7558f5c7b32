package admin

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/mkmk6794/timepick/internal/domain"
	"github.com/mkmk6794/timepick/internal/schedule"
)

// AdminStore defines the store operations needed by the admin handler.
type AdminStore interface {
	Export(ctx context.Context) (*domain.Snapshot, error)
	ReplaceAll(ctx context.Context, snap *domain.Snapshot) error
}

// Overviewer lists every event with its response statistics.
type Overviewer interface {
	Overview(ctx context.Context) ([]schedule.EventOverview, error)
}

type Error struct {
	Message string `json:"message"`
}

type ReplaceResult struct {
	Events    int `json:"events"`
	Responses int `json:"responses"`
}

// ServerInterface lists the admin operations.
type ServerInterface interface {
	GetAdminEvents(c *gin.Context)
	GetAdminSnapshot(c *gin.Context)
	PutAdminSnapshot(c *gin.Context)
}

func RegisterHandlers(router gin.IRouter, si ServerInterface) {
	router.GET("/admin/events", si.GetAdminEvents)
	router.GET("/admin/snapshot", si.GetAdminSnapshot)
	router.PUT("/admin/snapshot", si.PutAdminSnapshot)
}

type Handler struct {
	store    AdminStore
	overview Overviewer
}

func NewHandler(s AdminStore, o Overviewer) *Handler {
	return &Handler{store: s, overview: o}
}

var _ ServerInterface = (*Handler)(nil)

func (h *Handler) GetAdminEvents(c *gin.Context) {
	rows, err := h.overview.Overview(c.Request.Context())
	if err != nil {
		log.WithError(err).Error("failed to build event overview")
		c.JSON(http.StatusInternalServerError, Error{Message: "internal error"})
		return
	}

	c.JSON(http.StatusOK, rows)
}

func (h *Handler) GetAdminSnapshot(c *gin.Context) {
	snap, err := h.store.Export(c.Request.Context())
	if err != nil {
		log.WithError(err).Error("failed to export snapshot")
		c.JSON(http.StatusInternalServerError, Error{Message: "internal error"})
		return
	}

	c.JSON(http.StatusOK, snap)
}

// PutAdminSnapshot replaces the whole store. Events and responses not in
// the body are gone afterwards.
func (h *Handler) PutAdminSnapshot(c *gin.Context) {
	var snap domain.Snapshot
	if err := c.ShouldBindJSON(&snap); err != nil {
		c.JSON(http.StatusBadRequest, Error{Message: "invalid request body"})
		return
	}

	if err := h.store.ReplaceAll(c.Request.Context(), &snap); err != nil {
		log.WithError(err).Error("failed to replace snapshot")
		c.JSON(http.StatusBadRequest, Error{Message: err.Error()})
		return
	}

	log.WithFields(log.Fields{
		"events":    len(snap.Events),
		"responses": len(snap.Responses),
	}).Warn("store replaced from admin snapshot")
	c.JSON(http.StatusOK, ReplaceResult{Events: len(snap.Events), Responses: len(snap.Responses)})
}
