package api

import (
	"alcyxob/fitness-sync/internal/domain"
	"alcyxob/fitness-sync/internal/events"
	"alcyxob/fitness-sync/internal/syncer"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Syncer is the slice of syncer.Coordinator the control API drives.
type Syncer interface {
	KickAll()
	Kick(family domain.Family) error
	PullAll(ctx context.Context) error
	Pull(ctx context.Context, family domain.Family) error
	OnLaunch(ctx context.Context) error
	OnForeground(ctx context.Context) error
	Status(ctx context.Context) ([]syncer.Status, error)
	ResetPullState(ctx context.Context, family domain.Family) error
	Suspend(family domain.Family) error
	Resume(ctx context.Context, family domain.Family) error
}

var _ Syncer = (*syncer.Coordinator)(nil)

// SyncHandler exposes lifecycle hooks, manual triggers and sync state.
type SyncHandler struct {
	sync Syncer
	bus  *events.Bus
}

func NewSyncHandler(sync Syncer, bus *events.Bus) *SyncHandler {
	return &SyncHandler{sync: sync, bus: bus}
}

// familyQuery resolves ?family=; empty means all families.
func familyQuery(c *gin.Context) (domain.Family, bool) {
	raw := c.Query("family")
	if raw == "" {
		return "", true
	}
	family, err := domain.ParseFamily(raw)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, err.Error())
		return "", false
	}
	return family, true
}

func familyParam(c *gin.Context) (domain.Family, bool) {
	family, err := domain.ParseFamily(c.Param("family"))
	if err != nil {
		abortWithError(c, http.StatusNotFound, err.Error())
		return "", false
	}
	return family, true
}

// pullErrorResponse reports a failed pull without turning it into a request
// failure; pulls are retried on the next trigger.
func pullErrorResponse(c *gin.Context, err error) {
	resp := gin.H{"status": "ok"}
	if err != nil {
		resp["status"] = "partial"
		resp["error"] = err.Error()
	}
	c.JSON(http.StatusAccepted, resp)
}

// Launch is called once by the app shell when it starts.
func (h *SyncHandler) Launch(c *gin.Context) {
	pullErrorResponse(c, h.sync.OnLaunch(c.Request.Context()))
}

// Foreground is called when the app returns to the foreground.
func (h *SyncHandler) Foreground(c *gin.Context) {
	pullErrorResponse(c, h.sync.OnForeground(c.Request.Context()))
}

func (h *SyncHandler) Kick(c *gin.Context) {
	family, ok := familyQuery(c)
	if !ok {
		return
	}
	if family == "" {
		h.sync.KickAll()
	} else if err := h.sync.Kick(family); err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "scheduled"})
}

func (h *SyncHandler) Pull(c *gin.Context) {
	family, ok := familyQuery(c)
	if !ok {
		return
	}
	if family == "" {
		pullErrorResponse(c, h.sync.PullAll(c.Request.Context()))
		return
	}
	pullErrorResponse(c, h.sync.Pull(c.Request.Context(), family))
}

func (h *SyncHandler) Status(c *gin.Context) {
	statuses, err := h.sync.Status(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"families": statuses})
}

func (h *SyncHandler) Reset(c *gin.Context) {
	family, ok := familyQuery(c)
	if !ok {
		return
	}
	if err := h.sync.ResetPullState(c.Request.Context(), family); err != nil {
		respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *SyncHandler) Suspend(c *gin.Context) {
	family, ok := familyParam(c)
	if !ok {
		return
	}
	if err := h.sync.Suspend(family); err != nil {
		respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *SyncHandler) Resume(c *gin.Context) {
	family, ok := familyParam(c)
	if !ok {
		return
	}
	if err := h.sync.Resume(c.Request.Context(), family); err != nil {
		respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

const sseKeepAlive = 15 * time.Second

// Events streams state-changed signals as server-sent events until the client goes away.
func (h *SyncHandler) Events(c *gin.Context) {
	ch, cancel := h.bus.Subscribe(0)
	defer cancel()

	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	ctx := c.Request.Context()
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(string(ev.Kind), ev)
			return true
		case <-keepAlive.C:
			c.SSEvent("ping", gin.H{"at": time.Now().UTC()})
			return true
		case <-ctx.Done():
			return false
		}
	})
}
