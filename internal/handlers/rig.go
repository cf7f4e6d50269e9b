package handlers

import (
	"errors"
	"net/http"
	"time"

	"espresso_rig/internal/models"
	"espresso_rig/internal/service"

	"github.com/gin-gonic/gin"
)

// Common response/status constants to avoid magic strings and typos.
const (
	statusOK           = "ok"
	statusDegraded     = "degraded"
	statusOverrideSent = "override_sent"

	errOverride        = "failed to send override"
	errInvalidBodyPref = "invalid body: "
)

// Centralized error logging and response.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...interface{}) {
	if h.log != nil && err != nil {
		fields := append([]interface{}{"err", err}, kv...)
		h.log.Errorw(logKey, fields...)
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}

// StateView is the published state plus what the display needs to render its status line.
type StateView struct {
	models.CombinedState
	StatusLine string `json:"status_line"`
	// OverrideState is the relay override as 1, 0 or off, whatever spelling the controller used.
	OverrideState string `json:"override_state"`
	Source        string `json:"source"`
}

func (h *Handler) stateView() StateView {
	st := h.services.Latest()
	return StateView{
		CombinedState: st,
		StatusLine:    st.StatusLine(),
		OverrideState: st.Device.OverrideState(),
		Source:        h.services.SourceName(),
	}
}

// OverrideRequest is the payload of POST /api/v1/override.
type OverrideRequest struct {
	// Override value. Allowed: 1 (forced on), 0 (forced off), off (automatic)
	Value string `json:"value" binding:"required" example:"off"`
}

// @Summary      Health check
// @Description  degraded while the controller read fails
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	st := h.services.Latest()
	status := statusOK
	if st.Device.LastError != "" {
		status = statusDegraded
	}
	resp := gin.H{
		"status": status,
		"source": h.services.SourceName(),
	}
	if !st.Timestamp.IsZero() {
		resp["last_update"] = st.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	c.JSON(http.StatusOK, resp)
}

// @Summary      Latest rig state
// @Tags         state
// @Produce      json
// @Success      200  {object}  StateView
// @Router       /api/v1/state [get]
func (h *Handler) getState(c *gin.Context) {
	c.JSON(http.StatusOK, h.stateView())
}

// @Summary      Set relay override
// @Description  Relayed to the controller without confirmation
// @Tags         control
// @Accept       json
// @Produce      json
// @Param        body  body      OverrideRequest  true  "Override payload"
// @Success      200   {object}  map[string]string
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      429   {object}  map[string]string
// @Router       /api/v1/override [post]
// @Security     BearerAuth
func (h *Handler) setOverride(c *gin.Context) {
	var req OverrideRequest
	if ok := h.bindJSONOrBadRequest(c, &req); !ok {
		return
	}

	value, err := h.services.SetOverride(c.Request.Context(), req.Value)
	if err != nil {
		if errors.Is(err, service.ErrInvalidOverride) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logAndJSONError(c, http.StatusInternalServerError, errOverride, "override_failed", err, "value", req.Value)
		return
	}

	operator, _ := c.Get(operatorCtxKey)
	if h.log != nil {
		h.log.Infow("override_requested", "operator", operator, "value", value)
	}
	c.JSON(http.StatusOK, gin.H{"status": statusOverrideSent, "value": value})
}
