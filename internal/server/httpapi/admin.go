package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
)

type injectEventRequest struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// injectEvent appends an external event to a user's stream. It stands in
// for the subsystems that raise events on a full backbone.
func (h *handler) injectEvent(c *gin.Context) {
	var req injectEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "malformed request body")
		return
	}
	ev, err := h.opts.Events.Inject(c.Request.Context(), c.Param("username"), req.Type, req.Payload)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, externalEvent{
		ID:        ev.ID,
		Index:     ev.Index,
		CreatedAt: ev.CreatedAt,
		Type:      ev.Type,
		Payload:   json.RawMessage(ev.Payload),
	})
}
