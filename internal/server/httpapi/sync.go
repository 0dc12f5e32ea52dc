package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dmitrijs2005/datawallet/internal/common"
	"github.com/dmitrijs2005/datawallet/internal/server/services"
)

type externalEvent struct {
	ID             string          `json:"id"`
	Index          int64           `json:"index"`
	CreatedAt      time.Time       `json:"createdAt"`
	Type           string          `json:"type"`
	Payload        json.RawMessage `json:"payload"`
	SyncErrorCount int             `json:"syncErrorCount"`
}

type modification struct {
	Index             int64     `json:"index"`
	ObjectID          string    `json:"objectIdentifier"`
	Collection        string    `json:"collection"`
	Type              string    `json:"type"`
	Payload           []byte    `json:"encryptedPayload,omitempty"`
	DatawalletVersion int       `json:"datawalletVersion"`
	CreatedByDevice   string    `json:"createdByDevice"`
	CreatedAt         time.Time `json:"createdAt"`
}

type pushItem struct {
	IdempotencyKey    string `json:"idempotencyKey"`
	ObjectID          string `json:"objectIdentifier"`
	Collection        string `json:"collection"`
	Type              string `json:"type"`
	Payload           []byte `json:"encryptedPayload,omitempty"`
	DatawalletVersion int    `json:"datawalletVersion"`
}

type pushResult struct {
	IdempotencyKey string `json:"idempotencyKey"`
	Index          int64  `json:"index,omitempty"`
	Error          string `json:"error,omitempty"`
}

type syncErrorItem struct {
	ExternalEventID string `json:"externalEventId"`
	ErrorCode       string `json:"errorCode"`
}

type itemsRequest[T any] struct {
	Items []T `json:"items"`
}

type resultResponse[T any] struct {
	Result []T `json:"result"`
}

const maxPushItems = 1000

// queryInt64 reads an optional non-negative integer query parameter.
func queryInt64(c *gin.Context, name string) (int64, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return v, true
}

func (h *handler) listEvents(c *gin.Context) {
	cursor, ok := queryInt64(c, "cursor")
	if !ok {
		return
	}
	pageSize, ok := queryInt64(c, "pageSize")
	if !ok {
		return
	}

	events, err := h.opts.Events.List(c.Request.Context(), c.GetString(ctxIdentityID), cursor, int(pageSize))
	if err != nil {
		abortWithError(c, err)
		return
	}
	out := make([]externalEvent, 0, len(events))
	for _, e := range events {
		out = append(out, externalEvent{
			ID:             e.ID,
			Index:          e.Index,
			CreatedAt:      e.CreatedAt,
			Type:           e.Type,
			Payload:        json.RawMessage(e.Payload),
			SyncErrorCount: e.SyncErrorCount,
		})
	}
	c.JSON(http.StatusOK, resultResponse[externalEvent]{Result: out})
}

func (h *handler) reportSyncErrors(c *gin.Context) {
	var req itemsRequest[syncErrorItem]
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "malformed request body")
		return
	}
	items := make([]services.SyncError, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, services.SyncError{ExternalEventID: it.ExternalEventID, ErrorCode: it.ErrorCode})
	}
	if err := h.opts.Events.ReportSyncErrors(c.Request.Context(), c.GetString(ctxIdentityID), items); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) listModifications(c *gin.Context) {
	localIndex, ok := queryInt64(c, "localIndex")
	if !ok {
		return
	}
	pageSize, ok := queryInt64(c, "pageSize")
	if !ok {
		return
	}

	mods, err := h.opts.Datawallet.List(c.Request.Context(), c.GetString(ctxIdentityID), localIndex, int(pageSize))
	if err != nil {
		abortWithError(c, err)
		return
	}
	out := make([]modification, 0, len(mods))
	for _, m := range mods {
		out = append(out, modification{
			Index:             m.Index,
			ObjectID:          m.ObjectID,
			Collection:        m.Collection,
			Type:              m.Type,
			Payload:           m.Payload,
			DatawalletVersion: m.DatawalletVersion,
			CreatedByDevice:   m.CreatedByDevice,
			CreatedAt:         m.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, resultResponse[modification]{Result: out})
}

func (h *handler) pushModifications(c *gin.Context) {
	var req itemsRequest[pushItem]
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "malformed request body")
		return
	}
	if len(req.Items) > maxPushItems {
		badRequest(c, "too many items")
		return
	}
	items := make([]services.PushItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, services.PushItem{
			IdempotencyKey:    it.IdempotencyKey,
			ObjectID:          it.ObjectID,
			Collection:        it.Collection,
			Type:              it.Type,
			Payload:           it.Payload,
			DatawalletVersion: it.DatawalletVersion,
		})
	}

	results, err := h.opts.Datawallet.Push(c.Request.Context(), c.GetString(ctxIdentityID),
		c.GetHeader(common.DeviceHeader), items)
	if err != nil {
		abortWithError(c, err)
		return
	}
	out := make([]pushResult, 0, len(results))
	for _, r := range results {
		out = append(out, pushResult{IdempotencyKey: r.IdempotencyKey, Index: r.Index, Error: r.Error})
	}
	c.JSON(http.StatusOK, resultResponse[pushResult]{Result: out})
}
