package backbone

import "github.com/dmitrijs2005/datawallet/internal/client/models"

type externalEventsResponse struct {
	Result []models.ExternalEvent `json:"result"`
}

// PushItem is one datawallet modification uploaded to the backbone. The
// backbone upserts by IdempotencyKey, so uploading an item twice is harmless.
type PushItem struct {
	IdempotencyKey    string                  `json:"idempotencyKey"`
	ObjectID          string                  `json:"objectIdentifier"`
	Collection        models.Collection       `json:"collection"`
	Type              models.ModificationType `json:"type"`
	Payload           []byte                  `json:"encryptedPayload,omitempty"`
	DatawalletVersion int                     `json:"datawalletVersion"`
}

// PushResult is the per-item outcome of a push. Index is the remote
// sequence assigned to an accepted item; Error is set for rejected ones.
type PushResult struct {
	IdempotencyKey string `json:"idempotencyKey"`
	Index          int64  `json:"index,omitempty"`
	Error          string `json:"error,omitempty"`
}

type pushRequest struct {
	Items []PushItem `json:"items"`
}

type pushResponse struct {
	Result []PushResult `json:"result"`
}

type modificationsResponse struct {
	Result []models.RemoteModification `json:"result"`
}

// SyncErrorItem reports that processing an external event failed locally.
type SyncErrorItem struct {
	ExternalEventID string `json:"externalEventId"`
	ErrorCode       string `json:"errorCode"`
}

type syncErrorsRequest struct {
	Items []SyncErrorItem `json:"items"`
}

type saltResponse struct {
	Salt []byte `json:"salt"`
}

// CreateIdentityRequest registers a new identity. Verifier proves knowledge
// of the master key; the passphrase itself never leaves the device.
type CreateIdentityRequest struct {
	Username string `json:"username"`
	Salt     []byte `json:"salt"`
	Verifier []byte `json:"verifier"`
}

// CreateIdentityResponse carries the address assigned to the new identity.
type CreateIdentityResponse struct {
	Address string `json:"address"`
}

type fileUploadRequest struct {
	Size int64 `json:"size"`
}

type fileUploadResponse struct {
	UploadURL string `json:"uploadUrl"`
}
