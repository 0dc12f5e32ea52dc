package models

import (
	"encoding/json"
	"time"
)

type RequestStatus string

const (
	RequestDraft                  RequestStatus = "Draft"
	RequestOpen                   RequestStatus = "Open"
	RequestDecisionRequired       RequestStatus = "DecisionRequired"
	RequestManualDecisionRequired RequestStatus = "ManualDecisionRequired"
	RequestDecided                RequestStatus = "Decided"
	RequestCompleted              RequestStatus = "Completed"
	RequestExpired                RequestStatus = "Expired"
)

var requestTransitions = map[RequestStatus][]RequestStatus{
	RequestDraft:                  {RequestOpen, RequestExpired},
	RequestOpen:                   {RequestDecisionRequired, RequestManualDecisionRequired, RequestDecided, RequestCompleted, RequestExpired},
	RequestDecisionRequired:       {RequestManualDecisionRequired, RequestDecided, RequestExpired},
	RequestManualDecisionRequired: {RequestDecided, RequestExpired},
	RequestDecided:                {RequestCompleted},
}

func (s RequestStatus) CanTransition(to RequestStatus) bool {
	for _, next := range requestTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

type RequestSource struct {
	Type      string `json:"type"`
	Reference string `json:"reference"`
}

// LocalRequest is a request sent to or received from a peer, together with
// its response once decided.
type LocalRequest struct {
	Base
	IsOwn       bool            `json:"isOwn"`
	Peer        string          `json:"peer"`
	Status      RequestStatus   `json:"status"`
	Content     json.RawMessage `json:"content"`
	Response    json.RawMessage `json:"response,omitempty"`
	Source      *RequestSource  `json:"source,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	WasViewedAt *time.Time      `json:"wasViewedAt,omitempty"`
}

func (r *LocalRequest) Collection() Collection { return CollectionRequests }
