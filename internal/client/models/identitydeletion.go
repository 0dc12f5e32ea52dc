package models

import "time"

type IdentityDeletionStatus string

const (
	DeletionWaitingForApproval IdentityDeletionStatus = "WaitingForApproval"
	DeletionApproved           IdentityDeletionStatus = "Approved"
	DeletionRejected           IdentityDeletionStatus = "Rejected"
	DeletionCancelled          IdentityDeletionStatus = "Cancelled"
	DeletionDeleting           IdentityDeletionStatus = "Deleting"
)

var identityDeletionTransitions = map[IdentityDeletionStatus][]IdentityDeletionStatus{
	DeletionWaitingForApproval: {DeletionApproved, DeletionRejected, DeletionCancelled},
	DeletionApproved:           {DeletionCancelled, DeletionDeleting},
}

func (s IdentityDeletionStatus) CanTransition(to IdentityDeletionStatus) bool {
	for _, next := range identityDeletionTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Active reports whether the process still leads to deletion.
func (s IdentityDeletionStatus) Active() bool {
	return s == DeletionWaitingForApproval || s == DeletionApproved || s == DeletionDeleting
}

// IdentityDeletionProcess tracks deletion of the account's own identity.
type IdentityDeletionProcess struct {
	Base
	Status            IdentityDeletionStatus `json:"status"`
	GracePeriodEndsAt string                 `json:"gracePeriodEndsAt,omitempty"`
	CreatedAt         time.Time              `json:"createdAt"`
}

func (p *IdentityDeletionProcess) Collection() Collection {
	return CollectionIdentityDeletionProcesses
}
