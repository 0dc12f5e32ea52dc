package controllers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/datawallet/internal/client/eventbus"
	"github.com/dmitrijs2005/datawallet/internal/client/models"
	"github.com/dmitrijs2005/datawallet/internal/client/store"
	"github.com/dmitrijs2005/datawallet/internal/common"
)

type Relationships struct {
	base
	coll *store.Collection[models.Relationship, *models.Relationship]
}

func (c *Relationships) Get(ctx context.Context, id string) (*models.Relationship, error) {
	return c.coll.Get(ctx, id)
}

func (c *Relationships) List(ctx context.Context) ([]*models.Relationship, error) {
	return c.coll.List(ctx)
}

// Exists reports whether id is a live relationship; Tombstoned whether it
// was decomposed.
func (c *Relationships) Exists(ctx context.Context, id string) (bool, error) {
	return c.coll.Exists(ctx, id)
}

func (c *Relationships) Tombstoned(ctx context.Context, id string) (bool, error) {
	return c.coll.Tombstoned(ctx, id)
}

// Create starts an outgoing relationship with peer.
func (c *Relationships) Create(ctx context.Context, peer string, content json.RawMessage) (*models.Relationship, error) {
	return c.create(ctx, models.NewID(models.PrefixRelationship), peer, true, content)
}

// CreateIncoming records a relationship that peer opened towards this
// identity, under the id the backbone assigned.
func (c *Relationships) CreateIncoming(ctx context.Context, id, peer string, content json.RawMessage) (*models.Relationship, error) {
	if !models.ValidID(models.PrefixRelationship, id) {
		return nil, fmt.Errorf("relationship id %q: %w", id, common.ErrValidation)
	}
	return c.create(ctx, id, peer, false, content)
}

func (c *Relationships) create(ctx context.Context, id, peer string, isOwn bool, content json.RawMessage) (*models.Relationship, error) {
	if peer == "" {
		return nil, fmt.Errorf("relationship without peer: %w", common.ErrValidation)
	}
	at := now()
	rel := &models.Relationship{
		Base:            models.Base{ID: id},
		Peer:            peer,
		IsOwn:           isOwn,
		Status:          models.RelationshipPending,
		CreationContent: content,
		AuditLog: []models.AuditEntry{{
			CreatedAt: at,
			CreatedBy: c.creator(isOwn, peer),
			Reason:    "Creation",
			NewStatus: models.RelationshipPending,
		}},
		CreatedAt: at,
	}
	err := c.st.Unit(ctx, func(ctx context.Context) error {
		if err := createObject(ctx, &c.base, c.coll, rel); err != nil {
			return err
		}
		c.emit(ctx, eventbus.RelationshipChanged, rel.ID, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rel, nil
}

func (c *Relationships) creator(isOwn bool, peer string) string {
	if isOwn {
		return c.account
	}
	return peer
}

func (c *Relationships) Accept(ctx context.Context, id string) (*models.Relationship, error) {
	rel, _, err := c.ApplyStatus(ctx, id, models.RelationshipActive, c.account)
	return rel, err
}

func (c *Relationships) Reject(ctx context.Context, id string) (*models.Relationship, error) {
	rel, _, err := c.ApplyStatus(ctx, id, models.RelationshipRejected, c.account)
	return rel, err
}

func (c *Relationships) Revoke(ctx context.Context, id string) (*models.Relationship, error) {
	rel, _, err := c.ApplyStatus(ctx, id, models.RelationshipRevoked, c.account)
	return rel, err
}

func (c *Relationships) Terminate(ctx context.Context, id string) (*models.Relationship, error) {
	rel, _, err := c.ApplyStatus(ctx, id, models.RelationshipTerminated, c.account)
	return rel, err
}

func (c *Relationships) RequestReactivation(ctx context.Context, id string) (*models.Relationship, error) {
	rel, _, err := c.ApplyStatus(ctx, id, models.RelationshipReactivationRequested, c.account)
	return rel, err
}

func (c *Relationships) AcceptReactivation(ctx context.Context, id string) (*models.Relationship, error) {
	rel, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rel.Status == models.RelationshipReactivationRequested && rel.ReactivationRequestedBy == c.account {
		return nil, fmt.Errorf("reactivation of %s was requested by this identity: %w", id, common.ErrValidation)
	}
	rel, _, err = c.ApplyStatus(ctx, id, models.RelationshipActive, c.account)
	return rel, err
}

// ApplyStatus moves relationship id to status target on behalf of by.
//
// Re-applying the current status is a no-op. A target that could only have
// come before the current status is treated as a stale, already superseded
// transition and is also a no-op. Any other transition outside the status
// lattice is an integrity error. changed reports whether anything was written.
func (c *Relationships) ApplyStatus(ctx context.Context, id string, target models.RelationshipStatus, by string) (rel *models.Relationship, changed bool, err error) {
	if !target.Valid() {
		return nil, false, fmt.Errorf("relationship status %q: %w", target, common.ErrValidation)
	}

	err = c.st.Unit(ctx, func(ctx context.Context) error {
		r, before, err := load(ctx, c.coll, id)
		if err != nil {
			return err
		}
		rel = r
		current := r.Status

		switch {
		case current == target:
			return nil
		case current.CanTransition(target):
		case target.CanTransition(current):
			c.log.Debug(ctx, "ignoring stale relationship transition",
				"relationship", id, "current", current, "target", target)
			return nil
		default:
			return fmt.Errorf("relationship %s: transition %s -> %s: %w", id, current, target, common.ErrIntegrity)
		}

		r.Status = target
		r.AuditLog = append(r.AuditLog, models.AuditEntry{
			CreatedAt: now(),
			CreatedBy: by,
			Reason:    reason(current, target),
			OldStatus: current,
			NewStatus: target,
		})
		switch target {
		case models.RelationshipReactivationRequested:
			r.ReactivationRequestedBy = by
		case models.RelationshipActive, models.RelationshipTerminated:
			r.ReactivationRequestedBy = ""
		}

		if changed, err = updateObject(ctx, &c.base, c.coll, before, r); err != nil {
			return err
		}

		c.emit(ctx, eventbus.RelationshipChanged, r.ID, r)
		switch {
		case target == models.RelationshipReactivationRequested:
			c.emit(ctx, eventbus.RelationshipReactivationRequested, r.ID, r)
		case current == models.RelationshipReactivationRequested && target == models.RelationshipActive:
			c.emit(ctx, eventbus.RelationshipReactivationCompleted, r.ID, r)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return rel, changed, nil
}

func reason(from, to models.RelationshipStatus) string {
	switch {
	case to == models.RelationshipActive && from == models.RelationshipPending:
		return "AcceptanceOfCreation"
	case to == models.RelationshipActive:
		return "AcceptanceOfReactivation"
	case to == models.RelationshipRejected:
		return "RejectionOfCreation"
	case to == models.RelationshipRevoked:
		return "RevocationOfCreation"
	case to == models.RelationshipTerminated && from == models.RelationshipReactivationRequested:
		return "RejectionOfReactivation"
	case to == models.RelationshipTerminated:
		return "Termination"
	case to == models.RelationshipReactivationRequested:
		return "Reactivation"
	case to == models.RelationshipDeletionProposed:
		return "Decomposition"
	}
	return "StatusChange"
}

// Decompose deletes a relationship that can no longer be used, leaving a
// tombstone so later events about it converge as no-ops.
func (c *Relationships) Decompose(ctx context.Context, id string) error {
	return c.st.Unit(ctx, func(ctx context.Context) error {
		rel, err := c.coll.Get(ctx, id)
		if err != nil {
			return fmt.Errorf("relationship %s: %w", id, err)
		}
		if !rel.Status.Decomposable() {
			return fmt.Errorf("relationship %s in status %s cannot be decomposed: %w", id, rel.Status, common.ErrValidation)
		}
		if err := deleteObject(ctx, &c.base, models.CollectionRelationships, id); err != nil {
			return err
		}
		c.emit(ctx, eventbus.RelationshipDecomposedBySelf, id, rel)
		return nil
	})
}

// SetPeerDeletionInfo records the peer's identity deletion state. Setting
// the same info again changes nothing.
func (c *Relationships) SetPeerDeletionInfo(ctx context.Context, id string, info models.PeerDeletionInfo) (*models.Relationship, bool, error) {
	var rel *models.Relationship
	var changed bool
	err := c.st.Unit(ctx, func(ctx context.Context) error {
		r, before, err := load(ctx, c.coll, id)
		if err != nil {
			return err
		}
		rel = r
		if r.PeerDeletionInfo != nil && *r.PeerDeletionInfo == info {
			return nil
		}
		r.PeerDeletionInfo = &info
		if changed, err = updateObject(ctx, &c.base, c.coll, before, r); err != nil {
			return err
		}

		ns := eventbus.PeerToBeDeleted
		if info.DeletionStatus == models.PeerDeleted {
			ns = eventbus.PeerDeleted
		}
		c.emit(ctx, ns, r.ID, r)
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return rel, changed, nil
}

// ClearPeerDeletionInfo removes the peer deletion info after the peer
// cancelled its deletion.
func (c *Relationships) ClearPeerDeletionInfo(ctx context.Context, id string) (*models.Relationship, bool, error) {
	var rel *models.Relationship
	var changed bool
	err := c.st.Unit(ctx, func(ctx context.Context) error {
		r, before, err := load(ctx, c.coll, id)
		if err != nil {
			return err
		}
		rel = r
		if r.PeerDeletionInfo == nil {
			return nil
		}
		if r.PeerDeletionInfo.DeletionStatus == models.PeerDeleted {
			return fmt.Errorf("peer of relationship %s is already deleted: %w", id, common.ErrIntegrity)
		}
		r.PeerDeletionInfo = nil
		if changed, err = updateObject(ctx, &c.base, c.coll, before, r); err != nil {
			return err
		}
		c.emit(ctx, eventbus.PeerDeletionCancelled, r.ID, r)
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return rel, changed, nil
}

func (c *Relationships) MarkViewed(ctx context.Context, id string) (*models.Relationship, error) {
	var rel *models.Relationship
	err := c.st.Unit(ctx, func(ctx context.Context) error {
		r, before, err := load(ctx, c.coll, id)
		if err != nil {
			return err
		}
		at := now()
		r.WasViewedAt = &at
		if _, err := updateObject(ctx, &c.base, c.coll, before, r); err != nil {
			return err
		}
		rel = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rel, nil
}
