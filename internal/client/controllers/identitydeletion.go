package controllers

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/datawallet/internal/client/eventbus"
	"github.com/dmitrijs2005/datawallet/internal/client/models"
	"github.com/dmitrijs2005/datawallet/internal/client/store"
	"github.com/dmitrijs2005/datawallet/internal/common"
)

// IdentityDeletion tracks deletion processes of this account's own identity.
type IdentityDeletion struct {
	base
	coll *store.Collection[models.IdentityDeletionProcess, *models.IdentityDeletionProcess]
}

func (c *IdentityDeletion) Get(ctx context.Context, id string) (*models.IdentityDeletionProcess, error) {
	return c.coll.Get(ctx, id)
}

// Active returns the process that still leads to deletion, if any.
func (c *IdentityDeletion) Active(ctx context.Context) (*models.IdentityDeletionProcess, error) {
	found, err := c.coll.Find(ctx, func(p *models.IdentityDeletionProcess) bool { return p.Status.Active() })
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, common.ErrorNotFound
	}
	return found[0], nil
}

// Start records a deletion process. A process started on another device or
// by the backbone arrives with its own id; Start with an id that is already
// known is a no-op.
func (c *IdentityDeletion) Start(ctx context.Context, id string, status models.IdentityDeletionStatus, gracePeriodEndsAt string) (*models.IdentityDeletionProcess, bool, error) {
	if id == "" {
		id = models.NewID(models.PrefixIdentityDeletion)
	}
	if status == "" {
		status = models.DeletionApproved
	}

	var p *models.IdentityDeletionProcess
	var created bool
	err := c.st.Unit(ctx, func(ctx context.Context) error {
		cur, err := c.coll.Get(ctx, id)
		switch {
		case err == nil:
			p = cur
			return nil
		case errors.Is(err, common.ErrObjectDeleted):
			return fmt.Errorf("identity deletion %s: %w", id, err)
		case !errors.Is(err, common.ErrorNotFound):
			return err
		}
		active, err := c.Active(ctx)
		switch {
		case err == nil:
			return fmt.Errorf("identity deletion %s already in progress: %w", active.ID, common.ErrValidation)
		case !errors.Is(err, common.ErrorNotFound):
			return err
		}

		p = &models.IdentityDeletionProcess{
			Base:              models.Base{ID: id},
			Status:            status,
			GracePeriodEndsAt: gracePeriodEndsAt,
			CreatedAt:         now(),
		}
		if err := createObject(ctx, &c.base, c.coll, p); err != nil {
			return err
		}
		created = true
		c.emit(ctx, eventbus.IdentityDeletionProcessStatusChanged, p.ID, p)
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return p, created, nil
}

// ApplyStatus follows the same rules as relationship status changes:
// repeated and stale transitions are no-ops, anything else outside the
// process lattice is an integrity error.
func (c *IdentityDeletion) ApplyStatus(ctx context.Context, id string, target models.IdentityDeletionStatus, gracePeriodEndsAt string) (*models.IdentityDeletionProcess, bool, error) {
	var p *models.IdentityDeletionProcess
	var changed bool
	err := c.st.Unit(ctx, func(ctx context.Context) error {
		cur, before, err := load(ctx, c.coll, id)
		if err != nil {
			return err
		}
		p = cur
		switch {
		case cur.Status == target:
			if gracePeriodEndsAt == "" || cur.GracePeriodEndsAt == gracePeriodEndsAt {
				return nil
			}
		case cur.Status.CanTransition(target):
		case target.CanTransition(cur.Status):
			return nil
		default:
			return fmt.Errorf("identity deletion %s: transition %s -> %s: %w", id, cur.Status, target, common.ErrIntegrity)
		}

		cur.Status = target
		if gracePeriodEndsAt != "" {
			cur.GracePeriodEndsAt = gracePeriodEndsAt
		}
		if changed, err = updateObject(ctx, &c.base, c.coll, before, cur); err != nil {
			return err
		}
		c.emit(ctx, eventbus.IdentityDeletionProcessStatusChanged, cur.ID, cur)
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return p, changed, nil
}
