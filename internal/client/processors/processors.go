package processors

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/datawallet/internal/client/controllers"
	"github.com/dmitrijs2005/datawallet/internal/client/models"
	"github.com/dmitrijs2005/datawallet/internal/common"
	"github.com/dmitrijs2005/datawallet/internal/logging"
)

// Processors applies external events of one account.
type Processors struct {
	c       *controllers.Controllers
	account string
	log     logging.Logger
}

func New(c *controllers.Controllers, account string, log logging.Logger) *Processors {
	if log == nil {
		log = logging.Nop()
	}
	return &Processors{c: c, account: account, log: log.With("module", "processors", "account", account)}
}

// Process decodes ev and applies it. It must be called inside the unit of
// work that also advances the event cursor.
func (p *Processors) Process(ctx context.Context, ev *models.ExternalEvent) error {
	payload, err := Decode(ev)
	if err != nil {
		return err
	}
	if err := p.Dispatch(ctx, payload); err != nil {
		return fmt.Errorf("event %s (%s): %w", ev.ID, ev.Type, err)
	}
	return nil
}

// Dispatch applies a decoded payload.
//
// References to tombstoned objects settle as no-ops, references to objects
// that were never seen are integrity errors.
func (p *Processors) Dispatch(ctx context.Context, payload Payload) error {
	var err error
	switch pl := payload.(type) {
	case *MessageReceivedPayload:
		err = p.messageReceived(ctx, pl)
	case *MessageDeliveredPayload:
		_, _, err = p.c.Messages.MarkDelivered(ctx, pl.ID, pl.Recipient, pl.DeliveredAt)
	case *RelationshipStatusChangedPayload:
		err = p.relationshipStatusChanged(ctx, pl)
	case *RelationshipReactivationRequestedPayload:
		_, _, err = p.c.Relationships.ApplyStatus(ctx, pl.RelationshipID, models.RelationshipReactivationRequested, pl.RequestedBy)
	case *RelationshipReactivationCompletedPayload:
		_, _, err = p.c.Relationships.ApplyStatus(ctx, pl.RelationshipID, models.RelationshipActive, pl.Peer)
	case *PeerToBeDeletedPayload:
		_, _, err = p.c.Relationships.SetPeerDeletionInfo(ctx, pl.RelationshipID,
			models.PeerDeletionInfo{DeletionStatus: models.PeerToBeDeleted, DeletionDate: pl.DeletionDate})
	case *PeerDeletionCancelledPayload:
		_, _, err = p.c.Relationships.ClearPeerDeletionInfo(ctx, pl.RelationshipID)
	case *PeerDeletedPayload:
		_, _, err = p.c.Relationships.SetPeerDeletionInfo(ctx, pl.RelationshipID,
			models.PeerDeletionInfo{DeletionStatus: models.PeerDeleted, DeletionDate: pl.DeletionDate})
	case *IdentityDeletionProcessStartedPayload:
		_, _, err = p.c.IdentityDeletion.Start(ctx, pl.DeletionProcessID, pl.Status, pl.GracePeriodEndsAt)
	case *IdentityDeletionProcessStatusChangedPayload:
		_, _, err = p.c.IdentityDeletion.ApplyStatus(ctx, pl.DeletionProcessID, pl.Status, pl.GracePeriodEndsAt)
	case *FileOwnershipClaimedPayload:
		_, _, err = p.c.Files.ClaimOwnership(ctx, pl.FileID, pl.NewOwner)
	case *FileOwnershipLockedPayload:
		_, _, err = p.c.Files.LockOwnership(ctx, pl.FileID)
	default:
		return fmt.Errorf("payload %T: %w", payload, common.ErrUnknownEventType)
	}
	return p.settle(ctx, payload, err)
}

func (p *Processors) settle(ctx context.Context, payload Payload, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, common.ErrObjectDeleted):
		p.log.Debug(ctx, "event refers to a deleted object", "type", payload.Type(), "error", err)
		return nil
	case errors.Is(err, common.ErrorNotFound):
		return fmt.Errorf("%w: %w", common.ErrIntegrity, err)
	}
	return err
}

func (p *Processors) messageReceived(ctx context.Context, pl *MessageReceivedPayload) error {
	recipients := make([]models.Recipient, 0, len(pl.Recipients))
	for _, addr := range pl.Recipients {
		recipients = append(recipients, models.Recipient{Address: addr})
	}
	_, _, err := p.c.Messages.Store(ctx, &models.Message{
		Base:       models.Base{ID: pl.ID},
		IsOwn:      pl.CreatedBy == p.account,
		CreatedBy:  pl.CreatedBy,
		Recipients: recipients,
		Content:    pl.Content,
		CreatedAt:  pl.CreatedAt.UTC(),
	})
	return err
}

// relationshipStatusChanged creates a relationship the peer opened and
// moves known ones along the status lattice.
func (p *Processors) relationshipStatusChanged(ctx context.Context, pl *RelationshipStatusChangedPayload) error {
	exists, err := p.c.Relationships.Exists(ctx, pl.RelationshipID)
	if err != nil {
		return err
	}
	if exists {
		_, _, err := p.c.Relationships.ApplyStatus(ctx, pl.RelationshipID, pl.Status, pl.Peer)
		return err
	}

	gone, err := p.c.Relationships.Tombstoned(ctx, pl.RelationshipID)
	if err != nil {
		return err
	}
	if gone {
		return common.ErrObjectDeleted
	}
	if pl.Status != models.RelationshipPending {
		return fmt.Errorf("relationship %s unknown in status %s: %w", pl.RelationshipID, pl.Status, common.ErrIntegrity)
	}
	_, err = p.c.Relationships.CreateIncoming(ctx, pl.RelationshipID, pl.Peer, pl.CreationContent)
	return err
}
