package controllers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/datawallet/internal/client/eventbus"
	"github.com/dmitrijs2005/datawallet/internal/client/models"
	"github.com/dmitrijs2005/datawallet/internal/client/store"
	"github.com/dmitrijs2005/datawallet/internal/common"
)

type Messages struct {
	base
	coll *store.Collection[models.Message, *models.Message]
	rels *store.Collection[models.Relationship, *models.Relationship]
}

func (c *Messages) Get(ctx context.Context, id string) (*models.Message, error) {
	return c.coll.Get(ctx, id)
}

func (c *Messages) List(ctx context.Context) ([]*models.Message, error) {
	return c.coll.List(ctx)
}

// Send records an outgoing message to the peer of relationshipID. The
// relationship must still allow messaging.
func (c *Messages) Send(ctx context.Context, relationshipID string, content json.RawMessage) (*models.Message, error) {
	if len(content) == 0 {
		return nil, fmt.Errorf("message without content: %w", common.ErrValidation)
	}
	var msg *models.Message
	err := c.st.Unit(ctx, func(ctx context.Context) error {
		rel, err := c.rels.Get(ctx, relationshipID)
		if err != nil {
			return fmt.Errorf("relationship %s: %w", relationshipID, err)
		}
		if !rel.MessagingAllowed() {
			return fmt.Errorf("messaging with %s is not allowed: %w", rel.Peer, common.ErrValidation)
		}
		msg = &models.Message{
			Base:       models.Base{ID: models.NewID(models.PrefixMessage)},
			IsOwn:      true,
			CreatedBy:  c.account,
			Recipients: []models.Recipient{{Address: rel.Peer, RelationshipID: rel.ID}},
			Content:    content,
			CreatedAt:  now(),
		}
		return createObject(ctx, &c.base, c.coll, msg)
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// Store records a message received from a peer. Storing a message id that
// is already known is a no-op; created is false then.
func (c *Messages) Store(ctx context.Context, msg *models.Message) (stored *models.Message, created bool, err error) {
	if !models.ValidID(models.PrefixMessage, msg.ID) {
		return nil, false, fmt.Errorf("message id %q: %w", msg.ID, common.ErrValidation)
	}
	err = c.st.Unit(ctx, func(ctx context.Context) error {
		exists, err := c.coll.Exists(ctx, msg.ID)
		if err != nil {
			return err
		}
		gone, err := c.coll.Tombstoned(ctx, msg.ID)
		if err != nil {
			return err
		}
		if exists || gone {
			return nil
		}
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = now()
		}
		if err := createObject(ctx, &c.base, c.coll, msg); err != nil {
			return err
		}
		created = true
		c.emit(ctx, eventbus.MessageReceived, msg.ID, msg)
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return msg, created, nil
}

// MarkDelivered records that recipient received message id at the given time.
func (c *Messages) MarkDelivered(ctx context.Context, id, recipient string, at time.Time) (*models.Message, bool, error) {
	var msg *models.Message
	var changed bool
	err := c.st.Unit(ctx, func(ctx context.Context) error {
		m, before, err := load(ctx, c.coll, id)
		if err != nil {
			return err
		}
		msg = m
		idx := -1
		for i, r := range m.Recipients {
			if r.Address == recipient {
				idx = i
				break
			}
		}
		if idx < 0 {
			return fmt.Errorf("message %s has no recipient %s: %w", id, recipient, common.ErrIntegrity)
		}
		if m.Recipients[idx].ReceivedAt != nil {
			return nil
		}
		at = at.UTC()
		m.Recipients[idx].ReceivedAt = &at
		if changed, err = updateObject(ctx, &c.base, c.coll, before, m); err != nil {
			return err
		}
		c.emit(ctx, eventbus.MessageDelivered, m.ID, m)
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return msg, changed, nil
}
