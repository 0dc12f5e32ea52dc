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

type Notifications struct {
	base
	coll *store.Collection[models.Notification, *models.Notification]
}

func (c *Notifications) Get(ctx context.Context, id string) (*models.Notification, error) {
	return c.coll.Get(ctx, id)
}

func (c *Notifications) List(ctx context.Context) ([]*models.Notification, error) {
	return c.coll.List(ctx)
}

func (c *Notifications) Receive(ctx context.Context, peer string, content json.RawMessage, source models.NotificationSource) (*models.Notification, error) {
	if peer == "" || len(content) == 0 {
		return nil, fmt.Errorf("notification needs peer and content: %w", common.ErrValidation)
	}
	n := &models.Notification{
		Base:      models.Base{ID: models.NewID(models.PrefixNotification)},
		Peer:      peer,
		Status:    models.NotificationOpen,
		Content:   content,
		Source:    source,
		CreatedAt: now(),
	}
	err := c.st.Unit(ctx, func(ctx context.Context) error {
		if err := createObject(ctx, &c.base, c.coll, n); err != nil {
			return err
		}
		c.emit(ctx, eventbus.NotificationChanged, n.ID, n)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return n, nil
}

// Complete closes an open notification. failed marks it as errored instead.
func (c *Notifications) Complete(ctx context.Context, id string, failed bool) (*models.Notification, error) {
	target := models.NotificationCompleted
	if failed {
		target = models.NotificationError
	}

	var n *models.Notification
	err := c.st.Unit(ctx, func(ctx context.Context) error {
		cur, before, err := load(ctx, c.coll, id)
		if err != nil {
			return err
		}
		n = cur
		if cur.Status == target {
			return nil
		}
		if cur.Status != models.NotificationOpen {
			return fmt.Errorf("notification %s is %s: %w", id, cur.Status, common.ErrValidation)
		}
		cur.Status = target
		if _, err := updateObject(ctx, &c.base, c.coll, before, cur); err != nil {
			return err
		}
		c.emit(ctx, eventbus.NotificationChanged, cur.ID, cur)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return n, nil
}
