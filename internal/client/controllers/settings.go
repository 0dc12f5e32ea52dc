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

// Settings stores key/value settings. Two devices may create a setting with
// the same key concurrently; both objects are kept and GetByKey picks the
// same winner on every device.
type Settings struct {
	base
	coll *store.Collection[models.Setting, *models.Setting]
}

func (c *Settings) Get(ctx context.Context, id string) (*models.Setting, error) {
	return c.coll.Get(ctx, id)
}

func (c *Settings) List(ctx context.Context) ([]*models.Setting, error) {
	return c.coll.List(ctx)
}

func (c *Settings) Create(ctx context.Context, key string, value json.RawMessage, scope models.SettingScope, reference string) (*models.Setting, error) {
	if key == "" || len(value) == 0 {
		return nil, fmt.Errorf("setting needs key and value: %w", common.ErrValidation)
	}
	if scope == "" {
		scope = models.SettingScopeIdentity
	}
	s := &models.Setting{
		Base:      models.Base{ID: models.NewID(models.PrefixSetting)},
		Key:       key,
		Value:     value,
		Scope:     scope,
		Reference: reference,
		CreatedAt: now(),
	}
	err := c.st.Unit(ctx, func(ctx context.Context) error {
		if err := createObject(ctx, &c.base, c.coll, s); err != nil {
			return err
		}
		c.emit(ctx, eventbus.SettingCreated, s.ID, s)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (c *Settings) Update(ctx context.Context, id string, value json.RawMessage) (*models.Setting, error) {
	if len(value) == 0 {
		return nil, fmt.Errorf("setting value is empty: %w", common.ErrValidation)
	}
	var s *models.Setting
	err := c.st.Unit(ctx, func(ctx context.Context) error {
		cur, before, err := load(ctx, c.coll, id)
		if err != nil {
			return err
		}
		s = cur
		cur.Value = value
		changed, err := updateObject(ctx, &c.base, c.coll, before, cur)
		if err != nil {
			return err
		}
		if changed {
			c.emit(ctx, eventbus.SettingChanged, cur.ID, cur)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (c *Settings) Delete(ctx context.Context, id string) error {
	return c.st.Unit(ctx, func(ctx context.Context) error {
		s, err := c.coll.Get(ctx, id)
		if err != nil {
			return fmt.Errorf("setting %s: %w", id, err)
		}
		if err := deleteObject(ctx, &c.base, models.CollectionSettings, id); err != nil {
			return err
		}
		c.emit(ctx, eventbus.SettingDeleted, id, s)
		return nil
	})
}

// GetByKey returns the canonical setting for key: the newest by creation
// time, ties broken by id.
func (c *Settings) GetByKey(ctx context.Context, key string) (*models.Setting, error) {
	all, err := c.coll.Find(ctx, func(s *models.Setting) bool { return s.Key == key })
	if err != nil {
		return nil, err
	}
	var winner *models.Setting
	for _, s := range all {
		if winner == nil || s.NewerThan(winner) {
			winner = s
		}
	}
	if winner == nil {
		return nil, fmt.Errorf("setting %q: %w", key, common.ErrorNotFound)
	}
	return winner, nil
}
