package controllers

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/datawallet/internal/client/eventbus"
	"github.com/dmitrijs2005/datawallet/internal/client/models"
	"github.com/dmitrijs2005/datawallet/internal/client/store"
	"github.com/dmitrijs2005/datawallet/internal/common"
)

type Devices struct {
	base
	coll *store.Collection[models.Device, *models.Device]
}

func (c *Devices) List(ctx context.Context) ([]*models.Device, error) {
	return c.coll.List(ctx)
}

func (c *Devices) Get(ctx context.Context, id string) (*models.Device, error) {
	return c.coll.Get(ctx, id)
}

func (c *Devices) Register(ctx context.Context, name string, isAdmin bool) (*models.Device, error) {
	if name == "" {
		return nil, fmt.Errorf("device without name: %w", common.ErrValidation)
	}
	d := &models.Device{
		Base:      models.Base{ID: models.NewID(models.PrefixDevice)},
		Name:      name,
		IsAdmin:   isAdmin,
		CreatedAt: now(),
	}
	err := c.st.Unit(ctx, func(ctx context.Context) error {
		if err := createObject(ctx, &c.base, c.coll, d); err != nil {
			return err
		}
		c.emit(ctx, eventbus.DeviceRegistered, d.ID, d)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}
