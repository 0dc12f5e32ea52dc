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

// Requests tracks requests exchanged with peers. Deciding what to answer is
// left to the caller; the controller only enforces the status flow.
type Requests struct {
	base
	coll *store.Collection[models.LocalRequest, *models.LocalRequest]
}

func (c *Requests) Get(ctx context.Context, id string) (*models.LocalRequest, error) {
	return c.coll.Get(ctx, id)
}

func (c *Requests) List(ctx context.Context) ([]*models.LocalRequest, error) {
	return c.coll.List(ctx)
}

func (c *Requests) CreateOutgoing(ctx context.Context, peer string, content json.RawMessage) (*models.LocalRequest, error) {
	return c.create(ctx, &models.LocalRequest{
		IsOwn:   true,
		Peer:    peer,
		Status:  models.RequestDraft,
		Content: content,
	})
}

// Receive records a request sent by peer.
func (c *Requests) Receive(ctx context.Context, peer string, content json.RawMessage, source *models.RequestSource) (*models.LocalRequest, error) {
	return c.create(ctx, &models.LocalRequest{
		Peer:    peer,
		Status:  models.RequestOpen,
		Content: content,
		Source:  source,
	})
}

func (c *Requests) create(ctx context.Context, req *models.LocalRequest) (*models.LocalRequest, error) {
	if req.Peer == "" || len(req.Content) == 0 {
		return nil, fmt.Errorf("request needs peer and content: %w", common.ErrValidation)
	}
	req.ID = models.NewID(models.PrefixRequest)
	req.CreatedAt = now()

	err := c.st.Unit(ctx, func(ctx context.Context) error {
		if err := createObject(ctx, &c.base, c.coll, req); err != nil {
			return err
		}
		c.emit(ctx, eventbus.RequestChanged, req.ID, req)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (c *Requests) Open(ctx context.Context, id string) (*models.LocalRequest, error) {
	return c.transition(ctx, id, models.RequestOpen, nil)
}

func (c *Requests) RequireDecision(ctx context.Context, id string, manual bool) (*models.LocalRequest, error) {
	target := models.RequestDecisionRequired
	if manual {
		target = models.RequestManualDecisionRequired
	}
	return c.transition(ctx, id, target, nil)
}

func (c *Requests) Decide(ctx context.Context, id string, response json.RawMessage) (*models.LocalRequest, error) {
	if len(response) == 0 {
		return nil, fmt.Errorf("decision without response: %w", common.ErrValidation)
	}
	return c.transition(ctx, id, models.RequestDecided, response)
}

func (c *Requests) Complete(ctx context.Context, id string) (*models.LocalRequest, error) {
	return c.transition(ctx, id, models.RequestCompleted, nil)
}

func (c *Requests) Expire(ctx context.Context, id string) (*models.LocalRequest, error) {
	return c.transition(ctx, id, models.RequestExpired, nil)
}

func (c *Requests) transition(ctx context.Context, id string, target models.RequestStatus, response json.RawMessage) (*models.LocalRequest, error) {
	var req *models.LocalRequest
	err := c.st.Unit(ctx, func(ctx context.Context) error {
		r, before, err := load(ctx, c.coll, id)
		if err != nil {
			return err
		}
		req = r
		if r.Status == target {
			return nil
		}
		if !r.Status.CanTransition(target) {
			return fmt.Errorf("request %s: transition %s -> %s: %w", id, r.Status, target, common.ErrValidation)
		}
		r.Status = target
		if response != nil {
			r.Response = response
		}
		changed, err := updateObject(ctx, &c.base, c.coll, before, r)
		if err != nil {
			return err
		}
		if changed {
			c.emit(ctx, eventbus.RequestChanged, r.ID, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}
