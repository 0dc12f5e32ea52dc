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

// Attributes manages identity attributes and their succession chains.
type Attributes struct {
	base
	coll *store.Collection[models.Attribute, *models.Attribute]
}

func (c *Attributes) Get(ctx context.Context, id string) (*models.Attribute, error) {
	return c.coll.Get(ctx, id)
}

func (c *Attributes) List(ctx context.Context) ([]*models.Attribute, error) {
	return c.coll.List(ctx)
}

// Heads returns the attributes that have not been succeeded.
func (c *Attributes) Heads(ctx context.Context) ([]*models.Attribute, error) {
	return c.coll.Find(ctx, func(a *models.Attribute) bool { return a.IsHead() })
}

func validValue(v models.AttributeValue) error {
	if v.Type == "" {
		return fmt.Errorf("attribute value without type: %w", common.ErrValidation)
	}
	if len(v.Value) == 0 {
		return fmt.Errorf("attribute value %s is empty: %w", v.Type, common.ErrValidation)
	}
	return nil
}

func (c *Attributes) Create(ctx context.Context, owner string, value models.AttributeValue) (*models.Attribute, error) {
	if err := validValue(value); err != nil {
		return nil, err
	}
	attr := &models.Attribute{
		Base:      models.Base{ID: models.NewID(models.PrefixAttribute)},
		Owner:     owner,
		Value:     value,
		CreatedAt: now(),
	}
	err := c.st.Unit(ctx, func(ctx context.Context) error {
		if err := createObject(ctx, &c.base, c.coll, attr); err != nil {
			return err
		}
		c.emit(ctx, eventbus.AttributeCreated, attr.ID, attr)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return attr, nil
}

// predecessor loads the attribute a successor would reference and checks
// that it may be succeeded.
func (c *Attributes) predecessor(ctx context.Context, id string, valueType string) (*models.Attribute, error) {
	pred, err := c.coll.Get(ctx, id)
	switch {
	case errors.Is(err, common.ErrorNotFound), errors.Is(err, common.ErrObjectDeleted):
		return nil, fmt.Errorf("predecessor %s: %w: %w", id, common.ErrIntegrity, err)
	case err != nil:
		return nil, err
	}
	if !pred.IsHead() {
		return nil, fmt.Errorf("predecessor %s already succeeded by %s: %w", id, pred.SucceededBy, common.ErrIntegrity)
	}
	if pred.Value.Type != valueType {
		return nil, fmt.Errorf("successor type %s differs from predecessor type %s: %w",
			valueType, pred.Value.Type, common.ErrIntegrity)
	}
	return pred, nil
}

// Succeed appends a new version of the attribute predecessorID to its
// chain. The predecessor must exist, be the current head and carry the same
// value type.
func (c *Attributes) Succeed(ctx context.Context, predecessorID string, value models.AttributeValue) (*models.Attribute, error) {
	if err := validValue(value); err != nil {
		return nil, err
	}

	var succ *models.Attribute
	err := c.st.Unit(ctx, func(ctx context.Context) error {
		pred, err := c.predecessor(ctx, predecessorID, value.Type)
		if err != nil {
			return err
		}
		before, err := models.SplitProperties(pred)
		if err != nil {
			return err
		}

		succ = &models.Attribute{
			Base:          models.Base{ID: models.NewID(models.PrefixAttribute)},
			Owner:         pred.Owner,
			Value:         value,
			PredecessorID: pred.ID,
			ShareInfo:     pred.ShareInfo,
			CreatedAt:     now(),
		}
		if err := createObject(ctx, &c.base, c.coll, succ); err != nil {
			return err
		}

		pred.SucceededBy = succ.ID
		if _, err := updateObject(ctx, &c.base, c.coll, before, pred); err != nil {
			return err
		}
		c.emit(ctx, eventbus.AttributeSucceeded, succ.ID, succ)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return succ, nil
}

// Chain returns the succession chain containing id, oldest first.
func (c *Attributes) Chain(ctx context.Context, id string) ([]*models.Attribute, error) {
	start, err := c.coll.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{start.ID: true}
	var back []*models.Attribute
	for cur := start; cur.PredecessorID != ""; {
		if seen[cur.PredecessorID] {
			return nil, fmt.Errorf("cycle at %s: %w", cur.PredecessorID, common.ErrIntegrity)
		}
		seen[cur.PredecessorID] = true
		prev, err := c.coll.Get(ctx, cur.PredecessorID)
		if err != nil {
			return nil, fmt.Errorf("predecessor %s of %s: %w: %w", cur.PredecessorID, cur.ID, common.ErrIntegrity, err)
		}
		back = append(back, prev)
		cur = prev
	}

	chain := make([]*models.Attribute, 0, len(back)+1)
	for i := len(back) - 1; i >= 0; i-- {
		chain = append(chain, back[i])
	}
	chain = append(chain, start)

	for cur := start; cur.SucceededBy != ""; {
		if seen[cur.SucceededBy] {
			return nil, fmt.Errorf("cycle at %s: %w", cur.SucceededBy, common.ErrIntegrity)
		}
		seen[cur.SucceededBy] = true
		next, err := c.coll.Get(ctx, cur.SucceededBy)
		if err != nil {
			return nil, fmt.Errorf("successor %s of %s: %w: %w", cur.SucceededBy, cur.ID, common.ErrIntegrity, err)
		}
		chain = append(chain, next)
		cur = next
	}
	return chain, nil
}

// Share creates the copy of sourceID that is shared with peer.
func (c *Attributes) Share(ctx context.Context, sourceID, peer, requestReference string) (*models.Attribute, error) {
	var shared *models.Attribute
	err := c.st.Unit(ctx, func(ctx context.Context) error {
		src, err := c.coll.Get(ctx, sourceID)
		if err != nil {
			return fmt.Errorf("shared attribute source %s: %w", sourceID, err)
		}
		if src.ShareInfo != nil {
			return fmt.Errorf("attribute %s is itself a shared copy: %w", sourceID, common.ErrValidation)
		}
		shared = &models.Attribute{
			Base:      models.Base{ID: models.NewID(models.PrefixAttribute)},
			Owner:     src.Owner,
			Value:     src.Value,
			ShareInfo: &models.ShareInfo{Peer: peer, SourceAttributeID: src.ID, RequestReference: requestReference},
			CreatedAt: now(),
		}
		if err := createObject(ctx, &c.base, c.coll, shared); err != nil {
			return err
		}
		c.emit(ctx, eventbus.AttributeCreated, shared.ID, shared)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return shared, nil
}

// MarkViewed sets wasViewedAt. Only the metadata group changes.
func (c *Attributes) MarkViewed(ctx context.Context, id string) (*models.Attribute, error) {
	var attr *models.Attribute
	err := c.st.Unit(ctx, func(ctx context.Context) error {
		a, before, err := load(ctx, c.coll, id)
		if err != nil {
			return err
		}
		at := now()
		a.WasViewedAt = &at
		changed, err := updateObject(ctx, &c.base, c.coll, before, a)
		if err != nil {
			return err
		}
		if changed {
			c.emit(ctx, eventbus.AttributeChanged, a.ID, a)
		}
		attr = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return attr, nil
}

// Delete removes the whole chain ending at id. Only the head of a chain may
// be deleted, so history is never cut in the middle.
func (c *Attributes) Delete(ctx context.Context, id string) error {
	return c.st.Unit(ctx, func(ctx context.Context) error {
		head, err := c.coll.Get(ctx, id)
		if err != nil {
			return fmt.Errorf("attribute %s: %w", id, err)
		}
		if !head.IsHead() {
			return fmt.Errorf("attribute %s is succeeded by %s: %w", id, head.SucceededBy, common.ErrValidation)
		}

		for cur := head; cur != nil; {
			if err := deleteObject(ctx, &c.base, models.CollectionAttributes, cur.ID); err != nil {
				return err
			}
			if cur.PredecessorID == "" {
				break
			}
			prev, err := c.coll.Get(ctx, cur.PredecessorID)
			if errors.Is(err, common.ErrObjectDeleted) || errors.Is(err, common.ErrorNotFound) {
				break
			}
			if err != nil {
				return err
			}
			cur = prev
		}
		c.emit(ctx, eventbus.AttributeDeleted, head.ID, head)
		return nil
	})
}
