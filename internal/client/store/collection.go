package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/datawallet/internal/client/models"
	"github.com/dmitrijs2005/datawallet/internal/common"
	"github.com/dmitrijs2005/datawallet/internal/cryptox"
)

// Collection gives typed access to the objects of one collection. PT is the
// pointer type implementing models.Object, e.g. For[models.Attribute](st).
type Collection[T any, PT interface {
	*T
	models.Object
}] struct {
	s    *Store
	name models.Collection
}

// For returns the collection holding objects of type T.
func For[T any, PT interface {
	*T
	models.Object
}](s *Store) *Collection[T, PT] {
	return &Collection[T, PT]{s: s, name: PT(new(T)).Collection()}
}

func (c *Collection[T, PT]) Name() models.Collection { return c.name }

// CollectionKey names the subkey sealing the objects of collection c.
func CollectionKey(c models.Collection) string { return "collection:" + string(c) }

func (c *Collection[T, PT]) key() ([]byte, error) {
	return c.s.Key(CollectionKey(c.name))
}

func (c *Collection[T, PT]) decode(rec *models.ObjectRecord) (PT, error) {
	key, err := c.key()
	if err != nil {
		return nil, err
	}
	obj := PT(new(T))
	if err := cryptox.DecryptEntry(rec.Ciphertext, rec.Nonce, key, obj); err != nil {
		return nil, fmt.Errorf("open %s %s: %w", c.name, rec.ID, err)
	}
	obj.SetObjectVersion(rec.Version)
	return obj, nil
}

func (c *Collection[T, PT]) encode(obj PT) (*models.ObjectRecord, error) {
	key, err := c.key()
	if err != nil {
		return nil, err
	}
	ct, nonce, err := cryptox.EncryptEntry(obj, key)
	if err != nil {
		return nil, fmt.Errorf("seal %s %s: %w", c.name, obj.ObjectID(), err)
	}
	return &models.ObjectRecord{
		Collection: c.name,
		ID:         obj.ObjectID(),
		Version:    obj.ObjectVersion(),
		Ciphertext: ct,
		Nonce:      nonce,
		UpdatedAt:  timeNow().UTC(),
	}, nil
}

// Get returns the live object with id. Tombstones yield common.ErrObjectDeleted,
// unknown ids common.ErrorNotFound.
func (c *Collection[T, PT]) Get(ctx context.Context, id string) (PT, error) {
	if _, err := c.key(); err != nil {
		return nil, err
	}
	rec, err := c.s.Objects(ctx).Get(ctx, c.name, id)
	if err != nil {
		return nil, err
	}
	if rec.Deleted {
		return nil, common.ErrObjectDeleted
	}
	return c.decode(rec)
}

// Exists reports whether a live object with id exists.
func (c *Collection[T, PT]) Exists(ctx context.Context, id string) (bool, error) {
	if _, err := c.key(); err != nil {
		return false, err
	}
	rec, err := c.s.Objects(ctx).Get(ctx, c.name, id)
	if errors.Is(err, common.ErrorNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !rec.Deleted, nil
}

// Tombstoned reports whether id was deleted locally or by a remote change.
func (c *Collection[T, PT]) Tombstoned(ctx context.Context, id string) (bool, error) {
	if _, err := c.key(); err != nil {
		return false, err
	}
	rec, err := c.s.Objects(ctx).Get(ctx, c.name, id)
	if errors.Is(err, common.ErrorNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return rec.Deleted, nil
}

// Create stores a new object at version 1. Ids are never reused, not even
// after deletion.
func (c *Collection[T, PT]) Create(ctx context.Context, obj PT) error {
	_, err := c.s.Objects(ctx).Get(ctx, c.name, obj.ObjectID())
	if err == nil {
		return fmt.Errorf("%s %s: %w", c.name, obj.ObjectID(), common.ErrorAlreadyExists)
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return err
	}

	obj.SetObjectVersion(1)
	rec, err := c.encode(obj)
	if err != nil {
		return err
	}
	return c.s.Objects(ctx).Upsert(ctx, rec)
}

// Update writes obj if the stored version still equals obj's version and
// bumps the version. A concurrent writer yields common.ErrVersionConflict.
func (c *Collection[T, PT]) Update(ctx context.Context, obj PT) error {
	expected := obj.ObjectVersion()
	obj.SetObjectVersion(expected + 1)
	rec, err := c.encode(obj)
	if err != nil {
		obj.SetObjectVersion(expected)
		return err
	}
	if err := c.s.Objects(ctx).UpdateIfVersion(ctx, rec, expected); err != nil {
		obj.SetObjectVersion(expected)
		return fmt.Errorf("%s %s: %w", c.name, obj.ObjectID(), err)
	}
	return nil
}

// Delete replaces the object with a tombstone.
func (c *Collection[T, PT]) Delete(ctx context.Context, id string) error {
	return c.s.Objects(ctx).MarkDeleted(ctx, c.name, id, timeNow().UTC())
}

// List returns the live objects ordered by id.
func (c *Collection[T, PT]) List(ctx context.Context) ([]PT, error) {
	return c.Find(ctx, nil)
}

// Find returns the live objects matching pred, ordered by id. A nil pred
// matches everything. A locked store fails even when the collection is
// empty.
func (c *Collection[T, PT]) Find(ctx context.Context, pred func(PT) bool) ([]PT, error) {
	if _, err := c.key(); err != nil {
		return nil, err
	}
	recs, err := c.s.Objects(ctx).List(ctx, c.name)
	if err != nil {
		return nil, err
	}
	var out []PT
	for _, rec := range recs {
		obj, err := c.decode(rec)
		if err != nil {
			return nil, err
		}
		if pred == nil || pred(obj) {
			out = append(out, obj)
		}
	}
	return out, nil
}

// Document returns obj as the JSON document form stored by the store.
func Document(obj models.Object) (map[string]json.RawMessage, error) {
	raw, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
