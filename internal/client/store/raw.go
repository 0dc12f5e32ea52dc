package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/datawallet/internal/client/models"
	"github.com/dmitrijs2005/datawallet/internal/cryptox"
)

// RawObject is an object in its untyped document form, used when applying
// remote modifications to collections without knowing their Go type.
type RawObject struct {
	Collection models.Collection
	ID         string
	Version    int64
	Deleted    bool
	Doc        map[string]json.RawMessage
}

// GetRaw returns the stored object with id, tombstones included. Unknown ids
// yield common.ErrorNotFound.
func (s *Store) GetRaw(ctx context.Context, c models.Collection, id string) (*RawObject, error) {
	rec, err := s.Objects(ctx).Get(ctx, c, id)
	if err != nil {
		return nil, err
	}
	obj := &RawObject{Collection: c, ID: id, Version: rec.Version, Deleted: rec.Deleted}
	if rec.Deleted {
		return obj, nil
	}

	key, err := s.Key(CollectionKey(c))
	if err != nil {
		return nil, err
	}
	if err := cryptox.DecryptEntry(rec.Ciphertext, rec.Nonce, key, &obj.Doc); err != nil {
		return nil, fmt.Errorf("open %s %s: %w", c, id, err)
	}
	return obj, nil
}

// PutRaw stores obj unconditionally. id and version inside the document are
// overwritten with obj's.
func (s *Store) PutRaw(ctx context.Context, obj *RawObject) error {
	key, err := s.Key(CollectionKey(obj.Collection))
	if err != nil {
		return err
	}
	if obj.Doc == nil {
		obj.Doc = map[string]json.RawMessage{}
	}
	obj.Doc["id"], _ = json.Marshal(obj.ID)
	obj.Doc["version"], _ = json.Marshal(obj.Version)

	ct, nonce, err := cryptox.EncryptEntry(obj.Doc, key)
	if err != nil {
		return fmt.Errorf("seal %s %s: %w", obj.Collection, obj.ID, err)
	}
	return s.Objects(ctx).Upsert(ctx, &models.ObjectRecord{
		Collection: obj.Collection,
		ID:         obj.ID,
		Version:    obj.Version,
		Ciphertext: ct,
		Nonce:      nonce,
		UpdatedAt:  timeNow().UTC(),
	})
}

// Tombstone deletes the object with id, leaving a tombstone.
func (s *Store) Tombstone(ctx context.Context, c models.Collection, id string) error {
	return s.Objects(ctx).MarkDeleted(ctx, c, id, timeNow().UTC())
}
