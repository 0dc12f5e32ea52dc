package controllers

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/datawallet/internal/client/eventbus"
	"github.com/dmitrijs2005/datawallet/internal/client/models"
	"github.com/dmitrijs2005/datawallet/internal/client/modlog"
	"github.com/dmitrijs2005/datawallet/internal/client/store"
	"github.com/dmitrijs2005/datawallet/internal/common"
	"github.com/dmitrijs2005/datawallet/internal/cryptox"
)

// ErrNoUploader is returned by UploadContent when no backbone is configured.
var ErrNoUploader = errors.New("no file uploader configured")

type Files struct {
	base
	coll     *store.Collection[models.File, *models.File]
	uploader FileUploader
}

func (c *Files) Get(ctx context.Context, id string) (*models.File, error) {
	return c.coll.Get(ctx, id)
}

func (c *Files) List(ctx context.Context) ([]*models.File, error) {
	return c.coll.List(ctx)
}

func (c *Files) Create(ctx context.Context, title, mimetype string) (*models.File, error) {
	if title == "" {
		return nil, fmt.Errorf("file without title: %w", common.ErrValidation)
	}
	f := &models.File{
		Base:      models.Base{ID: models.NewID(models.PrefixFile)},
		Owner:     c.account,
		Title:     title,
		Mimetype:  mimetype,
		CreatedAt: now(),
	}
	err := c.st.Unit(ctx, func(ctx context.Context) error {
		if err := createObject(ctx, &c.base, c.coll, f); err != nil {
			return err
		}
		c.emit(ctx, eventbus.FileChanged, f.ID, f)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

// UploadContent encrypts content under a fresh content key, uploads the
// ciphertext and then records the key on the file. This is the one
// controller call that talks to the backbone; the upload happens outside
// any unit of work.
func (c *Files) UploadContent(ctx context.Context, id string, content []byte) (*models.File, error) {
	if c.uploader == nil {
		return nil, ErrNoUploader
	}
	if _, err := c.coll.Get(ctx, id); err != nil {
		return nil, fmt.Errorf("file %s: %w", id, err)
	}

	enc, err := cryptox.EncryptContent(content)
	if err != nil {
		return nil, err
	}
	if err := c.uploader.UploadFileContent(ctx, id, enc.Ciphertext); err != nil {
		return nil, err
	}

	var f *models.File
	err = c.st.Unit(ctx, func(ctx context.Context) error {
		cur, before, err := load(ctx, c.coll, id)
		if err != nil {
			return err
		}
		cur.SecretKey = enc.Key
		cur.Nonce = enc.Nonce
		cur.Size = int64(len(content))
		if _, err := updateObject(ctx, &c.base, c.coll, before, cur); err != nil {
			return err
		}
		c.emit(ctx, eventbus.FileChanged, cur.ID, cur)
		f = cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

// OpenContent decrypts ciphertext downloaded for f.
func (c *Files) OpenContent(f *models.File, ciphertext []byte) ([]byte, error) {
	if len(f.SecretKey) == 0 {
		return nil, fmt.Errorf("file %s has no content key: %w", f.ID, common.ErrValidation)
	}
	return cryptox.DecryptContent(&cryptox.EncryptedContent{Ciphertext: ciphertext, Key: f.SecretKey, Nonce: f.Nonce})
}

// ClaimOwnership transfers the file to newOwner unless ownership is locked.
func (c *Files) ClaimOwnership(ctx context.Context, id, newOwner string) (*models.File, bool, error) {
	return c.mutate(ctx, id, eventbus.FileOwnershipClaimed, func(f *models.File) (bool, error) {
		if f.Owner == newOwner {
			return false, nil
		}
		if f.OwnershipIsLocked {
			return false, fmt.Errorf("ownership of file %s is locked: %w", id, common.ErrIntegrity)
		}
		f.Owner = newOwner
		return true, nil
	})
}

func (c *Files) LockOwnership(ctx context.Context, id string) (*models.File, bool, error) {
	return c.mutate(ctx, id, eventbus.FileOwnershipLocked, func(f *models.File) (bool, error) {
		if f.OwnershipIsLocked {
			return false, nil
		}
		f.OwnershipIsLocked = true
		return true, nil
	})
}

func (c *Files) mutate(ctx context.Context, id, namespace string, fn func(*models.File) (bool, error)) (*models.File, bool, error) {
	var f *models.File
	var changed bool
	err := c.st.Unit(ctx, func(ctx context.Context) error {
		cur, before, err := load(ctx, c.coll, id)
		if err != nil {
			return err
		}
		f = cur
		ok, err := fn(cur)
		if err != nil || !ok {
			return err
		}
		if changed, err = updateObject(ctx, &c.base, c.coll, before, cur); err != nil {
			return err
		}
		c.emit(ctx, namespace, cur.ID, cur)
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return f, changed, nil
}

// RefreshCache records that the cached content of the file was refreshed.
// Other devices learn about it through a CacheChanged modification.
func (c *Files) RefreshCache(ctx context.Context, id string) (*models.File, error) {
	var f *models.File
	err := c.st.Unit(ctx, func(ctx context.Context) error {
		cur, err := c.coll.Get(ctx, id)
		if err != nil {
			return fmt.Errorf("file %s: %w", id, err)
		}
		at := now()
		cur.CachedAt = &at
		if err := c.coll.Update(ctx, cur); err != nil {
			return err
		}
		if _, err := c.mods.Enqueue(ctx, cacheChanged(cur)); err != nil {
			return err
		}
		f = cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

func cacheChanged(obj models.Object) modlog.Change {
	return modlog.Change{ObjectID: obj.ObjectID(), Collection: obj.Collection(), Type: models.ModificationCacheChanged}
}
