// Package controllers owns the lifecycle and invariants of every
// synchronizable object type. Controllers are the only writers of the
// object store: each mutating method validates against persisted state,
// writes the new state, enqueues a datawallet modification and returns the
// updated object, all in one unit of work. Domain events are emitted once
// the unit commits.
package controllers

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/datawallet/internal/client/eventbus"
	"github.com/dmitrijs2005/datawallet/internal/client/models"
	"github.com/dmitrijs2005/datawallet/internal/client/modlog"
	"github.com/dmitrijs2005/datawallet/internal/client/store"
	"github.com/dmitrijs2005/datawallet/internal/logging"
)

var timeNow = time.Now

func now() time.Time { return timeNow().UTC() }

// FileUploader stores encrypted file content on the backbone.
type FileUploader interface {
	UploadFileContent(ctx context.Context, fileID string, ciphertext []byte) error
}

type Deps struct {
	Store    *store.Store
	Modlog   *modlog.Log
	Bus      eventbus.Publisher
	Account  string
	Uploader FileUploader
	Logger   logging.Logger
}

// Controllers groups the controllers of one account.
type Controllers struct {
	Attributes       *Attributes
	Relationships    *Relationships
	Requests         *Requests
	Notifications    *Notifications
	Settings         *Settings
	Messages         *Messages
	Files            *Files
	Devices          *Devices
	IdentityDeletion *IdentityDeletion
}

func New(d Deps) *Controllers {
	if d.Logger == nil {
		d.Logger = logging.Nop()
	}
	b := base{
		st:      d.Store,
		mods:    d.Modlog,
		bus:     d.Bus,
		account: d.Account,
		log:     d.Logger.With("module", "controllers", "account", d.Account),
	}
	return &Controllers{
		Attributes:       &Attributes{base: b, coll: store.For[models.Attribute](d.Store)},
		Relationships:    &Relationships{base: b, coll: store.For[models.Relationship](d.Store)},
		Requests:         &Requests{base: b, coll: store.For[models.LocalRequest](d.Store)},
		Notifications:    &Notifications{base: b, coll: store.For[models.Notification](d.Store)},
		Settings:         &Settings{base: b, coll: store.For[models.Setting](d.Store)},
		Messages:         &Messages{base: b, coll: store.For[models.Message](d.Store), rels: store.For[models.Relationship](d.Store)},
		Files:            &Files{base: b, coll: store.For[models.File](d.Store), uploader: d.Uploader},
		Devices:          &Devices{base: b, coll: store.For[models.Device](d.Store)},
		IdentityDeletion: &IdentityDeletion{base: b, coll: store.For[models.IdentityDeletionProcess](d.Store)},
	}
}

type base struct {
	st      *store.Store
	mods    *modlog.Log
	bus     eventbus.Publisher
	account string
	log     logging.Logger
}

// emit publishes a domain event once the current unit commits.
func (b *base) emit(ctx context.Context, namespace, objectID string, data any) {
	ev := eventbus.Event{Namespace: namespace, Account: b.account, ObjectID: objectID, Data: data}
	store.AfterCommit(ctx, func() {
		eventbus.Emit(ctx, b.bus, ev)
	})
}

func createObject[T any, PT interface {
	*T
	models.Object
}](ctx context.Context, b *base, coll *store.Collection[T, PT], obj PT) error {
	if err := coll.Create(ctx, obj); err != nil {
		return err
	}
	groups, err := models.SplitProperties(obj)
	if err != nil {
		return err
	}
	_, err = b.mods.Enqueue(ctx, modlog.Change{
		ObjectID:   obj.ObjectID(),
		Collection: coll.Name(),
		Type:       models.ModificationCreate,
		Groups:     groups,
	})
	return err
}

// updateObject writes obj and enqueues the groups that differ from before.
// Nothing is written when no group changed.
func updateObject[T any, PT interface {
	*T
	models.Object
}](ctx context.Context, b *base, coll *store.Collection[T, PT], before models.Groups, obj PT) (bool, error) {
	after, err := models.SplitProperties(obj)
	if err != nil {
		return false, err
	}
	diff := models.DiffGroups(before, after)
	if len(diff) == 0 {
		return false, nil
	}
	if err := coll.Update(ctx, obj); err != nil {
		return false, err
	}
	_, err = b.mods.Enqueue(ctx, modlog.Change{
		ObjectID:   obj.ObjectID(),
		Collection: coll.Name(),
		Type:       models.ModificationUpdate,
		Groups:     diff,
	})
	return err == nil, err
}

func deleteObject(ctx context.Context, b *base, c models.Collection, id string) error {
	if err := b.st.Tombstone(ctx, c, id); err != nil {
		return err
	}
	_, err := b.mods.Enqueue(ctx, modlog.Change{ObjectID: id, Collection: c, Type: models.ModificationDelete})
	return err
}

// load fetches id and snapshots its groups for a later updateObject.
func load[T any, PT interface {
	*T
	models.Object
}](ctx context.Context, coll *store.Collection[T, PT], id string) (PT, models.Groups, error) {
	obj, err := coll.Get(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("%s %s: %w", coll.Name(), id, err)
	}
	before, err := models.SplitProperties(obj)
	if err != nil {
		return nil, nil, err
	}
	return obj, before, nil
}
