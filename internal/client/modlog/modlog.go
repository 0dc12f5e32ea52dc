// Package modlog is the datawallet modification log: the durable FIFO of
// local mutations waiting to be pushed to the backbone.
//
// Domain controllers enqueue a modification inside the same unit of work
// that writes the object, so the object and its pending modification commit
// together. The sync coordinator reads pending entries in seq order, pushes
// them and acknowledges the ones the backbone accepted.
//
// Consecutive unsynced mutations of one object are coalesced when enabled:
//
//   - an Update following an unsynced Create or Update is merged into it;
//   - a Delete removes every unsynced entry of the object and is queued alone;
//   - a CacheChanged following an unsynced CacheChanged is dropped.
//
// Entries belonging to a batch that is being pushed are never rewritten.
package modlog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/datawallet/internal/client/models"
	"github.com/dmitrijs2005/datawallet/internal/client/store"
	"github.com/dmitrijs2005/datawallet/internal/common"
	"github.com/dmitrijs2005/datawallet/internal/cryptox"
	"github.com/dmitrijs2005/datawallet/internal/logging"
)

// PayloadKey names the subkey sealing modification payloads. It is derived
// from the identity's master key, so every device of the identity shares it.
const PayloadKey = "datawallet"

var timeNow = time.Now

// Change is one local mutation to record.
type Change struct {
	ObjectID   string
	Collection models.Collection
	Type       models.ModificationType
	// Groups holds the property groups written by Create (all of them) or
	// Update (the changed ones). Ignored for Delete and CacheChanged.
	Groups models.Groups
}

type Log struct {
	st       *store.Store
	coalesce bool
	log      logging.Logger

	mu     sync.Mutex
	flight int64
}

func New(st *store.Store, coalesce bool, log logging.Logger) *Log {
	if log == nil {
		log = logging.Nop()
	}
	return &Log{st: st, coalesce: coalesce, log: log.With("module", "modlog")}
}

// IdempotencyKey derives the durable upload key of one entry. The nonce
// makes keys of distinct entries for the same object distinct.
func IdempotencyKey(objectID string, datawalletVersion int, nonce string) string {
	h := sha256.New()
	h.Write([]byte(objectID))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(datawalletVersion)))
	h.Write([]byte{0})
	h.Write([]byte(nonce))
	return hex.EncodeToString(h.Sum(nil))
}

func newKey(objectID string) string {
	return IdempotencyKey(objectID, common.DatawalletVersion, uuid.NewString())
}

// BeginFlight marks every entry with seq <= upTo as part of the batch being
// pushed. Such entries are left alone by coalescing until EndFlight.
func (l *Log) BeginFlight(upTo int64) {
	l.mu.Lock()
	l.flight = upTo
	l.mu.Unlock()
}

func (l *Log) EndFlight() {
	l.mu.Lock()
	l.flight = 0
	l.mu.Unlock()
}

func (l *Log) floor() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.flight
}

// Seal encrypts groups into a modification payload.
func (l *Log) Seal(groups models.Groups) ([]byte, error) {
	key, err := l.st.Key(PayloadKey)
	if err != nil {
		return nil, err
	}
	return cryptox.Seal(groups, key)
}

// Open decrypts a modification payload. Empty payloads open to no groups.
func (l *Log) Open(payload []byte) (models.Groups, error) {
	if len(payload) == 0 {
		return models.Groups{}, nil
	}
	key, err := l.st.Key(PayloadKey)
	if err != nil {
		return nil, err
	}
	var g models.Groups
	if err := cryptox.Open(payload, key, &g); err != nil {
		return nil, fmt.Errorf("open modification payload: %w", err)
	}
	return g, nil
}

// Enqueue records ch and returns the queued entry, which may be an earlier
// entry that ch was merged into. It joins the unit of work carried by ctx.
func (l *Log) Enqueue(ctx context.Context, ch Change) (*models.Modification, error) {
	if !ch.Type.Valid() {
		return nil, fmt.Errorf("modification type %q: %w", ch.Type, common.ErrValidation)
	}
	if !ch.Collection.Known() {
		return nil, fmt.Errorf("collection %q: %w", ch.Collection, common.ErrValidation)
	}

	var out *models.Modification
	err := l.st.Unit(ctx, func(ctx context.Context) error {
		var err error
		out, err = l.enqueue(ctx, ch)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (l *Log) enqueue(ctx context.Context, ch Change) (*models.Modification, error) {
	repo := l.st.Modifications(ctx)

	if l.coalesce {
		floor := l.floor()
		queued, err := repo.ListForObject(ctx, ch.ObjectID, floor)
		if err != nil {
			return nil, err
		}

		if n := len(queued); n > 0 {
			last := queued[n-1]
			switch ch.Type {
			case models.ModificationUpdate:
				if last.Type == models.ModificationCreate || last.Type == models.ModificationUpdate {
					return l.merge(ctx, last, ch.Groups)
				}
			case models.ModificationDelete:
				if err := repo.DeleteObjectAfter(ctx, ch.ObjectID, floor); err != nil {
					return nil, err
				}
				l.log.Debug(ctx, "delete supersedes queued modifications", "object_id", ch.ObjectID, "dropped", n)
			case models.ModificationCacheChanged:
				if last.Type == models.ModificationCacheChanged {
					return last, nil
				}
			}
		}
	}

	m := &models.Modification{
		IdempotencyKey:    newKey(ch.ObjectID),
		ObjectID:          ch.ObjectID,
		Collection:        ch.Collection,
		Type:              ch.Type,
		LocalCreatedAt:    timeNow().UTC(),
		DatawalletVersion: common.DatawalletVersion,
	}
	if ch.Type == models.ModificationCreate || ch.Type == models.ModificationUpdate {
		payload, err := l.Seal(ch.Groups)
		if err != nil {
			return nil, err
		}
		m.Payload = payload
	}

	seq, err := repo.Insert(ctx, m)
	if err != nil {
		return nil, err
	}
	m.Seq = seq
	return m, nil
}

// merge overlays groups onto the queued entry. The merged entry gets a new
// idempotency key: its previous key may already be known to the backbone
// from an upload whose acknowledgement was lost.
func (l *Log) merge(ctx context.Context, into *models.Modification, groups models.Groups) (*models.Modification, error) {
	current, err := l.Open(into.Payload)
	if err != nil {
		return nil, err
	}
	for g, props := range groups {
		current[g] = props
	}
	payload, err := l.Seal(current)
	if err != nil {
		return nil, err
	}

	into.Payload = payload
	into.IdempotencyKey = newKey(into.ObjectID)
	into.LocalCreatedAt = timeNow().UTC()
	if err := l.st.Modifications(ctx).Replace(ctx, into); err != nil {
		return nil, err
	}
	return into, nil
}

// Pending returns up to limit queued entries with seq > afterSeq, FIFO.
func (l *Log) Pending(ctx context.Context, afterSeq int64, limit int) ([]*models.Modification, error) {
	return l.st.Modifications(ctx).ListAfter(ctx, afterSeq, limit)
}

func (l *Log) MaxSeq(ctx context.Context) (int64, error) {
	return l.st.Modifications(ctx).MaxSeq(ctx)
}

func (l *Log) Count(ctx context.Context) (int, error) {
	return l.st.Modifications(ctx).Count(ctx)
}

// Ack removes entries the backbone acknowledged.
func (l *Log) Ack(ctx context.Context, seqs []int64) error {
	return l.st.Modifications(ctx).DeleteSeqs(ctx, seqs)
}

// DropObject discards the unsynced entries of objectID that are not in flight.
func (l *Log) DropObject(ctx context.Context, objectID string) error {
	return l.st.Modifications(ctx).DeleteObjectAfter(ctx, objectID, l.floor())
}

// PendingGroups reports which property groups of objectID are covered by
// queued entries, and whether a Delete is queued.
func (l *Log) PendingGroups(ctx context.Context, objectID string) (map[models.Group]bool, bool, error) {
	queued, err := l.st.Modifications(ctx).ListForObject(ctx, objectID, 0)
	if err != nil {
		return nil, false, err
	}

	covered := map[models.Group]bool{}
	deleted := false
	for _, m := range queued {
		switch m.Type {
		case models.ModificationDelete:
			deleted = true
		case models.ModificationCreate, models.ModificationUpdate:
			g, err := l.Open(m.Payload)
			if err != nil {
				return nil, false, err
			}
			for group := range g {
				covered[group] = true
			}
		}
	}
	return covered, deleted, nil
}
