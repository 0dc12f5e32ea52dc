package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/datawallet/internal/client/backbone"
	"github.com/dmitrijs2005/datawallet/internal/client/controllers"
	"github.com/dmitrijs2005/datawallet/internal/client/eventbus"
	"github.com/dmitrijs2005/datawallet/internal/client/models"
	"github.com/dmitrijs2005/datawallet/internal/client/modlog"
	"github.com/dmitrijs2005/datawallet/internal/client/processors"
	"github.com/dmitrijs2005/datawallet/internal/client/store"
	"github.com/dmitrijs2005/datawallet/internal/cryptox"
)

const (
	account = "did:e:alice"
	peer    = "did:e:bob"
)

// fakeBackbone keeps the events and datawallet of one identity in memory.
type fakeBackbone struct {
	mu       sync.Mutex
	events   []models.ExternalEvent
	mods     []models.RemoteModification
	keys     map[string]int64
	reject   map[string]string
	reported []backbone.SyncErrorItem

	eventCalls int
	modCalls   int
	pushCalls  int

	// loseAck stores the next push but fails it, like a dropped response.
	loseAck bool
	// shuffle reverses event pages and redelivers the event at the cursor.
	shuffle bool
	// hangEvents makes event fetches wait for their context.
	hangEvents bool
	// hangPush makes pushes wait for their context and store nothing.
	hangPush bool
	// gate, when set, holds modification fetches until closed.
	gate chan struct{}
}

func newFakeBackbone() *fakeBackbone {
	return &fakeBackbone{keys: map[string]int64{}, reject: map[string]string{}}
}

func (f *fakeBackbone) addEvent(typ processors.EventType, payload string) *models.ExternalEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := int64(len(f.events) + 1)
	f.events = append(f.events, models.ExternalEvent{
		ID:      fmt.Sprintf("EVT%03d", idx),
		Index:   idx,
		Type:    string(typ),
		Payload: json.RawMessage(payload),
	})
	return &f.events[idx-1]
}

func (f *fakeBackbone) calls() (events, mods, pushes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.eventCalls, f.modCalls, f.pushCalls
}

func (f *fakeBackbone) storedMods() []models.RemoteModification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.RemoteModification(nil), f.mods...)
}

func (f *fakeBackbone) reports() []backbone.SyncErrorItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]backbone.SyncErrorItem(nil), f.reported...)
}

// device is the view of the fake backbone one device has.
type device struct {
	*fakeBackbone
	id string
}

func (d *device) GetExternalEvents(ctx context.Context, cursor int64, pageSize int) ([]models.ExternalEvent, error) {
	d.mu.Lock()
	d.eventCalls++
	hang := d.hangEvents
	d.mu.Unlock()
	if hang {
		<-ctx.Done()
		return nil, fmt.Errorf("backbone: request canceled: %w", ctx.Err())
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	var page []models.ExternalEvent
	for _, ev := range d.events {
		if ev.Index > cursor && len(page) < pageSize {
			page = append(page, ev)
		}
	}
	if d.shuffle && len(page) > 0 {
		for i, j := 0, len(page)-1; i < j; i, j = i+1, j-1 {
			page[i], page[j] = page[j], page[i]
		}
		if cursor > 0 {
			page = append(page, d.events[cursor-1])
		}
	}
	return page, nil
}

func (d *device) GetModifications(ctx context.Context, localIndex int64, pageSize int) ([]models.RemoteModification, error) {
	d.mu.Lock()
	d.modCalls++
	gate := d.gate
	d.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	var page []models.RemoteModification
	for _, m := range d.mods {
		if m.Index > localIndex && len(page) < pageSize {
			page = append(page, m)
		}
	}
	return page, nil
}

func (d *device) PushModifications(ctx context.Context, items []backbone.PushItem) ([]backbone.PushResult, error) {
	d.mu.Lock()
	d.pushCalls++
	hang := d.hangPush
	d.mu.Unlock()
	if hang {
		<-ctx.Done()
		return nil, fmt.Errorf("backbone: request canceled: %w", ctx.Err())
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	results := make([]backbone.PushResult, 0, len(items))
	for _, it := range items {
		if msg, ok := d.reject[it.ObjectID]; ok {
			results = append(results, backbone.PushResult{IdempotencyKey: it.IdempotencyKey, Error: msg})
			continue
		}
		idx, ok := d.keys[it.IdempotencyKey]
		if !ok {
			idx = int64(len(d.mods) + 1)
			d.keys[it.IdempotencyKey] = idx
			d.mods = append(d.mods, models.RemoteModification{
				Index:             idx,
				ObjectID:          it.ObjectID,
				Collection:        it.Collection,
				Type:              it.Type,
				Payload:           it.Payload,
				DatawalletVersion: it.DatawalletVersion,
				CreatedByDevice:   d.id,
			})
		}
		results = append(results, backbone.PushResult{IdempotencyKey: it.IdempotencyKey, Index: idx})
	}

	if d.loseAck {
		d.loseAck = false
		return nil, fmt.Errorf("%w: connection reset", backbone.ErrUnavailable)
	}
	return results, nil
}

func (d *device) ReportSyncErrors(_ context.Context, items []backbone.SyncErrorItem) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reported = append(d.reported, items...)
	for _, it := range items {
		for i := range d.events {
			if d.events[i].ID == it.ExternalEventID {
				d.events[i].SyncErrorCount++
			}
		}
	}
	return nil
}

type recordingBus struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (b *recordingBus) Publish(ev eventbus.Event) {
	b.mu.Lock()
	b.events = append(b.events, ev)
	b.mu.Unlock()
}

func (b *recordingBus) all() []eventbus.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]eventbus.Event(nil), b.events...)
}

func (b *recordingBus) count(ns string) int {
	n := 0
	for _, ev := range b.all() {
		if ev.Namespace == ns {
			n++
		}
	}
	return n
}

func (b *recordingBus) reset() {
	b.mu.Lock()
	b.events = nil
	b.mu.Unlock()
}

// client is one device of the account under test.
type client struct {
	st    *store.Store
	mods  *modlog.Log
	bus   *recordingBus
	c     *controllers.Controllers
	coord *Coordinator
}

var masterKey = cryptox.DeriveMasterKey([]byte("correct horse"), []byte("salt-of-alice"))

func newClient(t *testing.T, fb *fakeBackbone, deviceID string, cfg Config, wrap ...func(Processor) Processor) *client {
	t.Helper()
	ctx := context.Background()

	st, err := store.Open(ctx, ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Unlock(ctx, masterKey))

	bus := &recordingBus{}
	mods := modlog.New(st, true, nil)
	c := controllers.New(controllers.Deps{Store: st, Modlog: mods, Bus: bus, Account: account})

	var procs Processor = processors.New(c, account, nil)
	for _, w := range wrap {
		procs = w(procs)
	}

	coord := New(Deps{
		Store:      st,
		Modlog:     mods,
		Processors: procs,
		Backbone:   &device{fakeBackbone: fb, id: deviceID},
		Bus:        bus,
		Account:    account,
		DeviceID:   deviceID,
		Config:     cfg,
	})
	return &client{st: st, mods: mods, bus: bus, c: c, coord: coord}
}

func relID(n int) string { return fmt.Sprintf("REL%017d", n) }

func statusEvent(rel string, status models.RelationshipStatus) (processors.EventType, string) {
	return processors.RelationshipStatusChanged,
		fmt.Sprintf(`{"relationshipId":%q,"peer":%q,"status":%q}`, rel, peer, status)
}

func peerDeletionEvent(typ processors.EventType, rel string) (processors.EventType, string) {
	return typ, fmt.Sprintf(`{"relationshipId":%q,"deletionDate":"2025-05-01T00:00:00.000Z"}`, rel)
}
