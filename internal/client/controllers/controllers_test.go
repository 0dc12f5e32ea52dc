package controllers

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/datawallet/internal/client/eventbus"
	"github.com/dmitrijs2005/datawallet/internal/client/models"
	"github.com/dmitrijs2005/datawallet/internal/client/modlog"
	"github.com/dmitrijs2005/datawallet/internal/client/store"
	"github.com/dmitrijs2005/datawallet/internal/cryptox"
)

const account = "did:e:alice"

type recordingBus struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (b *recordingBus) Publish(ev eventbus.Event) {
	b.mu.Lock()
	b.events = append(b.events, ev)
	b.mu.Unlock()
}

func (b *recordingBus) namespaces() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.events))
	for i, ev := range b.events {
		out[i] = ev.Namespace
	}
	return out
}

func (b *recordingBus) reset() {
	b.mu.Lock()
	b.events = nil
	b.mu.Unlock()
}

type fakeUploader struct {
	uploads map[string][]byte
	err     error
}

func (f *fakeUploader) UploadFileContent(_ context.Context, id string, ct []byte) error {
	if f.err != nil {
		return f.err
	}
	if f.uploads == nil {
		f.uploads = map[string][]byte{}
	}
	f.uploads[id] = ct
	return nil
}

type fixture struct {
	st   *store.Store
	mods *modlog.Log
	bus  *recordingBus
	up   *fakeUploader
	c    *Controllers
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st, err := store.Open(ctx, ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Unlock(ctx, cryptox.DeriveMasterKey([]byte("pw"), []byte("salt"))))

	f := &fixture{st: st, mods: modlog.New(st, false, nil), bus: &recordingBus{}, up: &fakeUploader{}}
	f.c = New(Deps{Store: st, Modlog: f.mods, Bus: f.bus, Account: account, Uploader: f.up})
	return f
}

func (f *fixture) pending(t *testing.T) []*models.Modification {
	t.Helper()
	p, err := f.mods.Pending(context.Background(), 0, 1000)
	require.NoError(t, err)
	return p
}

func (f *fixture) groupsOf(t *testing.T, m *models.Modification) models.Groups {
	t.Helper()
	g, err := f.mods.Open(m.Payload)
	require.NoError(t, err)
	return g
}

func givenName(v string) models.AttributeValue {
	raw, _ := json.Marshal(v)
	return models.AttributeValue{Type: "GivenName", Value: raw}
}

// activeRelationship creates an incoming relationship and accepts it.
func (f *fixture) activeRelationship(t *testing.T) *models.Relationship {
	t.Helper()
	ctx := context.Background()
	rel, err := f.c.Relationships.CreateIncoming(ctx, models.NewID(models.PrefixRelationship), "did:e:bob", json.RawMessage(`{}`))
	require.NoError(t, err)
	rel, err = f.c.Relationships.Accept(ctx, rel.ID)
	require.NoError(t, err)
	return rel
}
