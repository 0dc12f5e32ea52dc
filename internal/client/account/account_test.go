package account

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/datawallet/internal/client/backbone"
	"github.com/dmitrijs2005/datawallet/internal/client/eventbus"
	"github.com/dmitrijs2005/datawallet/internal/client/models"
	"github.com/dmitrijs2005/datawallet/internal/client/push"
	"github.com/dmitrijs2005/datawallet/internal/client/syncer"
	"github.com/dmitrijs2005/datawallet/internal/common"
)

type identity struct {
	salt     []byte
	verifier []byte
	address  string
}

// fakeConnector is an in-memory backbone for several identities.
type fakeConnector struct {
	mu         sync.Mutex
	identities map[string]*identity
	apis       map[string]*fakeAPI
	connectErr error
	notify     chan push.Notification
}

func newFakeConnector() *fakeConnector {
	return &fakeConnector{identities: map[string]*identity{}, apis: map[string]*fakeAPI{}}
}

func (f *fakeConnector) Salt(_ context.Context, username string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.identities[username]; ok {
		return id.salt, nil
	}
	return common.GenerateRandByteArray(saltSize), nil
}

func (f *fakeConnector) Register(_ context.Context, username string, salt, verifier []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.identities[username]; ok {
		return "", fmt.Errorf("%w: %s", backbone.ErrConflict, username)
	}
	id := &identity{salt: salt, verifier: verifier, address: "did:e:test:dids:" + username}
	f.identities[username] = id
	f.apis[id.address] = &fakeAPI{}
	return id.address, nil
}

func (f *fakeConnector) Connect(_ context.Context, username string, verifier []byte, _ string) (*Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return nil, f.connectErr
	}
	id, ok := f.identities[username]
	if !ok || !bytes.Equal(id.verifier, verifier) {
		return nil, fmt.Errorf("%w: bad credentials", backbone.ErrUnauthorized)
	}
	conn := &Connection{API: f.apis[id.address], Address: id.address}
	if f.notify != nil {
		ch := f.notify
		conn.Listen = func(ctx context.Context, notify func(push.Notification)) error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case n := <-ch:
					notify(n)
				}
			}
		}
	}
	return conn, nil
}

func (f *fakeConnector) api(address string) *fakeAPI {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.apis[address]
}

// fakeAPI accepts every push and has nothing to deliver.
type fakeAPI struct {
	mu         sync.Mutex
	pushed     []backbone.PushItem
	eventCalls int
}

func (a *fakeAPI) GetExternalEvents(context.Context, int64, int) ([]models.ExternalEvent, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.eventCalls++
	return nil, nil
}

func (a *fakeAPI) GetModifications(context.Context, int64, int) ([]models.RemoteModification, error) {
	return nil, nil
}

func (a *fakeAPI) PushModifications(_ context.Context, items []backbone.PushItem) ([]backbone.PushResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]backbone.PushResult, 0, len(items))
	for _, it := range items {
		a.pushed = append(a.pushed, it)
		out = append(out, backbone.PushResult{IdempotencyKey: it.IdempotencyKey, Index: int64(len(a.pushed))})
	}
	return out, nil
}

func (a *fakeAPI) ReportSyncErrors(context.Context, []backbone.SyncErrorItem) error { return nil }

func (a *fakeAPI) UploadFileContent(context.Context, string, []byte) error { return nil }

func (a *fakeAPI) counts() (pushed, eventCalls int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pushed), a.eventCalls
}

func opts(fc *fakeConnector, dir, username, pass string) Options {
	return Options{
		Username:   username,
		Passphrase: []byte(pass),
		DataDir:    dir,
		Connector:  fc,
		Coalesce:   true,
	}
}

func TestOpen_RegisterAndReopen(t *testing.T) {
	ctx := context.Background()
	fc := newFakeConnector()
	dir := t.TempDir()

	o := opts(fc, dir, "alice", "correct horse")
	o.Register = true
	a, err := Open(ctx, o)
	require.NoError(t, err)
	assert.Equal(t, "did:e:test:dids:alice", a.Address)
	assert.False(t, a.Offline)
	device := a.DeviceID
	_, err = a.Controllers.Settings.Create(ctx, "theme", json.RawMessage(`"dark"`), "", "")
	require.NoError(t, err)
	require.NoError(t, a.Close())
	require.NoError(t, a.Close(), "closing twice is harmless")

	a, err = Open(ctx, opts(fc, dir, "alice", "correct horse"))
	require.NoError(t, err)
	defer a.Close()
	assert.Equal(t, device, a.DeviceID)
	s, err := a.Controllers.Settings.GetByKey(ctx, "theme")
	require.NoError(t, err)
	assert.JSONEq(t, `"dark"`, string(s.Value))
}

func TestOpen_WrongPassphrase(t *testing.T) {
	ctx := context.Background()
	fc := newFakeConnector()
	dir := t.TempDir()

	o := opts(fc, dir, "alice", "correct horse")
	o.Register = true
	a, err := Open(ctx, o)
	require.NoError(t, err)
	require.NoError(t, a.Close())

	_, err = Open(ctx, opts(fc, dir, "alice", "battery staple"))
	require.ErrorIs(t, err, common.ErrorUnauthorized)

	// A fresh device learns the salt from the backbone and is refused there.
	_, err = Open(ctx, opts(fc, t.TempDir(), "alice", "battery staple"))
	require.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestOpen_FreshDeviceSignsIn(t *testing.T) {
	ctx := context.Background()
	fc := newFakeConnector()

	o := opts(fc, t.TempDir(), "alice", "pw")
	o.Register = true
	a, err := Open(ctx, o)
	require.NoError(t, err)
	require.NoError(t, a.Close())

	b, err := Open(ctx, opts(fc, t.TempDir(), "alice", "pw"))
	require.NoError(t, err)
	defer b.Close()
	assert.Equal(t, a.Address, b.Address)
	assert.NotEqual(t, a.DeviceID, b.DeviceID)
}

func TestOpen_RegisterTwiceOnDevice(t *testing.T) {
	ctx := context.Background()
	fc := newFakeConnector()
	dir := t.TempDir()

	o := opts(fc, dir, "alice", "pw")
	o.Register = true
	a, err := Open(ctx, o)
	require.NoError(t, err)
	require.NoError(t, a.Close())

	_, err = Open(ctx, o)
	require.ErrorIs(t, err, common.ErrorAlreadyExists)
}

func TestOpen_Validation(t *testing.T) {
	fc := newFakeConnector()
	for _, o := range []Options{
		opts(fc, "", "", "pw"),
		opts(fc, "", "../etc", "pw"),
		opts(fc, "", "alice", ""),
		{Username: "alice", Passphrase: []byte("pw")},
	} {
		_, err := Open(context.Background(), o)
		require.ErrorIs(t, err, common.ErrValidation)
	}
}

func TestOpen_OfflineFallback(t *testing.T) {
	ctx := context.Background()
	fc := newFakeConnector()
	dir := t.TempDir()

	o := opts(fc, dir, "alice", "pw")
	o.Register = true
	a, err := Open(ctx, o)
	require.NoError(t, err)
	require.NoError(t, a.Close())

	fc.connectErr = fmt.Errorf("%w: dial tcp", backbone.ErrUnavailable)
	a, err = Open(ctx, opts(fc, dir, "alice", "pw"))
	require.NoError(t, err)
	defer a.Close()
	assert.True(t, a.Offline)
	assert.Equal(t, "did:e:test:dids:alice", a.Address)

	_, err = a.Controllers.Settings.Create(ctx, "k", json.RawMessage(`1`), "", "")
	require.NoError(t, err)

	_, err = a.Sync(ctx)
	var se *syncer.SyncError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, syncer.CodeUnavailable, se.Code)

	// Without local state there is nothing to fall back to.
	_, err = Open(ctx, opts(fc, t.TempDir(), "alice", "pw"))
	require.ErrorIs(t, err, backbone.ErrUnavailable)
}

func TestRuntime_AccountsAreIsolated(t *testing.T) {
	ctx := context.Background()
	fc := newFakeConnector()
	rt := NewRuntime(nil)
	defer rt.Close()

	var mu sync.Mutex
	accounts := map[string]int{}
	unsubscribe := rt.Bus().Subscribe("consumption.*", func(ev eventbus.Event) {
		mu.Lock()
		accounts[ev.Account]++
		mu.Unlock()
	})
	defer unsubscribe()

	var opened []*Account
	for _, name := range []string{"bob", "alice"} {
		o := opts(fc, "", name, "pw-"+name)
		o.Register = true
		a, err := rt.Open(ctx, o)
		require.NoError(t, err)
		opened = append(opened, a)
	}
	alice, err := rt.Get("did:e:test:dids:alice")
	require.NoError(t, err)
	assert.Same(t, opened[1], alice)
	assert.Equal(t, []*Account{opened[1], opened[0]}, rt.Accounts())

	_, err = alice.Controllers.Settings.Create(ctx, "a", json.RawMessage(`1`), "", "")
	require.NoError(t, err)
	_, err = alice.Controllers.Settings.Create(ctx, "b", json.RawMessage(`2`), "", "")
	require.NoError(t, err)

	results, err := rt.SyncAll(ctx)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 2, results["did:e:test:dids:alice"].Pushed)
	assert.Zero(t, results["did:e:test:dids:bob"].Pushed)

	pushed, _ := fc.api("did:e:test:dids:bob").counts()
	assert.Zero(t, pushed)
	list, err := opened[0].Controllers.Settings.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return accounts["did:e:test:dids:alice"] == 2
	}, time.Second, 5*time.Millisecond)
	mu.Lock()
	assert.Zero(t, accounts["did:e:test:dids:bob"])
	mu.Unlock()

	require.NoError(t, rt.CloseAccount("did:e:test:dids:bob"))
	_, err = rt.Get("did:e:test:dids:bob")
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestRuntime_DuplicateOpen(t *testing.T) {
	ctx := context.Background()
	fc := newFakeConnector()
	rt := NewRuntime(nil)
	defer rt.Close()

	o := opts(fc, t.TempDir(), "alice", "pw")
	o.Register = true
	_, err := rt.Open(ctx, o)
	require.NoError(t, err)

	_, err = rt.Open(ctx, opts(fc, t.TempDir(), "alice", "pw"))
	require.ErrorIs(t, err, common.ErrorAlreadyExists)
}

func TestAccount_PushTriggersSync(t *testing.T) {
	ctx := context.Background()
	fc := newFakeConnector()
	fc.notify = make(chan push.Notification)

	o := opts(fc, "", "alice", "pw")
	o.Register = true
	o.Push = true
	a, err := Open(ctx, o)
	require.NoError(t, err)

	fc.notify <- push.Notification{Type: "ExternalEventCreated", Index: 1}
	api := fc.api(a.Address)
	require.Eventually(t, func() bool {
		_, calls := api.counts()
		return calls >= 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, a.Close())
}
