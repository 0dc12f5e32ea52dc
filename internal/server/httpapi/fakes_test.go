package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/datawallet/internal/common"
	"github.com/dmitrijs2005/datawallet/internal/server/auth"
	"github.com/dmitrijs2005/datawallet/internal/server/models"
	"github.com/dmitrijs2005/datawallet/internal/server/services"
)

// fakeIdentities accepts "tok-<identity id>" as access token.
type fakeIdentities struct {
	mu        sync.Mutex
	users     map[string]*models.Identity
	lastLogin [4]string
	refreshed string
}

func newFakeIdentities() *fakeIdentities {
	return &fakeIdentities{users: map[string]*models.Identity{}}
}

func (f *fakeIdentities) Register(_ context.Context, username string, salt, verifier []byte) (*models.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if username == "" {
		return nil, common.ErrValidation
	}
	if _, ok := f.users[username]; ok {
		return nil, common.ErrorAlreadyExists
	}
	id := &models.Identity{ID: "id-" + username, Username: username, Address: "did:e:test:dids:" + username, Salt: salt, Verifier: verifier}
	f.users[username] = id
	return id, nil
}

func (f *fakeIdentities) GetSalt(_ context.Context, username string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[username]; ok {
		return u.Salt, nil
	}
	return []byte("decoy-salt-decoy"), nil
}

func (f *fakeIdentities) Login(_ context.Context, clientID, clientSecret, username, password string) (*services.TokenPair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastLogin = [4]string{clientID, clientSecret, username, password}
	if clientID != "cli" {
		return nil, common.ErrInvalidCredentials
	}
	u, ok := f.users[username]
	if !ok || password != "0102" {
		return nil, common.ErrorUnauthorized
	}
	return &services.TokenPair{AccessToken: "tok-" + u.ID, RefreshToken: "rt-" + u.ID, ExpiresIn: time.Hour, Address: u.Address}, nil
}

func (f *fakeIdentities) Refresh(_ context.Context, clientID, _, refreshToken string) (*services.TokenPair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshed = refreshToken
	if clientID != "cli" {
		return nil, common.ErrInvalidCredentials
	}
	id, ok := strings.CutPrefix(refreshToken, "rt-")
	if !ok {
		return nil, common.ErrorUnauthorized
	}
	return &services.TokenPair{AccessToken: "tok-" + id, RefreshToken: "rt-" + id, ExpiresIn: time.Hour}, nil
}

func (f *fakeIdentities) Authenticate(token string) (*auth.Claims, error) {
	id, ok := strings.CutPrefix(token, "tok-")
	if !ok {
		return nil, common.ErrInvalidToken
	}
	return &auth.Claims{IdentityID: id}, nil
}

type fakeDatawallet struct {
	mu       sync.Mutex
	mods     []*models.Modification
	deviceID string
	err      error
}

func (f *fakeDatawallet) Push(_ context.Context, identityID, deviceID string, items []services.PushItem) ([]services.PushResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.deviceID = deviceID
	out := make([]services.PushResult, 0, len(items))
	for _, it := range items {
		if it.Type == "Bogus" {
			out = append(out, services.PushResult{IdempotencyKey: it.IdempotencyKey, Error: "unknown type"})
			continue
		}
		m := &models.Modification{
			Index: int64(len(f.mods) + 1), IdentityID: identityID, IdempotencyKey: it.IdempotencyKey,
			ObjectID: it.ObjectID, Collection: it.Collection, Type: it.Type, Payload: it.Payload,
			DatawalletVersion: it.DatawalletVersion, CreatedByDevice: deviceID,
			CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		}
		f.mods = append(f.mods, m)
		out = append(out, services.PushResult{IdempotencyKey: it.IdempotencyKey, Index: m.Index})
	}
	return out, nil
}

func (f *fakeDatawallet) device() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deviceID
}

func (f *fakeDatawallet) List(_ context.Context, identityID string, localIndex int64, pageSize int) ([]*models.Modification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Modification
	for _, m := range f.mods {
		if m.IdentityID == identityID && m.Index > localIndex {
			out = append(out, m)
		}
		if pageSize > 0 && len(out) == pageSize {
			break
		}
	}
	return out, nil
}

type fakeEvents struct {
	mu         sync.Mutex
	events     []*models.ExternalEvent
	syncErrors []services.SyncError
}

func (f *fakeEvents) List(_ context.Context, identityID string, cursor int64, _ int) ([]*models.ExternalEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.ExternalEvent
	for _, e := range f.events {
		if e.IdentityID == identityID && e.Index > cursor {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeEvents) ReportSyncErrors(_ context.Context, _ string, items []services.SyncError) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncErrors = append(f.syncErrors, items...)
	return nil
}

func (f *fakeEvents) reported() []services.SyncError {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]services.SyncError(nil), f.syncErrors...)
}

func (f *fakeEvents) Inject(_ context.Context, username, eventType string, payload json.RawMessage) (*models.ExternalEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if eventType == "" {
		return nil, common.ErrValidation
	}
	ev := &models.ExternalEvent{
		ID: "EVT" + username, IdentityID: "id-" + username, Index: int64(len(f.events) + 1),
		Type: eventType, Payload: payload, CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	f.events = append(f.events, ev)
	return ev, nil
}

type fakeFiles struct {
	uploadBase string
	sizes      map[string]int64
}

func (f *fakeFiles) PresignUpload(_ context.Context, identityID, fileID string, size int64) (string, error) {
	if size <= 0 {
		return "", common.ErrValidation
	}
	if f.sizes == nil {
		f.sizes = map[string]int64{}
	}
	f.sizes[identityID+"/"+fileID] = size
	return f.uploadBase + "/blob/" + fileID, nil
}

func (f *fakeFiles) PresignDownload(_ context.Context, identityID, fileID string) (string, error) {
	if _, ok := f.sizes[identityID+"/"+fileID]; !ok {
		return "", common.ErrorNotFound
	}
	return f.uploadBase + "/blob/" + fileID, nil
}

type fakePush struct{ identity string }

func (f *fakePush) Serve(w http.ResponseWriter, _ *http.Request, identityID string) {
	f.identity = identityID
	w.WriteHeader(http.StatusNoContent)
}
