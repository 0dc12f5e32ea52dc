package services

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/dmitrijs2005/datawallet/internal/common"
	"github.com/dmitrijs2005/datawallet/internal/dbx"
	"github.com/dmitrijs2005/datawallet/internal/server/config"
	"github.com/dmitrijs2005/datawallet/internal/server/models"
	"github.com/dmitrijs2005/datawallet/internal/server/repositories/devices"
	"github.com/dmitrijs2005/datawallet/internal/server/repositories/events"
	"github.com/dmitrijs2005/datawallet/internal/server/repositories/files"
	"github.com/dmitrijs2005/datawallet/internal/server/repositories/identities"
	"github.com/dmitrijs2005/datawallet/internal/server/repositories/modifications"
	"github.com/dmitrijs2005/datawallet/internal/server/repositories/refreshtokens"
)

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func testConfig() *config.Config {
	return &config.Config{
		SecretKey:                    "k",
		AccessTokenValidityDuration:  time.Hour,
		RefreshTokenValidityDuration: 2 * time.Hour,
		ClientID:                     "cli",
		ClientSecret:                 "s3cret",
		AddressHost:                  "test",
		S3Region:                     "us-east-1",
		S3RootUser:                   "minioadmin",
		S3RootPassword:               "minioadmin",
		S3BaseEndpoint:               "http://127.0.0.1:9000",
		S3Bucket:                     "datawallet",
		PresignExpiry:                15 * time.Minute,
	}
}

// memStore backs every fake repository. The dbx.DBTX handles passed to the
// repomanager are ignored.
type memStore struct {
	mu         sync.Mutex
	identities map[string]*models.Identity
	dwIndex    map[string]int64
	evIndex    map[string]int64
	devices    map[string]*models.Device
	tokens     map[string]*models.RefreshToken
	mods       []*models.Modification
	events     []*models.ExternalEvent
	files      map[string]*models.File
	seq        int
	failWith   error
}

func newMemStore() *memStore {
	return &memStore{
		identities: map[string]*models.Identity{},
		dwIndex:    map[string]int64{},
		evIndex:    map[string]int64{},
		devices:    map[string]*models.Device{},
		tokens:     map[string]*models.RefreshToken{},
		files:      map[string]*models.File{},
	}
}

type fakeRepoManager struct{ s *memStore }

func (f fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (f fakeRepoManager) Identities(dbx.DBTX) identities.Repository    { return fakeIdentities{f.s} }
func (f fakeRepoManager) Devices(dbx.DBTX) devices.Repository          { return fakeDevices{f.s} }
func (f fakeRepoManager) RefreshTokens(dbx.DBTX) refreshtokens.Repository {
	return fakeTokens{f.s}
}
func (f fakeRepoManager) Modifications(dbx.DBTX) modifications.Repository { return fakeMods{f.s} }
func (f fakeRepoManager) Events(dbx.DBTX) events.Repository               { return fakeEvents{f.s} }
func (f fakeRepoManager) Files(dbx.DBTX) files.Repository                 { return fakeFiles{f.s} }

type fakeIdentities struct{ s *memStore }

func (r fakeIdentities) Create(_ context.Context, i *models.Identity) (*models.Identity, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failWith != nil {
		return nil, r.s.failWith
	}
	for _, e := range r.s.identities {
		if e.Username == i.Username || e.Address == i.Address {
			return nil, common.ErrorAlreadyExists
		}
	}
	r.s.seq++
	cp := *i
	cp.ID = fmt.Sprintf("id-%d", r.s.seq)
	cp.CreatedAt = time.Now()
	r.s.identities[cp.ID] = &cp
	return &cp, nil
}

func (r fakeIdentities) GetByUsername(_ context.Context, username string) (*models.Identity, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failWith != nil {
		return nil, r.s.failWith
	}
	for _, e := range r.s.identities {
		if e.Username == username {
			return e, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r fakeIdentities) GetByID(_ context.Context, id string) (*models.Identity, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if e, ok := r.s.identities[id]; ok {
		return e, nil
	}
	return nil, common.ErrorNotFound
}

func (r fakeIdentities) NextDatawalletIndex(_ context.Context, id string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.dwIndex[id]++
	return r.s.dwIndex[id], nil
}

func (r fakeIdentities) NextEventIndex(_ context.Context, id string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.evIndex[id]++
	return r.s.evIndex[id], nil
}

type fakeDevices struct{ s *memStore }

func (r fakeDevices) Touch(_ context.Context, identityID, deviceID string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.devices[identityID+"/"+deviceID] = &models.Device{ID: deviceID, IdentityID: identityID, LastSeenAt: at}
	return nil
}

func (r fakeDevices) List(_ context.Context, identityID string) ([]*models.Device, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.Device
	for _, d := range r.s.devices {
		if d.IdentityID == identityID {
			out = append(out, d)
		}
	}
	return out, nil
}

type fakeTokens struct{ s *memStore }

func (r fakeTokens) Create(_ context.Context, identityID, token string, validity time.Duration) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.tokens[token] = &models.RefreshToken{IdentityID: identityID, Token: token, Expires: time.Now().Add(validity)}
	return nil
}

func (r fakeTokens) Take(_ context.Context, token string) (*models.RefreshToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tokens[token]
	if !ok {
		return nil, common.ErrorNotFound
	}
	delete(r.s.tokens, token)
	return t, nil
}

type fakeMods struct{ s *memStore }

func (r fakeMods) GetByIdempotencyKey(_ context.Context, identityID, key string) (*models.Modification, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, m := range r.s.mods {
		if m.IdentityID == identityID && m.IdempotencyKey == key {
			return m, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r fakeMods) Insert(_ context.Context, m *models.Modification) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failWith != nil {
		return r.s.failWith
	}
	cp := *m
	r.s.mods = append(r.s.mods, &cp)
	return nil
}

func (r fakeMods) ListAfter(_ context.Context, identityID string, after int64, limit int) ([]*models.Modification, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.Modification
	for _, m := range r.s.mods {
		if m.IdentityID == identityID && m.Index > after {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeEvents struct{ s *memStore }

func (r fakeEvents) Insert(_ context.Context, ev *models.ExternalEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *ev
	r.s.events = append(r.s.events, &cp)
	return nil
}

func (r fakeEvents) ListAfter(_ context.Context, identityID string, after int64, limit int) ([]*models.ExternalEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.ExternalEvent
	for _, e := range r.s.events {
		if e.IdentityID == identityID && e.Index > after {
			out = append(out, e)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r fakeEvents) IncrementSyncErrorCount(_ context.Context, identityID, eventID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, e := range r.s.events {
		if e.IdentityID == identityID && e.ID == eventID {
			e.SyncErrorCount++
			return nil
		}
	}
	return common.ErrorNotFound
}

type fakeFiles struct{ s *memStore }

func (r fakeFiles) Upsert(_ context.Context, f *models.File) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if e, ok := r.s.files[f.ID]; ok && e.IdentityID != f.IdentityID {
		return common.ErrVersionConflict
	}
	cp := *f
	r.s.files[f.ID] = &cp
	return nil
}

func (r fakeFiles) Get(_ context.Context, identityID, id string) (*models.File, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if f, ok := r.s.files[id]; ok && f.IdentityID == identityID {
		return f, nil
	}
	return nil, common.ErrorNotFound
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []Notification
}

func (n *recordingNotifier) Notify(_ context.Context, _ string, note Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, note)
}
