package services

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/datawallet/internal/common"
	"github.com/dmitrijs2005/datawallet/internal/logging"
)

var (
	testSalt     = bytes.Repeat([]byte{0x5a}, 32)
	testVerifier = []byte{0x01, 0x02, 0x03, 0x04}
)

func newIdentityService(t *testing.T) (*IdentityService, *memStore) {
	t.Helper()
	db, _ := newSQLMockDB(t)
	store := newMemStore()
	return NewIdentityService(db, fakeRepoManager{store}, testConfig(), logging.Nop()), store
}

func TestRegister(t *testing.T) {
	svc, _ := newIdentityService(t)
	ctx := context.Background()

	id, err := svc.Register(ctx, "alice", testSalt, testVerifier)
	require.NoError(t, err)
	assert.NotEmpty(t, id.ID)
	assert.True(t, strings.HasPrefix(id.Address, "did:e:test:dids:"), id.Address)
	assert.Len(t, strings.TrimPrefix(id.Address, "did:e:test:dids:"), 20)

	_, err = svc.Register(ctx, "alice", testSalt, testVerifier)
	require.ErrorIs(t, err, common.ErrorAlreadyExists)
}

func TestRegister_Validation(t *testing.T) {
	svc, _ := newIdentityService(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		username string
		salt     []byte
		verifier []byte
	}{
		{"empty username", "", testSalt, testVerifier},
		{"bad username", "al ice", testSalt, testVerifier},
		{"short salt", "alice", []byte{1, 2, 3}, testVerifier},
		{"no verifier", "alice", testSalt, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tt.username, tt.salt, tt.verifier)
			require.ErrorIs(t, err, common.ErrValidation)
		})
	}
}

func TestGetSalt(t *testing.T) {
	svc, store := newIdentityService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", testSalt, testVerifier)
	require.NoError(t, err)

	salt, err := svc.GetSalt(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, testSalt, salt)

	decoy1, err := svc.GetSalt(ctx, "bob")
	require.NoError(t, err)
	decoy2, err := svc.GetSalt(ctx, "bob")
	require.NoError(t, err)
	assert.Len(t, decoy1, 32)
	assert.Equal(t, decoy1, decoy2, "decoy salt must be stable")

	other, _ := svc.GetSalt(ctx, "carol")
	assert.NotEqual(t, decoy1, other)

	store.failWith = errors.New("boom")
	_, err = svc.GetSalt(ctx, "alice")
	require.ErrorIs(t, err, common.ErrorInternal)
}

func TestLogin(t *testing.T) {
	svc, _ := newIdentityService(t)
	ctx := context.Background()

	registered, err := svc.Register(ctx, "alice", testSalt, testVerifier)
	require.NoError(t, err)

	pair, err := svc.Login(ctx, "cli", "s3cret", "alice", hex.EncodeToString(testVerifier))
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, registered.Address, pair.Address)

	claims, err := svc.Authenticate(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, registered.ID, claims.IdentityID)
	assert.Equal(t, registered.Address, claims.Address)
}

func TestLogin_Rejections(t *testing.T) {
	svc, _ := newIdentityService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, "alice", testSalt, testVerifier)
	require.NoError(t, err)

	good := hex.EncodeToString(testVerifier)

	_, err = svc.Login(ctx, "cli", "wrong", "alice", good)
	require.ErrorIs(t, err, common.ErrInvalidCredentials)

	_, err = svc.Login(ctx, "other", "s3cret", "alice", good)
	require.ErrorIs(t, err, common.ErrInvalidCredentials)

	_, err = svc.Login(ctx, "cli", "s3cret", "alice", "not-hex")
	require.ErrorIs(t, err, common.ErrorUnauthorized)

	_, err = svc.Login(ctx, "cli", "s3cret", "alice", "ffff")
	require.ErrorIs(t, err, common.ErrorUnauthorized)

	_, err = svc.Login(ctx, "cli", "s3cret", "nobody", good)
	require.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestRefresh_RotatesOnce(t *testing.T) {
	db, mock := newSQLMockDB(t)
	store := newMemStore()
	svc := NewIdentityService(db, fakeRepoManager{store}, testConfig(), logging.Nop())
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", testSalt, testVerifier)
	require.NoError(t, err)
	pair, err := svc.Login(ctx, "cli", "s3cret", "alice", hex.EncodeToString(testVerifier))
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectCommit()
	next, err := svc.Refresh(ctx, "cli", "s3cret", pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, next.RefreshToken)
	assert.Equal(t, pair.Address, next.Address)

	mock.ExpectBegin()
	mock.ExpectRollback()
	_, err = svc.Refresh(ctx, "cli", "s3cret", pair.RefreshToken)
	require.ErrorIs(t, err, common.ErrorUnauthorized, "refresh tokens are single use")

	_, err = svc.Refresh(ctx, "cli", "bad", next.RefreshToken)
	require.ErrorIs(t, err, common.ErrInvalidCredentials)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRefresh_Expired(t *testing.T) {
	db, mock := newSQLMockDB(t)
	store := newMemStore()
	cfg := testConfig()
	cfg.RefreshTokenValidityDuration = -1
	svc := NewIdentityService(db, fakeRepoManager{store}, cfg, logging.Nop())
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", testSalt, testVerifier)
	require.NoError(t, err)
	pair, err := svc.Login(ctx, "cli", "s3cret", "alice", hex.EncodeToString(testVerifier))
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectRollback()
	_, err = svc.Refresh(ctx, "cli", "s3cret", pair.RefreshToken)
	require.ErrorIs(t, err, common.ErrTokenExpired)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuthenticate_Garbage(t *testing.T) {
	svc, _ := newIdentityService(t)
	_, err := svc.Authenticate("not-a-token")
	require.ErrorIs(t, err, common.ErrInvalidToken)
}
