package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/datawallet/internal/common"
	"github.com/dmitrijs2005/datawallet/internal/dbx"
	"github.com/dmitrijs2005/datawallet/internal/logging"
	"github.com/dmitrijs2005/datawallet/internal/server/auth"
	"github.com/dmitrijs2005/datawallet/internal/server/config"
	"github.com/dmitrijs2005/datawallet/internal/server/models"
	"github.com/dmitrijs2005/datawallet/internal/server/repositories/repomanager"
)

const (
	saltLen    = 32
	minSaltLen = 16
)

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
	Address      string
}

// IdentityService handles registration, salt lookup, password grant login
// and refresh token rotation.
type IdentityService struct {
	db                           *sql.DB
	repomanager                  repomanager.RepositoryManager
	jwtSecret                    []byte
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
	clientID                     string
	clientSecret                 string
	addressHost                  string
	log                          logging.Logger
}

func NewIdentityService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, log logging.Logger) *IdentityService {
	if log == nil {
		log = logging.Nop()
	}
	return &IdentityService{
		db:                           db,
		repomanager:                  m,
		jwtSecret:                    []byte(cfg.SecretKey),
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
		clientID:                     cfg.ClientID,
		clientSecret:                 cfg.ClientSecret,
		addressHost:                  cfg.AddressHost,
		log:                          log.With("module", "identities"),
	}
}

// Register creates a new identity and assigns it an address.
func (s *IdentityService) Register(ctx context.Context, username string, salt, verifier []byte) (*models.Identity, error) {
	switch {
	case !usernamePattern.MatchString(username):
		return nil, fmt.Errorf("username %q: %w", username, common.ErrValidation)
	case len(salt) < minSaltLen:
		return nil, fmt.Errorf("salt shorter than %d bytes: %w", minSaltLen, common.ErrValidation)
	case len(verifier) == 0:
		return nil, fmt.Errorf("verifier is empty: %w", common.ErrValidation)
	}

	suffix, err := common.MakeRandHexString(10)
	if err != nil {
		return nil, err
	}
	identity := &models.Identity{
		Username: username,
		Address:  "did:e:" + s.addressHost + ":dids:" + suffix,
		Salt:     salt,
		Verifier: verifier,
	}
	created, err := s.repomanager.Identities(s.db).Create(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("error creating identity: %w", err)
	}
	s.log.Info(ctx, "identity registered", "address", created.Address)
	return created, nil
}

// GetSalt returns the stored salt of username. Unknown usernames get a salt
// derived from the server secret, stable across calls, so the answer does
// not reveal whether the username exists.
func (s *IdentityService) GetSalt(ctx context.Context, username string) ([]byte, error) {
	identity, err := s.repomanager.Identities(s.db).GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return s.decoySalt(username), nil
		}
		return nil, common.ErrorInternal
	}
	return identity.Salt, nil
}

func (s *IdentityService) decoySalt(username string) []byte {
	mac := hmac.New(sha256.New, s.jwtSecret)
	mac.Write([]byte("salt:" + username))
	return mac.Sum(nil)[:saltLen]
}

// Login implements the OAuth2 password grant. The password is the hex
// encoded verifier.
func (s *IdentityService) Login(ctx context.Context, clientID, clientSecret, username, password string) (*TokenPair, error) {
	if !s.checkClient(clientID, clientSecret) {
		return nil, common.ErrInvalidCredentials
	}
	candidate, err := hex.DecodeString(password)
	if err != nil {
		return nil, common.ErrorUnauthorized
	}

	identity, err := s.repomanager.Identities(s.db).GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, common.ErrorInternal
	}
	if subtle.ConstantTimeCompare(identity.Verifier, candidate) != 1 {
		s.log.Warn(ctx, "login rejected", "address", identity.Address)
		return nil, common.ErrorUnauthorized
	}
	return s.generateTokenPair(ctx, identity, s.db)
}

// Refresh redeems refreshToken and returns a fresh TokenPair. Each refresh
// token works once.
func (s *IdentityService) Refresh(ctx context.Context, clientID, clientSecret, refreshToken string) (*TokenPair, error) {
	if !s.checkClient(clientID, clientSecret) {
		return nil, common.ErrInvalidCredentials
	}

	var pair *TokenPair
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		token, err := s.repomanager.RefreshTokens(tx).Take(ctx, refreshToken)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrorUnauthorized
			}
			return fmt.Errorf("error redeeming refresh token: %w", err)
		}
		if token.Expires.Before(time.Now()) {
			return common.ErrTokenExpired
		}
		identity, err := s.repomanager.Identities(tx).GetByID(ctx, token.IdentityID)
		if err != nil {
			return fmt.Errorf("identity of refresh token: %w", err)
		}
		pair, err = s.generateTokenPair(ctx, identity, tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}

// Authenticate verifies an access token.
func (s *IdentityService) Authenticate(token string) (*auth.Claims, error) {
	return auth.ParseToken(token, s.jwtSecret)
}

func (s *IdentityService) checkClient(id, secret string) bool {
	return subtle.ConstantTimeCompare([]byte(id), []byte(s.clientID)) == 1 &&
		subtle.ConstantTimeCompare([]byte(secret), []byte(s.clientSecret)) == 1
}

func (s *IdentityService) generateTokenPair(ctx context.Context, identity *models.Identity, tx dbx.DBTX) (*TokenPair, error) {
	access, err := auth.GenerateToken(identity.ID, identity.Address, s.jwtSecret, s.accessTokenValidityDuration)
	if err != nil {
		return nil, common.ErrorInternal
	}
	refresh, err := common.MakeRandHexString(32)
	if err != nil {
		return nil, common.ErrorInternal
	}
	if err := s.repomanager.RefreshTokens(tx).Create(ctx, identity.ID, refresh, s.refreshTokenValidityDuration); err != nil {
		return nil, common.ErrorInternal
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    s.accessTokenValidityDuration,
		Address:      identity.Address,
	}, nil
}
