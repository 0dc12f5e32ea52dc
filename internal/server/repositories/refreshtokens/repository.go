// Package refreshtokens declares the server-side repository contract for
// managing refresh tokens in persistent storage.
package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/datawallet/internal/server/models"
)

// Repository defines operations for issuing and redeeming refresh tokens.
type Repository interface {
	// Create stores a new refresh token for identityID with an expiry of now+validity.
	Create(ctx context.Context, identityID string, token string, validity time.Duration) error

	// Take removes a refresh token and returns what it was issued for, so a
	// token can be redeemed at most once. An unknown token yields
	// common.ErrorNotFound.
	Take(ctx context.Context, token string) (*models.RefreshToken, error)
}
