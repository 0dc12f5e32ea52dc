package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	keyCursor          = "sync.cursor"
	keyDatawalletIndex = "datawallet.index"
	keyLastDatawallet  = "datawallet.lastSync"
	keyDeviceID        = "device.id"
	keySalt            = "key.salt"
	keyVerifier        = "key.verifier"
)

// Cursor is the index of the last applied external event.
func (s *Store) Cursor(ctx context.Context) (int64, error) {
	return s.Metadata(ctx).GetInt64(ctx, keyCursor)
}

func (s *Store) SetCursor(ctx context.Context, index int64) error {
	return s.Metadata(ctx).SetInt64(ctx, keyCursor, index)
}

// DatawalletIndex is the highest remote modification index applied locally.
func (s *Store) DatawalletIndex(ctx context.Context) (int64, error) {
	return s.Metadata(ctx).GetInt64(ctx, keyDatawalletIndex)
}

func (s *Store) SetDatawalletIndex(ctx context.Context, index int64) error {
	return s.Metadata(ctx).SetInt64(ctx, keyDatawalletIndex, index)
}

func (s *Store) LastDatawalletSync(ctx context.Context) (time.Time, error) {
	return s.Metadata(ctx).GetTime(ctx, keyLastDatawallet)
}

func (s *Store) SetLastDatawalletSync(ctx context.Context, t time.Time) error {
	return s.Metadata(ctx).SetTime(ctx, keyLastDatawallet, t)
}

// DeviceID returns the id of this device, generating and persisting one on
// first use.
func (s *Store) DeviceID(ctx context.Context) (string, error) {
	var id string
	err := s.Unit(ctx, func(ctx context.Context) error {
		md := s.Metadata(ctx)
		v, err := md.Get(ctx, keyDeviceID)
		if err != nil {
			return err
		}
		if v != nil {
			id = string(v)
			return nil
		}
		id = uuid.NewString()
		return md.Set(ctx, keyDeviceID, []byte(id))
	})
	return id, err
}

// Salt returns the key derivation salt, or nil before the first login.
func (s *Store) Salt(ctx context.Context) ([]byte, error) {
	return s.Metadata(ctx).Get(ctx, keySalt)
}

func (s *Store) SetSalt(ctx context.Context, salt []byte) error {
	return s.Metadata(ctx).Set(ctx, keySalt, salt)
}
