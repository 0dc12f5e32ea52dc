// Package account composes everything one identity needs: its encrypted
// store, controllers, event processors and sync coordinator. A Runtime holds
// several open accounts that share nothing but the event bus.
package account

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/dmitrijs2005/datawallet/internal/client/backbone"
	"github.com/dmitrijs2005/datawallet/internal/client/controllers"
	"github.com/dmitrijs2005/datawallet/internal/client/eventbus"
	"github.com/dmitrijs2005/datawallet/internal/client/modlog"
	"github.com/dmitrijs2005/datawallet/internal/client/processors"
	"github.com/dmitrijs2005/datawallet/internal/client/push"
	"github.com/dmitrijs2005/datawallet/internal/client/store"
	"github.com/dmitrijs2005/datawallet/internal/client/syncer"
	"github.com/dmitrijs2005/datawallet/internal/common"
	"github.com/dmitrijs2005/datawallet/internal/cryptox"
	"github.com/dmitrijs2005/datawallet/internal/filex"
	"github.com/dmitrijs2005/datawallet/internal/logging"
)

const (
	saltSize   = 32
	keyAddress = "account.address"
	accountDir = "accounts"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

type Options struct {
	Username   string
	Passphrase []byte
	// Register creates the identity on the backbone before signing in.
	Register bool
	// DataDir holds one database per account. Empty keeps the account in
	// memory.
	DataDir   string
	Connector Connector
	Bus       eventbus.Publisher
	Sync      syncer.Config
	// Coalesce merges queued datawallet modifications of the same object.
	Coalesce bool
	// Push syncs whenever the backbone announces news.
	Push   bool
	Logger logging.Logger
}

// Account is one open identity.
type Account struct {
	Username string
	Address  string
	DeviceID string
	// Offline is set when the backbone could not be reached at open time.
	Offline bool

	Store       *store.Store
	Controllers *controllers.Controllers
	Coordinator *syncer.Coordinator

	conn *Connection
	log  logging.Logger

	closeOnce sync.Once
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// Open unlocks (or, with Register, creates) the account of opts.Username.
// The passphrase only ever feeds the key derivation: the backbone sees the
// salt and a verifier of the derived key.
//
// An account that was opened on this device before can be opened offline
// when the backbone is unreachable; syncs then fail with an unavailable
// error.
func Open(ctx context.Context, opts Options) (*Account, error) {
	if !usernamePattern.MatchString(opts.Username) {
		return nil, fmt.Errorf("username %q: %w", opts.Username, common.ErrValidation)
	}
	if len(opts.Passphrase) == 0 {
		return nil, fmt.Errorf("empty passphrase: %w", common.ErrValidation)
	}
	if opts.Connector == nil {
		return nil, fmt.Errorf("no backbone connector: %w", common.ErrValidation)
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	log := opts.Logger.With("module", "account", "username", opts.Username)

	dsn, err := dsnFor(opts.DataDir, opts.Username)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(ctx, dsn, opts.Logger)
	if err != nil {
		return nil, err
	}
	ok := false
	defer func() {
		if !ok {
			_ = st.Close()
		}
	}()

	localSalt, err := st.Salt(ctx)
	if err != nil {
		return nil, err
	}
	salt := localSalt
	switch {
	case opts.Register && localSalt != nil:
		return nil, fmt.Errorf("account %s exists on this device: %w", opts.Username, common.ErrorAlreadyExists)
	case opts.Register:
		salt = common.GenerateRandByteArray(saltSize)
	case salt == nil:
		if salt, err = opts.Connector.Salt(ctx, opts.Username); err != nil {
			return nil, fmt.Errorf("get salt: %w", err)
		}
	}

	masterKey := cryptox.DeriveMasterKey(opts.Passphrase, salt)
	defer common.WipeByteArray(masterKey)
	verifier := cryptox.MakeVerifier(masterKey)

	unlock := func() error {
		if err := st.Unlock(ctx, masterKey); err != nil {
			if errors.Is(err, store.ErrWrongKey) {
				return fmt.Errorf("wrong passphrase: %w", common.ErrorUnauthorized)
			}
			return err
		}
		return nil
	}
	// A known device checks the passphrase locally first. A new one must
	// not record a verifier before the backbone accepted it.
	if localSalt != nil {
		if err := unlock(); err != nil {
			return nil, err
		}
	}

	if opts.Register {
		if _, err := opts.Connector.Register(ctx, opts.Username, salt, verifier); err != nil {
			return nil, fmt.Errorf("register: %w", err)
		}
		log.Info(ctx, "identity registered")
	}

	deviceID, err := st.DeviceID(ctx)
	if err != nil {
		return nil, err
	}

	offline := false
	conn, err := opts.Connector.Connect(ctx, opts.Username, verifier, deviceID)
	switch {
	case err == nil:
	case localSalt != nil && backbone.IsTransient(err):
		log.Warn(ctx, "backbone unreachable, opening offline", "error", err)
		addr, aerr := st.Metadata(ctx).Get(ctx, keyAddress)
		if aerr != nil {
			return nil, aerr
		}
		conn, offline = &Connection{API: offlineAPI{}, Address: string(addr)}, true
	case errors.Is(err, backbone.ErrUnauthorized):
		return nil, fmt.Errorf("sign in: %w", common.ErrorUnauthorized)
	default:
		return nil, fmt.Errorf("sign in: %w", err)
	}

	if localSalt == nil {
		if err := unlock(); err != nil {
			return nil, err
		}
	}
	err = st.Unit(ctx, func(ctx context.Context) error {
		if err := st.SetSalt(ctx, salt); err != nil {
			return err
		}
		return st.Metadata(ctx).Set(ctx, keyAddress, []byte(conn.Address))
	})
	if err != nil {
		return nil, err
	}

	a := compose(st, conn, deviceID, opts)
	a.Username = opts.Username
	a.Offline = offline
	if opts.Push && !offline && conn.Listen != nil {
		a.startPush()
	}
	ok = true
	a.log.Info(ctx, "account opened", "device_id", deviceID, "offline", offline)
	return a, nil
}

// compose wires the account's components. Nothing here is shared with
// other accounts except opts.Bus.
func compose(st *store.Store, conn *Connection, deviceID string, opts Options) *Account {
	mods := modlog.New(st, opts.Coalesce, opts.Logger)
	ctrl := controllers.New(controllers.Deps{
		Store:    st,
		Modlog:   mods,
		Bus:      opts.Bus,
		Account:  conn.Address,
		Uploader: conn.API,
		Logger:   opts.Logger,
	})
	procs := processors.New(ctrl, conn.Address, opts.Logger)
	coord := syncer.New(syncer.Deps{
		Store:      st,
		Modlog:     mods,
		Processors: procs,
		Backbone:   conn.API,
		Bus:        opts.Bus,
		Account:    conn.Address,
		DeviceID:   deviceID,
		Config:     opts.Sync,
		Logger:     opts.Logger,
	})
	return &Account{
		Address:     conn.Address,
		DeviceID:    deviceID,
		Store:       st,
		Controllers: ctrl,
		Coordinator: coord,
		conn:        conn,
		log:         opts.Logger.With("module", "account", "account", conn.Address),
	}
}

func dsnFor(dataDir, username string) (string, error) {
	if dataDir == "" {
		return ":memory:", nil
	}
	dir, err := filex.EnsureSubdDir(dataDir, accountDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, username+".db"), nil
}

// Sync runs a full synchronization of the account.
func (a *Account) Sync(ctx context.Context) (*syncer.Result, error) {
	return a.Coordinator.SyncEverything(ctx, nil)
}

// startPush listens for notifications in the background. Notifications
// arriving while a sync runs collapse into one follow-up sync.
func (a *Account) startPush() {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	wake := make(chan struct{}, 1)

	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		err := a.conn.Listen(ctx, func(n push.Notification) {
			a.log.Debug(ctx, "push notification", "type", n.Type, "index", n.Index)
			select {
			case wake <- struct{}{}:
			default:
			}
		})
		if err != nil && ctx.Err() == nil {
			a.log.Error(ctx, "push listener stopped", "error", err)
		}
	}()
	go func() {
		defer a.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-wake:
				// Close waits for a started run instead of abandoning it
				// on a closed store.
				if _, err := a.Sync(context.WithoutCancel(ctx)); err != nil {
					a.log.Warn(ctx, "push triggered sync failed", "error", err)
				}
			}
		}
	}()
}

// Close stops background work and closes the store. It is safe to call
// more than once.
func (a *Account) Close() error {
	var err error
	a.closeOnce.Do(func() {
		if a.cancel != nil {
			a.cancel()
		}
		a.wg.Wait()
		err = a.Store.Close()
	})
	return err
}
