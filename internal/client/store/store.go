// Package store is the encrypted object store of one account.
//
// All persistent state of an account lives in one SQLite database: sealed
// objects, control values, the datawallet modification log and event failure
// bookkeeping. Mutations happen inside a unit of work (Store.Unit) that holds
// the account's exclusive lock and a single SQL transaction. Repositories
// obtained from the store are bound to the transaction carried by ctx, so
// every read and write inside a unit sees the same snapshot and commits or
// rolls back together.
//
// Typical Usage
//
//	st, _ := store.Open(ctx, "file:alice.db", log)
//	_ = st.Unlock(ctx, masterKey)
//	attrs := store.For[models.Attribute](st)
//	err := st.Unit(ctx, func(ctx context.Context) error {
//	    return attrs.Create(ctx, attr)
//	})
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/dmitrijs2005/datawallet/internal/client/migrations"
	"github.com/dmitrijs2005/datawallet/internal/client/repositories/failures"
	"github.com/dmitrijs2005/datawallet/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/datawallet/internal/client/repositories/modifications"
	"github.com/dmitrijs2005/datawallet/internal/client/repositories/objects"
	"github.com/dmitrijs2005/datawallet/internal/cryptox"
	"github.com/dmitrijs2005/datawallet/internal/dbx"
	"github.com/dmitrijs2005/datawallet/internal/logging"

	_ "modernc.org/sqlite"
)

// ErrLocked is returned by operations that need the master key before Unlock.
var ErrLocked = errors.New("store is locked")

// ErrWrongKey is returned by Unlock when the key does not match the stored verifier.
var ErrWrongKey = errors.New("wrong master key")

var timeNow = time.Now

type Store struct {
	db   *sql.DB
	log  logging.Logger
	lock chan struct{}

	mu        sync.RWMutex
	masterKey []byte
	keys      map[string][]byte
}

// Open opens (creating if needed) the SQLite database at dsn and applies
// pending migrations.
func Open(ctx context.Context, dsn string, log logging.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	// One connection: SQLite serializes writers anyway and a single
	// connection keeps in-memory databases alive across calls.
	db.SetMaxOpenConns(1)

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return New(db, log), nil
}

// RunMigrations applies the embedded schema migrations to db.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	p, err := goose.NewProvider(goose.DialectSQLite3, db, migrations.Migrations)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	if _, err := p.Up(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// New wraps an already migrated database.
func New(db *sql.DB, log logging.Logger) *Store {
	if log == nil {
		log = logging.Nop()
	}
	return &Store{
		db:   db,
		log:  log.With("module", "store"),
		lock: make(chan struct{}, 1),
		keys: map[string][]byte{},
	}
}

func (s *Store) Close() error {
	s.mu.Lock()
	for k, v := range s.keys {
		for i := range v {
			v[i] = 0
		}
		delete(s.keys, k)
	}
	s.masterKey = nil
	s.mu.Unlock()
	return s.db.Close()
}

func (s *Store) Metadata(ctx context.Context) metadata.Repository {
	return metadata.NewSQLiteRepository(dbx.Conn(ctx, s.db))
}

func (s *Store) Objects(ctx context.Context) objects.Repository {
	return objects.NewSQLiteRepository(dbx.Conn(ctx, s.db))
}

func (s *Store) Modifications(ctx context.Context) modifications.Repository {
	return modifications.NewSQLiteRepository(dbx.Conn(ctx, s.db))
}

func (s *Store) Failures(ctx context.Context) failures.Repository {
	return failures.NewSQLiteRepository(dbx.Conn(ctx, s.db))
}

// Unlock installs the account master key. The first call on a fresh store
// records a verifier; later calls must present the same key.
func (s *Store) Unlock(ctx context.Context, masterKey []byte) error {
	err := s.Unit(ctx, func(ctx context.Context) error {
		md := s.Metadata(ctx)
		stored, err := md.Get(ctx, keyVerifier)
		if err != nil {
			return err
		}
		if stored == nil {
			return md.Set(ctx, keyVerifier, cryptox.MakeVerifier(masterKey))
		}
		if !cryptox.CheckVerifier(stored, masterKey) {
			return ErrWrongKey
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.masterKey = append([]byte(nil), masterKey...)
	s.keys = map[string][]byte{}
	s.mu.Unlock()
	return nil
}

// Key returns the subkey for purpose, deriving and caching it on first use.
func (s *Store) Key(purpose string) ([]byte, error) {
	s.mu.RLock()
	k, ok := s.keys[purpose]
	master := s.masterKey
	s.mu.RUnlock()
	if ok {
		return k, nil
	}
	if master == nil {
		return nil, ErrLocked
	}

	k, err := cryptox.DeriveKey(master, purpose)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.keys[purpose] = k
	s.mu.Unlock()
	return k, nil
}
