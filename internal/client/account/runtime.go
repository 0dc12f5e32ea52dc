package account

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/datawallet/internal/client/eventbus"
	"github.com/dmitrijs2005/datawallet/internal/client/syncer"
	"github.com/dmitrijs2005/datawallet/internal/common"
	"github.com/dmitrijs2005/datawallet/internal/logging"
)

// maxParallelSyncs bounds SyncAll.
const maxParallelSyncs = 4

// Runtime holds the open accounts of a process by address.
type Runtime struct {
	bus *eventbus.Bus
	log logging.Logger

	mu       sync.RWMutex
	accounts map[string]*Account
}

func NewRuntime(log logging.Logger) *Runtime {
	if log == nil {
		log = logging.Nop()
	}
	return &Runtime{
		bus:      eventbus.New(log),
		log:      log.With("module", "runtime"),
		accounts: map[string]*Account{},
	}
}

// Bus is the event bus shared by all accounts of the runtime.
func (r *Runtime) Bus() *eventbus.Bus { return r.bus }

// Open opens an account and registers it. Opening an address that is
// already open fails with common.ErrorAlreadyExists.
func (r *Runtime) Open(ctx context.Context, opts Options) (*Account, error) {
	opts.Bus = r.bus
	if opts.Logger == nil {
		opts.Logger = r.log
	}
	a, err := Open(ctx, opts)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.accounts[a.Address]; dup {
		_ = a.Close()
		return nil, fmt.Errorf("account %s is already open: %w", a.Address, common.ErrorAlreadyExists)
	}
	r.accounts[a.Address] = a
	return a, nil
}

func (r *Runtime) Get(address string) (*Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.accounts[address]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", address, common.ErrorNotFound)
	}
	return a, nil
}

// Accounts returns the open accounts ordered by address.
func (r *Runtime) Accounts() []*Account {
	r.mu.RLock()
	out := make([]*Account, 0, len(r.accounts))
	for _, a := range r.accounts {
		out = append(out, a)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// CloseAccount closes and forgets one account.
func (r *Runtime) CloseAccount(address string) error {
	r.mu.Lock()
	a, ok := r.accounts[address]
	delete(r.accounts, address)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("account %s: %w", address, common.ErrorNotFound)
	}
	return a.Close()
}

// SyncAll syncs every open account concurrently. A failing account does not
// stop the others; their errors are joined.
func (r *Runtime) SyncAll(ctx context.Context) (map[string]*syncer.Result, error) {
	accounts := r.Accounts()
	results := make([]*syncer.Result, len(accounts))
	errs := make([]error, len(accounts))

	var g errgroup.Group
	g.SetLimit(maxParallelSyncs)
	for i, a := range accounts {
		g.Go(func() error {
			res, err := a.Sync(ctx)
			results[i] = res
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", a.Address, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]*syncer.Result, len(accounts))
	for i, a := range accounts {
		if results[i] != nil {
			out[a.Address] = results[i]
		}
	}
	return out, errors.Join(errs...)
}

// Close closes every account and the bus.
func (r *Runtime) Close() error {
	r.mu.Lock()
	accounts := r.accounts
	r.accounts = map[string]*Account{}
	r.mu.Unlock()

	var errs []error
	for _, a := range accounts {
		if err := a.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.bus.Close()
	return errors.Join(errs...)
}
