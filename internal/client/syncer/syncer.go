// Package syncer coordinates synchronization runs of one account: the
// datawallet exchange with the account's other devices and the processing
// of external events, with the cursor and queue bookkeeping that makes both
// resumable.
//
// Only one run is in flight per account. Callers arriving while a run of
// the same kind is executing share its result; runs of different kinds are
// serialized.
package syncer

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dmitrijs2005/datawallet/internal/client/backbone"
	"github.com/dmitrijs2005/datawallet/internal/client/eventbus"
	"github.com/dmitrijs2005/datawallet/internal/client/models"
	"github.com/dmitrijs2005/datawallet/internal/client/modlog"
	"github.com/dmitrijs2005/datawallet/internal/client/store"
	"github.com/dmitrijs2005/datawallet/internal/logging"
)

var timeNow = time.Now

// Backbone is the part of the backbone API the coordinator needs.
type Backbone interface {
	GetExternalEvents(ctx context.Context, cursor int64, pageSize int) ([]models.ExternalEvent, error)
	GetModifications(ctx context.Context, localIndex int64, pageSize int) ([]models.RemoteModification, error)
	PushModifications(ctx context.Context, items []backbone.PushItem) ([]backbone.PushResult, error)
	ReportSyncErrors(ctx context.Context, items []backbone.SyncErrorItem) error
}

// Processor applies one external event inside the caller's unit of work.
type Processor interface {
	Process(ctx context.Context, ev *models.ExternalEvent) error
}

// FailurePolicy decides what happens to the cursor when an event fails for
// good.
type FailurePolicy string

const (
	// PolicyBlock keeps the cursor before the failed event until the failure
	// is resolved, preserving ordering.
	PolicyBlock FailurePolicy = "block"
	// PolicySkip records the failure and moves on.
	PolicySkip FailurePolicy = "skip"
)

func (p FailurePolicy) Valid() bool { return p == PolicyBlock || p == PolicySkip }

type Config struct {
	PageSize               int
	PushBatchSize          int
	FetchTimeout           time.Duration
	PushTimeout            time.Duration
	RunTimeout             time.Duration
	MaxSyncErrorCount      int
	FailurePolicy          FailurePolicy
	DatawalletSyncInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		PageSize:               100,
		PushBatchSize:          50,
		FetchTimeout:           30 * time.Second,
		PushTimeout:            30 * time.Second,
		RunTimeout:             5 * time.Minute,
		MaxSyncErrorCount:      3,
		FailurePolicy:          PolicyBlock,
		DatawalletSyncInterval: time.Minute,
	}
}

// withDefaults fills unset fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PageSize <= 0 {
		c.PageSize = d.PageSize
	}
	if c.PushBatchSize <= 0 {
		c.PushBatchSize = d.PushBatchSize
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = d.FetchTimeout
	}
	if c.PushTimeout <= 0 {
		c.PushTimeout = d.PushTimeout
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = d.RunTimeout
	}
	if c.MaxSyncErrorCount <= 0 {
		c.MaxSyncErrorCount = d.MaxSyncErrorCount
	}
	if !c.FailurePolicy.Valid() {
		c.FailurePolicy = d.FailurePolicy
	}
	if c.DatawalletSyncInterval < 0 {
		c.DatawalletSyncInterval = 0
	}
	return c
}

// Phase names a stage of a run for progress reporting.
type Phase string

const (
	PhasePull   Phase = "datawallet.pull"
	PhasePush   Phase = "datawallet.push"
	PhaseEvents Phase = "externalEvents"
)

// ProgressFunc is called with the number of items done so far in phase.
type ProgressFunc func(phase Phase, done int)

// Result summarizes one run. It is shared by every caller of the run.
type Result struct {
	Pushed    int
	Pulled    int
	Processed int
	Skipped   int
	// Failures lists the events that failed during this run.
	Failures []models.EventFailure
	Err      *SyncError
}

type Deps struct {
	Store      *store.Store
	Modlog     *modlog.Log
	Processors Processor
	Backbone   Backbone
	Bus        eventbus.Publisher
	Account    string
	DeviceID   string
	Config     Config
	Logger     logging.Logger
}

type Coordinator struct {
	st       *store.Store
	mods     *modlog.Log
	procs    Processor
	bb       Backbone
	bus      eventbus.Publisher
	account  string
	deviceID string
	cfg      Config
	log      logging.Logger

	group singleflight.Group
	// lock serializes runs and failure resolution.
	lock chan struct{}
}

func New(d Deps) *Coordinator {
	if d.Logger == nil {
		d.Logger = logging.Nop()
	}
	return &Coordinator{
		st:       d.Store,
		mods:     d.Modlog,
		procs:    d.Processors,
		bb:       d.Backbone,
		bus:      d.Bus,
		account:  d.Account,
		deviceID: d.DeviceID,
		cfg:      d.Config.withDefaults(),
		log:      d.Logger.With("module", "syncer", "account", d.Account),
		lock:     make(chan struct{}, 1),
	}
}

func (c *Coordinator) acquire(ctx context.Context) error {
	select {
	case c.lock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) release() { <-c.lock }

// SyncDatawallet pulls the modifications of the account's other devices
// and pushes the local ones. Unless force is set, the run is skipped when
// nothing is pending and the last exchange is recent.
func (c *Coordinator) SyncDatawallet(ctx context.Context, force bool, progress ProgressFunc) (*Result, error) {
	return c.shared(ctx, fmt.Sprintf("datawallet:%t", force), func(ctx context.Context, res *Result) error {
		r := c.newRun(res, progress)
		return r.syncDatawallet(ctx, force)
	})
}

// SyncEverything runs a datawallet sync, processes new external events,
// pushes what processing produced and finally publishes the run's domain
// events in the order their causes were received.
func (c *Coordinator) SyncEverything(ctx context.Context, progress ProgressFunc) (*Result, error) {
	return c.shared(ctx, "everything", func(ctx context.Context, res *Result) error {
		rec := eventbus.NewRecorder()
		ctx = eventbus.WithRecorder(ctx, rec)
		defer func() {
			if n := rec.Flush(c.bus); n > 0 {
				c.log.Debug(ctx, "published domain events", "count", n)
			}
		}()

		r := c.newRun(res, progress)
		if err := r.syncDatawallet(ctx, true); err != nil {
			return err
		}
		if err := r.processEvents(ctx); err != nil {
			return err
		}
		return r.push(ctx)
	})
}

// shared runs fn at most once per key at a time. The run is detached from
// the caller's cancellation: a caller that gives up gets its context error
// while the run completes for the others.
func (c *Coordinator) shared(ctx context.Context, key string, fn func(context.Context, *Result) error) (*Result, error) {
	ch := c.group.DoChan(key, func() (any, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.RunTimeout)
		defer cancel()

		res := &Result{}
		if err := c.acquire(runCtx); err != nil {
			res.Err = toSyncError(err)
			return res, nil
		}
		defer c.release()

		start := timeNow()
		err := fn(runCtx, res)
		res.Err = toSyncError(err)
		if res.Err != nil {
			c.log.Warn(runCtx, "sync run failed", "run", key, "code", res.Err.Code, "error", err)
		} else {
			c.log.Info(runCtx, "sync run finished", "run", key,
				"pulled", res.Pulled, "pushed", res.Pushed, "processed", res.Processed,
				"skipped", res.Skipped, "elapsed", timeNow().Sub(start))
		}
		return res, nil
	})

	select {
	case out := <-ch:
		res := out.Val.(*Result)
		if res.Err != nil {
			return res, res.Err
		}
		return res, nil
	case <-ctx.Done():
		return nil, toSyncError(ctx.Err())
	}
}

// run carries the state of one execution.
type run struct {
	*Coordinator
	res      *Result
	progress ProgressFunc
}

func (c *Coordinator) newRun(res *Result, progress ProgressFunc) *run {
	if progress == nil {
		progress = func(Phase, int) {}
	}
	return &run{Coordinator: c, res: res, progress: progress}
}

// Failures returns the recorded event failures.
func (c *Coordinator) Failures(ctx context.Context) ([]*models.EventFailure, error) {
	return c.st.Failures(ctx).List(ctx)
}

// ResolveFailure gives up on the failed event eventID: the cursor moves past
// it and its failure record is removed.
func (c *Coordinator) ResolveFailure(ctx context.Context, eventID string) error {
	if err := c.acquire(ctx); err != nil {
		return toSyncError(err)
	}
	defer c.release()

	return c.st.Unit(ctx, func(ctx context.Context) error {
		f, err := c.st.Failures(ctx).Get(ctx, eventID)
		if err != nil {
			return fmt.Errorf("failure of event %s: %w", eventID, err)
		}
		cursor, err := c.st.Cursor(ctx)
		if err != nil {
			return err
		}
		if f.EventIndex > cursor {
			if err := c.st.SetCursor(ctx, f.EventIndex); err != nil {
				return err
			}
		}
		c.log.Info(ctx, "event failure resolved", "event_id", eventID, "event_index", f.EventIndex)
		return c.st.Failures(ctx).Delete(ctx, eventID)
	})
}

// RetryFailure clears the failure record of eventID so the next run
// processes the event again from a zero error count.
func (c *Coordinator) RetryFailure(ctx context.Context, eventID string) error {
	if err := c.acquire(ctx); err != nil {
		return toSyncError(err)
	}
	defer c.release()

	return c.st.Unit(ctx, func(ctx context.Context) error {
		if _, err := c.st.Failures(ctx).Get(ctx, eventID); err != nil {
			return fmt.Errorf("failure of event %s: %w", eventID, err)
		}
		return c.st.Failures(ctx).Delete(ctx, eventID)
	})
}

// Status is a snapshot of the sync bookkeeping.
type Status struct {
	Cursor          int64
	DatawalletIndex int64
	Pending         int
	LastDatawallet  time.Time
	Failures        int
}

func (c *Coordinator) Status(ctx context.Context) (*Status, error) {
	var s Status
	var err error
	if s.Cursor, err = c.st.Cursor(ctx); err != nil {
		return nil, err
	}
	if s.DatawalletIndex, err = c.st.DatawalletIndex(ctx); err != nil {
		return nil, err
	}
	if s.Pending, err = c.mods.Count(ctx); err != nil {
		return nil, err
	}
	if s.LastDatawallet, err = c.st.LastDatawalletSync(ctx); err != nil {
		return nil, err
	}
	failures, err := c.Failures(ctx)
	if err != nil {
		return nil, err
	}
	s.Failures = len(failures)
	return &s, nil
}
