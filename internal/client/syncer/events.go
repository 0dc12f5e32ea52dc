package syncer

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/dmitrijs2005/datawallet/internal/client/backbone"
	"github.com/dmitrijs2005/datawallet/internal/client/models"
	"github.com/dmitrijs2005/datawallet/internal/common"
)

// processEvents applies external events after the cursor, one unit of work
// per event. Processing, the cursor advance and failure bookkeeping of an
// event commit together.
func (r *run) processEvents(ctx context.Context) error {
	var reports []backbone.SyncErrorItem
	defer func() {
		if len(reports) == 0 {
			return
		}
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.PushTimeout)
		defer cancel()
		if err := r.bb.ReportSyncErrors(rctx, reports); err != nil {
			r.log.Warn(ctx, "failed to report sync errors", "count", len(reports), "error", err)
		}
	}()

	cursor, err := r.st.Cursor(ctx)
	if err != nil {
		return err
	}

	for {
		page, err := r.fetchEvents(ctx, cursor)
		if err != nil {
			return err
		}
		events := orderEvents(page, cursor)
		for i := range events {
			ev := &events[i]
			report, err := r.handleEvent(ctx, ev)
			if report != nil {
				reports = append(reports, *report)
			}
			if err != nil {
				return err
			}
			cursor = ev.Index
			r.progress(PhaseEvents, r.res.Processed+r.res.Skipped)
		}
		if len(page) < r.cfg.PageSize || len(events) == 0 {
			return nil
		}
	}
}

func (r *run) fetchEvents(ctx context.Context, cursor int64) ([]models.ExternalEvent, error) {
	fctx, cancel := context.WithTimeout(ctx, r.cfg.FetchTimeout)
	defer cancel()
	page, err := r.bb.GetExternalEvents(fctx, cursor, r.cfg.PageSize)
	if err != nil {
		return nil, fmt.Errorf("fetch external events after %d: %w", cursor, err)
	}
	return page, nil
}

// orderEvents sorts a page by index and drops events at or below the
// cursor along with repeated indexes, leaving a strictly increasing run.
func orderEvents(page []models.ExternalEvent, cursor int64) []models.ExternalEvent {
	sort.SliceStable(page, func(i, j int) bool { return page[i].Index < page[j].Index })
	out := make([]models.ExternalEvent, 0, len(page))
	last := cursor
	for _, ev := range page {
		if ev.Index <= last {
			continue
		}
		out = append(out, ev)
		last = ev.Index
	}
	return out
}

// handleEvent processes ev. A returned error stops the run without
// advancing the cursor past ev. report is set when the failure has to be
// reported to the backbone.
func (r *run) handleEvent(ctx context.Context, ev *models.ExternalEvent) (report *backbone.SyncErrorItem, err error) {
	log := r.log.With("event_id", ev.ID, "event_index", ev.Index, "type", ev.Type)

	prior, err := r.st.Failures(ctx).Get(ctx, ev.ID)
	switch {
	case errors.Is(err, common.ErrorNotFound):
		prior = nil
	case err != nil:
		return nil, err
	}

	if prior != nil && prior.Permanent {
		if r.cfg.FailurePolicy == PolicySkip {
			r.res.Skipped++
			return nil, r.st.SetCursor(ctx, ev.Index)
		}
		return nil, &SyncError{
			Code:    CodeBlocked,
			EventID: ev.ID,
			Message: fmt.Sprintf("event %d failed permanently: %s", ev.Index, prior.LastError),
		}
	}

	procErr := r.st.Unit(ctx, func(ctx context.Context) error {
		if err := r.procs.Process(ctx, ev); err != nil {
			return err
		}
		if prior != nil {
			if err := r.st.Failures(ctx).Delete(ctx, ev.ID); err != nil {
				return err
			}
		}
		return r.st.SetCursor(ctx, ev.Index)
	})

	switch {
	case procErr == nil:
		r.res.Processed++
		return nil, nil

	case errors.Is(procErr, common.ErrUnknownEventType):
		log.Warn(ctx, "skipping event of unknown type")
		r.res.Skipped++
		return nil, r.st.SetCursor(ctx, ev.Index)

	case errors.Is(procErr, context.DeadlineExceeded), errors.Is(procErr, context.Canceled):
		return nil, procErr
	}

	count := ev.SyncErrorCount
	if prior != nil && prior.ErrorCount > count {
		count = prior.ErrorCount
	}
	f := &models.EventFailure{
		EventID:    ev.ID,
		EventIndex: ev.Index,
		Type:       ev.Type,
		ErrorCount: count + 1,
		LastError:  procErr.Error(),
		Permanent:  !recoverable(procErr) || count+1 >= r.cfg.MaxSyncErrorCount,
		UpdatedAt:  timeNow().UTC(),
	}
	skip := f.Permanent && r.cfg.FailurePolicy == PolicySkip

	err = r.st.Unit(ctx, func(ctx context.Context) error {
		if err := r.st.Failures(ctx).Upsert(ctx, f); err != nil {
			return err
		}
		if skip {
			return r.st.SetCursor(ctx, ev.Index)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.res.Failures = append(r.res.Failures, *f)
	report = &backbone.SyncErrorItem{ExternalEventID: ev.ID, ErrorCode: errorCode(procErr)}
	log.Warn(ctx, "event processing failed",
		"error_count", f.ErrorCount, "permanent", f.Permanent, "skipped", skip, "error", procErr)

	if skip {
		r.res.Skipped++
		return report, nil
	}

	se := toSyncError(procErr)
	if recoverable(procErr) {
		se = newSyncError(CodeEventFailed, procErr)
	}
	se.EventID = ev.ID
	return report, se
}
