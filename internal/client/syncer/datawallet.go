package syncer

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/dmitrijs2005/datawallet/internal/client/backbone"
	"github.com/dmitrijs2005/datawallet/internal/client/eventbus"
	"github.com/dmitrijs2005/datawallet/internal/client/models"
	"github.com/dmitrijs2005/datawallet/internal/client/store"
	"github.com/dmitrijs2005/datawallet/internal/common"
)

func (r *run) syncDatawallet(ctx context.Context, force bool) error {
	if !force {
		due, err := r.datawalletDue(ctx)
		if err != nil || !due {
			return err
		}
	}

	pulled, err := r.pull(ctx)
	if err != nil {
		return err
	}
	if err := r.push(ctx); err != nil {
		return err
	}
	if err := r.st.SetLastDatawalletSync(ctx, timeNow()); err != nil {
		return err
	}
	if pulled > 0 {
		eventbus.Emit(ctx, r.bus, eventbus.Event{
			Namespace: eventbus.DatawalletSynchronized,
			Account:   r.account,
			Data:      map[string]int{"pulled": pulled},
		})
	}
	return nil
}

func (r *run) datawalletDue(ctx context.Context) (bool, error) {
	pending, err := r.mods.Count(ctx)
	if err != nil {
		return false, err
	}
	if pending > 0 {
		return true, nil
	}
	last, err := r.st.LastDatawalletSync(ctx)
	if err != nil {
		return false, err
	}
	return last.IsZero() || timeNow().Sub(last) >= r.cfg.DatawalletSyncInterval, nil
}

// pull applies remote modifications page by page. Every page is applied
// and the datawallet index advanced in one unit.
func (r *run) pull(ctx context.Context) (int, error) {
	applied := 0
	for {
		index, err := r.st.DatawalletIndex(ctx)
		if err != nil {
			return applied, err
		}

		page, err := r.fetchModifications(ctx, index)
		if err != nil {
			return applied, err
		}
		mods := orderModifications(page, index)
		if len(mods) == 0 {
			return applied, nil
		}

		n := 0
		err = r.st.Unit(ctx, func(ctx context.Context) error {
			n = 0
			for i := range mods {
				ok, err := r.applyRemote(ctx, &mods[i])
				if err != nil {
					return fmt.Errorf("remote modification %d: %w", mods[i].Index, err)
				}
				if ok {
					n++
				}
			}
			return r.st.SetDatawalletIndex(ctx, mods[len(mods)-1].Index)
		})
		if err != nil {
			return applied, err
		}
		applied += n
		r.res.Pulled += n
		r.progress(PhasePull, r.res.Pulled)

		if len(page) < r.cfg.PageSize {
			return applied, nil
		}
	}
}

func (r *run) fetchModifications(ctx context.Context, index int64) ([]models.RemoteModification, error) {
	fctx, cancel := context.WithTimeout(ctx, r.cfg.FetchTimeout)
	defer cancel()
	page, err := r.bb.GetModifications(fctx, index, r.cfg.PageSize)
	if err != nil {
		return nil, fmt.Errorf("fetch modifications after %d: %w", index, err)
	}
	return page, nil
}

// orderModifications sorts a page by index and drops entries at or below
// the local index as well as duplicates.
func orderModifications(page []models.RemoteModification, after int64) []models.RemoteModification {
	sort.SliceStable(page, func(i, j int) bool { return page[i].Index < page[j].Index })
	out := page[:0:0]
	last := after
	for _, m := range page {
		if m.Index <= last {
			continue
		}
		out = append(out, m)
		last = m.Index
	}
	return out
}

// applyRemote merges one modification of another device into the local
// replica. It reports whether local state changed.
//
// Groups still covered by an unsynced local modification keep their local
// value: that modification will be ordered after this one remotely, so
// the local value is the converged one. A remote Delete always wins and
// drops the object's unsynced local modifications.
func (r *run) applyRemote(ctx context.Context, m *models.RemoteModification) (bool, error) {
	if m.CreatedByDevice != "" && m.CreatedByDevice == r.deviceID {
		return false, nil
	}
	if !m.Collection.Known() {
		r.log.Warn(ctx, "skipping modification of unknown collection",
			"collection", m.Collection, "object_id", m.ObjectID, "index", m.Index)
		return false, nil
	}

	existing, err := r.st.GetRaw(ctx, m.Collection, m.ObjectID)
	switch {
	case errors.Is(err, common.ErrorNotFound):
		existing = nil
	case err != nil:
		return false, err
	}
	if existing != nil && existing.Deleted {
		return false, nil
	}

	switch m.Type {
	case models.ModificationDelete:
		if err := r.mods.DropObject(ctx, m.ObjectID); err != nil {
			return false, err
		}
		return true, r.st.Tombstone(ctx, m.Collection, m.ObjectID)

	case models.ModificationCacheChanged:
		return false, nil

	case models.ModificationCreate, models.ModificationUpdate:
		covered, localDelete, err := r.mods.PendingGroups(ctx, m.ObjectID)
		if err != nil {
			return false, err
		}
		if localDelete {
			return false, nil
		}
		groups, err := r.mods.Open(m.Payload)
		if err != nil {
			return false, fmt.Errorf("%w: %w", common.ErrIntegrity, err)
		}
		groups = models.WithoutGroups(groups, covered)
		if len(groups) == 0 {
			return false, nil
		}

		obj := &store.RawObject{Collection: m.Collection, ID: m.ObjectID, Version: 1}
		if existing != nil {
			obj.Doc = existing.Doc
			obj.Version = existing.Version + 1
		} else if m.Type == models.ModificationUpdate {
			r.log.Debug(ctx, "update for an object not seen yet", "object_id", m.ObjectID, "index", m.Index)
		}
		obj.Doc = models.MergeGroups(m.Collection, obj.Doc, groups)
		return true, r.st.PutRaw(ctx, obj)
	}

	r.log.Warn(ctx, "skipping modification of unknown type", "type", m.Type, "index", m.Index)
	return false, nil
}

// push uploads the entries queued before it started, FIFO in batches.
// Entries enqueued meanwhile wait for the next run. Acknowledged entries are
// removed; rejected ones stay queued and end the push so that later entries
// of the same object are not ordered before them.
func (r *run) push(ctx context.Context) error {
	upTo, err := r.mods.MaxSeq(ctx)
	if err != nil || upTo == 0 {
		return err
	}
	r.mods.BeginFlight(upTo)
	defer r.mods.EndFlight()

	var after int64
	for {
		batch, err := r.mods.Pending(ctx, after, r.cfg.PushBatchSize)
		if err != nil {
			return err
		}
		for i, m := range batch {
			if m.Seq > upTo {
				batch = batch[:i]
				break
			}
		}
		if len(batch) == 0 {
			return nil
		}

		rejected, err := r.pushBatch(ctx, batch)
		if err != nil {
			return err
		}
		if rejected > 0 {
			return &SyncError{
				Code:    CodeRejected,
				Message: fmt.Sprintf("backbone rejected %d of %d modifications", rejected, len(batch)),
			}
		}
		after = batch[len(batch)-1].Seq
	}
}

func (r *run) pushBatch(ctx context.Context, batch []*models.Modification) (int, error) {
	items := make([]backbone.PushItem, len(batch))
	for i, m := range batch {
		items[i] = backbone.PushItem{
			IdempotencyKey:    m.IdempotencyKey,
			ObjectID:          m.ObjectID,
			Collection:        m.Collection,
			Type:              m.Type,
			Payload:           m.Payload,
			DatawalletVersion: m.DatawalletVersion,
		}
	}

	pctx, cancel := context.WithTimeout(ctx, r.cfg.PushTimeout)
	results, err := r.bb.PushModifications(pctx, items)
	cancel()
	if err != nil {
		return 0, fmt.Errorf("push %d modifications: %w", len(items), err)
	}

	outcome := make(map[string]backbone.PushResult, len(results))
	for _, res := range results {
		outcome[res.IdempotencyKey] = res
	}

	acked := make([]int64, 0, len(batch))
	rejected := 0
	for _, m := range batch {
		res, ok := outcome[m.IdempotencyKey]
		switch {
		case ok && res.Error == "":
			acked = append(acked, m.Seq)
		case ok:
			rejected++
			r.log.Warn(ctx, "modification rejected", "seq", m.Seq, "object_id", m.ObjectID, "error", res.Error)
		default:
			rejected++
			r.log.Warn(ctx, "modification missing from push result", "seq", m.Seq, "object_id", m.ObjectID)
		}
	}

	if err := r.mods.Ack(ctx, acked); err != nil {
		return 0, err
	}
	r.res.Pushed += len(acked)
	r.progress(PhasePush, r.res.Pushed)
	return rejected, nil
}
