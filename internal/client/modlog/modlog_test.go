package modlog

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/datawallet/internal/client/models"
	"github.com/dmitrijs2005/datawallet/internal/client/store"
	"github.com/dmitrijs2005/datawallet/internal/common"
	"github.com/dmitrijs2005/datawallet/internal/cryptox"
)

func newLog(t *testing.T, coalesce bool) (*Log, *store.Store) {
	t.Helper()
	st, err := store.Open(context.Background(), ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Unlock(context.Background(), cryptox.DeriveMasterKey([]byte("pw"), []byte("salt"))))
	return New(st, coalesce, nil), st
}

func groups(userdata string) models.Groups {
	return models.Groups{
		models.GroupUserdata: {"value": json.RawMessage(userdata)},
	}
}

func change(id string, typ models.ModificationType, g models.Groups) Change {
	return Change{ObjectID: id, Collection: models.CollectionSettings, Type: typ, Groups: g}
}

func TestIdempotencyKey(t *testing.T) {
	k1 := IdempotencyKey("SET1", 1, "n1")
	assert.Len(t, k1, 64)
	assert.Equal(t, k1, IdempotencyKey("SET1", 1, "n1"))
	assert.NotEqual(t, k1, IdempotencyKey("SET1", 1, "n2"))
	assert.NotEqual(t, k1, IdempotencyKey("SET1", 2, "n1"))
}

func TestEnqueue_RejectsUnknownTypeAndCollection(t *testing.T) {
	l, _ := newLog(t, true)
	ctx := context.Background()

	_, err := l.Enqueue(ctx, change("SET1", "Patch", nil))
	require.ErrorIs(t, err, common.ErrValidation)

	_, err = l.Enqueue(ctx, Change{ObjectID: "X", Collection: "Tokens", Type: models.ModificationCreate})
	require.ErrorIs(t, err, common.ErrValidation)
}

func TestEnqueue_WithoutCoalescingKeepsEveryEntry(t *testing.T) {
	l, _ := newLog(t, false)
	ctx := context.Background()

	_, err := l.Enqueue(ctx, change("SET1", models.ModificationCreate, groups(`1`)))
	require.NoError(t, err)
	_, err = l.Enqueue(ctx, change("SET1", models.ModificationUpdate, groups(`2`)))
	require.NoError(t, err)
	_, err = l.Enqueue(ctx, change("SET1", models.ModificationDelete, nil))
	require.NoError(t, err)

	n, err := l.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestEnqueue_UpdateMergesIntoCreate(t *testing.T) {
	l, _ := newLog(t, true)
	ctx := context.Background()

	created, err := l.Enqueue(ctx, change("SET1", models.ModificationCreate, models.Groups{
		models.GroupTechnical: {"key": json.RawMessage(`"theme"`)},
		models.GroupUserdata:  {"value": json.RawMessage(`"dark"`)},
	}))
	require.NoError(t, err)
	firstKey := created.IdempotencyKey

	merged, err := l.Enqueue(ctx, change("SET1", models.ModificationUpdate, groups(`"light"`)))
	require.NoError(t, err)
	assert.Equal(t, created.Seq, merged.Seq)
	assert.Equal(t, models.ModificationCreate, merged.Type)
	assert.NotEqual(t, firstKey, merged.IdempotencyKey)

	pending, err := l.Pending(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	g, err := l.Open(pending[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, `"light"`, string(g[models.GroupUserdata]["value"]))
	assert.Equal(t, `"theme"`, string(g[models.GroupTechnical]["key"]))
}

func TestEnqueue_DeleteSupersedesQueuedEntries(t *testing.T) {
	l, _ := newLog(t, true)
	ctx := context.Background()

	_, err := l.Enqueue(ctx, change("SET1", models.ModificationCreate, groups(`1`)))
	require.NoError(t, err)
	_, err = l.Enqueue(ctx, change("SET2", models.ModificationCreate, groups(`1`)))
	require.NoError(t, err)
	_, err = l.Enqueue(ctx, change("SET1", models.ModificationUpdate, groups(`2`)))
	require.NoError(t, err)
	_, err = l.Enqueue(ctx, change("SET1", models.ModificationDelete, nil))
	require.NoError(t, err)

	pending, err := l.Pending(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "SET2", pending[0].ObjectID)
	assert.Equal(t, "SET1", pending[1].ObjectID)
	assert.Equal(t, models.ModificationDelete, pending[1].Type)
	assert.Empty(t, pending[1].Payload)
}

func TestEnqueue_RepeatedCacheChangedIsDropped(t *testing.T) {
	l, _ := newLog(t, true)
	ctx := context.Background()

	first, err := l.Enqueue(ctx, Change{ObjectID: "FIL1", Collection: models.CollectionFiles, Type: models.ModificationCacheChanged})
	require.NoError(t, err)
	second, err := l.Enqueue(ctx, Change{ObjectID: "FIL1", Collection: models.CollectionFiles, Type: models.ModificationCacheChanged})
	require.NoError(t, err)
	assert.Equal(t, first.Seq, second.Seq)

	n, err := l.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestEnqueue_InFlightEntriesAreNotRewritten(t *testing.T) {
	l, _ := newLog(t, true)
	ctx := context.Background()

	created, err := l.Enqueue(ctx, change("SET1", models.ModificationCreate, groups(`1`)))
	require.NoError(t, err)

	top, err := l.MaxSeq(ctx)
	require.NoError(t, err)
	l.BeginFlight(top)

	upd, err := l.Enqueue(ctx, change("SET1", models.ModificationUpdate, groups(`2`)))
	require.NoError(t, err)
	assert.NotEqual(t, created.Seq, upd.Seq)

	_, err = l.Enqueue(ctx, change("SET1", models.ModificationDelete, nil))
	require.NoError(t, err)

	pending, err := l.Pending(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2, "the in-flight Create survives the Delete")
	assert.Equal(t, created.IdempotencyKey, pending[0].IdempotencyKey)
	assert.Equal(t, models.ModificationDelete, pending[1].Type)

	l.EndFlight()
	require.NoError(t, l.DropObject(ctx, "SET1"))
	n, err := l.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAck(t *testing.T) {
	l, _ := newLog(t, true)
	ctx := context.Background()

	m1, _ := l.Enqueue(ctx, change("SET1", models.ModificationCreate, groups(`1`)))
	m2, _ := l.Enqueue(ctx, change("SET2", models.ModificationCreate, groups(`1`)))

	require.NoError(t, l.Ack(ctx, []int64{m1.Seq}))
	pending, err := l.Pending(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, m2.Seq, pending[0].Seq)
}

func TestPendingGroups(t *testing.T) {
	l, _ := newLog(t, false)
	ctx := context.Background()

	_, err := l.Enqueue(ctx, change("ATT1", models.ModificationUpdate, models.Groups{
		models.GroupMetadata: {"wasViewedAt": json.RawMessage(`"2025-01-01T00:00:00Z"`)},
	}))
	require.NoError(t, err)

	covered, deleted, err := l.PendingGroups(ctx, "ATT1")
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.Equal(t, map[models.Group]bool{models.GroupMetadata: true}, covered)

	_, err = l.Enqueue(ctx, change("ATT1", models.ModificationDelete, nil))
	require.NoError(t, err)
	_, deleted, err = l.PendingGroups(ctx, "ATT1")
	require.NoError(t, err)
	assert.True(t, deleted)

	covered, deleted, err = l.PendingGroups(ctx, "ATT9")
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.Empty(t, covered)
}

func TestEnqueue_JoinsCallerUnit(t *testing.T) {
	l, st := newLog(t, true)
	ctx := context.Background()

	err := st.Unit(ctx, func(ctx context.Context) error {
		_, err := l.Enqueue(ctx, change("SET1", models.ModificationCreate, groups(`1`)))
		require.NoError(t, err)
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	n, err := l.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "rolled back with the unit")
}
