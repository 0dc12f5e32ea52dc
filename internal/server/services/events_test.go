package services

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/datawallet/internal/common"
	"github.com/dmitrijs2005/datawallet/internal/logging"
	"github.com/dmitrijs2005/datawallet/internal/server/models"
)

func TestInjectAndList(t *testing.T) {
	db, mock := newSQLMockDB(t)
	store := newMemStore()
	store.identities["id-1"] = &models.Identity{ID: "id-1", Username: "alice"}
	n := &recordingNotifier{}
	svc := NewEventService(db, fakeRepoManager{store}, n, logging.Nop())
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectCommit()
	ev, err := svc.Inject(ctx, "alice", "RelationshipStatusChanged", json.RawMessage(`{"id":"REL1"}`))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ev.ID, "EVT"), ev.ID)
	assert.Equal(t, int64(1), ev.Index)

	mock.ExpectBegin()
	mock.ExpectCommit()
	_, err = svc.Inject(ctx, "alice", "MessageReceived", json.RawMessage(`{}`))
	require.NoError(t, err)

	assert.Equal(t, []Notification{
		{Type: ExternalEventCreated, Index: 1},
		{Type: ExternalEventCreated, Index: 2},
	}, n.sent)

	list, err := svc.List(ctx, "id-1", 1, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "MessageReceived", list[0].Type)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInject_Validation(t *testing.T) {
	db, mock := newSQLMockDB(t)
	svc := NewEventService(db, fakeRepoManager{newMemStore()}, nil, logging.Nop())
	ctx := context.Background()

	_, err := svc.Inject(ctx, "alice", "", json.RawMessage(`{}`))
	require.ErrorIs(t, err, common.ErrValidation)

	_, err = svc.Inject(ctx, "alice", "X", json.RawMessage(`[1,2]`))
	require.ErrorIs(t, err, common.ErrValidation)

	mock.ExpectBegin()
	mock.ExpectRollback()
	_, err = svc.Inject(ctx, "nobody", "X", json.RawMessage(`{}`))
	require.ErrorIs(t, err, common.ErrorNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReportSyncErrors(t *testing.T) {
	db, mock := newSQLMockDB(t)
	store := newMemStore()
	store.events = []*models.ExternalEvent{
		{ID: "EVT1", IdentityID: "id-1", Index: 1},
		{ID: "EVT2", IdentityID: "id-2", Index: 1},
	}
	svc := NewEventService(db, fakeRepoManager{store}, nil, logging.Nop())

	mock.ExpectBegin()
	mock.ExpectCommit()
	err := svc.ReportSyncErrors(context.Background(), "id-1", []SyncError{
		{ExternalEventID: "EVT1", ErrorCode: "error.integrity"},
		{ExternalEventID: "EVT2", ErrorCode: "error.integrity"},
		{ExternalEventID: "EVT9", ErrorCode: "error.integrity"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, store.events[0].SyncErrorCount)
	assert.Zero(t, store.events[1].SyncErrorCount, "foreign events are not touched")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventList_NegativeCursor(t *testing.T) {
	db, _ := newSQLMockDB(t)
	svc := NewEventService(db, fakeRepoManager{newMemStore()}, nil, logging.Nop())
	_, err := svc.List(context.Background(), "id-1", -5, 10)
	require.ErrorIs(t, err, common.ErrValidation)
}
