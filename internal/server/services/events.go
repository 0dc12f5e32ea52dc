package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/dmitrijs2005/datawallet/internal/common"
	"github.com/dmitrijs2005/datawallet/internal/dbx"
	"github.com/dmitrijs2005/datawallet/internal/logging"
	"github.com/dmitrijs2005/datawallet/internal/server/models"
	"github.com/dmitrijs2005/datawallet/internal/server/repositories/repomanager"
)

// SyncError is a client's report that it could not process an event.
type SyncError struct {
	ExternalEventID string
	ErrorCode       string
}

type EventService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	notifier    Notifier
	log         logging.Logger
	now         func() time.Time
}

func NewEventService(db *sql.DB, m repomanager.RepositoryManager, n Notifier, log logging.Logger) *EventService {
	if n == nil {
		n = nopNotifier{}
	}
	if log == nil {
		log = logging.Nop()
	}
	return &EventService{db: db, repomanager: m, notifier: n, log: log.With("module", "events"), now: time.Now}
}

// List returns events of identityID with index greater than cursor.
func (s *EventService) List(ctx context.Context, identityID string, cursor int64, pageSize int) ([]*models.ExternalEvent, error) {
	if cursor < 0 {
		return nil, fmt.Errorf("negative cursor: %w", common.ErrValidation)
	}
	return s.repomanager.Events(s.db).ListAfter(ctx, identityID, cursor, clampPageSize(pageSize))
}

// ReportSyncErrors bumps the error counters of the reported events. Events
// the identity does not own are ignored.
func (s *EventService) ReportSyncErrors(ctx context.Context, identityID string, items []SyncError) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Events(tx)
		for _, it := range items {
			err := repo.IncrementSyncErrorCount(ctx, identityID, it.ExternalEventID)
			if errors.Is(err, common.ErrorNotFound) {
				s.log.Warn(ctx, "sync error for unknown event", "identity", identityID, "event_id", it.ExternalEventID)
				continue
			}
			if err != nil {
				return err
			}
			s.log.Info(ctx, "client failed to process event",
				"identity", identityID, "event_id", it.ExternalEventID, "code", it.ErrorCode)
		}
		return nil
	})
}

// Inject appends an external event to the stream of username. It backs the
// development admin endpoint.
func (s *EventService) Inject(ctx context.Context, username, eventType string, payload json.RawMessage) (*models.ExternalEvent, error) {
	if eventType == "" {
		return nil, fmt.Errorf("event type is missing: %w", common.ErrValidation)
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(payload, &obj); err != nil {
		return nil, fmt.Errorf("payload is not a JSON object: %w", common.ErrValidation)
	}

	var ev *models.ExternalEvent
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		identity, err := s.repomanager.Identities(tx).GetByUsername(ctx, username)
		if err != nil {
			return fmt.Errorf("identity %s: %w", username, err)
		}
		index, err := s.repomanager.Identities(tx).NextEventIndex(ctx, identity.ID)
		if err != nil {
			return err
		}
		ev = &models.ExternalEvent{
			ID:         "EVT" + ulid.Make().String(),
			IdentityID: identity.ID,
			Index:      index,
			Type:       eventType,
			Payload:    payload,
			CreatedAt:  s.now().UTC(),
		}
		return s.repomanager.Events(tx).Insert(ctx, ev)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "external event injected", "identity", ev.IdentityID, "event_id", ev.ID, "event_index", ev.Index, "type", ev.Type)
	s.notifier.Notify(ctx, ev.IdentityID, Notification{Type: ExternalEventCreated, Index: ev.Index})
	return ev, nil
}
