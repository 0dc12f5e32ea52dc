package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/datawallet/internal/common"
	"github.com/dmitrijs2005/datawallet/internal/dbx"
	"github.com/dmitrijs2005/datawallet/internal/logging"
	"github.com/dmitrijs2005/datawallet/internal/server/models"
	"github.com/dmitrijs2005/datawallet/internal/server/repositories/repomanager"
)

// MaxDatawalletVersion is the newest payload format this backbone accepts.
const MaxDatawalletVersion = 1

// PushItem is one modification uploaded by a device.
type PushItem struct {
	IdempotencyKey    string
	ObjectID          string
	Collection        string
	Type              string
	Payload           []byte
	DatawalletVersion int
}

// PushResult reports the index assigned to an item, or why it was rejected.
type PushResult struct {
	IdempotencyKey string
	Index          int64
	Error          string
}

type DatawalletService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	notifier    Notifier
	log         logging.Logger
	now         func() time.Time
}

func NewDatawalletService(db *sql.DB, m repomanager.RepositoryManager, n Notifier, log logging.Logger) *DatawalletService {
	if n == nil {
		n = nopNotifier{}
	}
	if log == nil {
		log = logging.Nop()
	}
	return &DatawalletService{db: db, repomanager: m, notifier: n, log: log.With("module", "datawallet"), now: time.Now}
}

// Push appends items to the datawallet of identityID in one transaction.
// An item whose idempotency key is already stored gets its original index
// back. Once an item is rejected the rest of the batch is rejected too, so
// accepted indexes always follow the device's order.
func (s *DatawalletService) Push(ctx context.Context, identityID, deviceID string, items []PushItem) ([]PushResult, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device id is missing: %w", common.ErrValidation)
	}

	results := make([]PushResult, 0, len(items))
	var maxIndex int64
	var added int

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		results, maxIndex, added = results[:0], 0, 0
		now := s.now().UTC()

		if err := s.repomanager.Devices(tx).Touch(ctx, identityID, deviceID, now); err != nil {
			return err
		}

		identities := s.repomanager.Identities(tx)
		mods := s.repomanager.Modifications(tx)
		rejected := ""

		for _, it := range items {
			res := PushResult{IdempotencyKey: it.IdempotencyKey}
			if rejected != "" {
				res.Error = "preceding item " + rejected + " was rejected"
				results = append(results, res)
				continue
			}
			if reason := validatePushItem(it); reason != "" {
				res.Error = reason
				rejected = it.IdempotencyKey
				results = append(results, res)
				continue
			}

			existing, err := mods.GetByIdempotencyKey(ctx, identityID, it.IdempotencyKey)
			switch {
			case err == nil:
				res.Index = existing.Index
				results = append(results, res)
				continue
			case !errors.Is(err, common.ErrorNotFound):
				return err
			}

			index, err := identities.NextDatawalletIndex(ctx, identityID)
			if err != nil {
				return err
			}
			err = mods.Insert(ctx, &models.Modification{
				Index:             index,
				IdentityID:        identityID,
				IdempotencyKey:    it.IdempotencyKey,
				ObjectID:          it.ObjectID,
				Collection:        it.Collection,
				Type:              it.Type,
				Payload:           it.Payload,
				DatawalletVersion: it.DatawalletVersion,
				CreatedByDevice:   deviceID,
				CreatedAt:         now,
			})
			if err != nil {
				return err
			}
			res.Index = index
			maxIndex = index
			added++
			results = append(results, res)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("push modifications: %w", err)
	}

	if added > 0 {
		s.log.Debug(ctx, "modifications stored", "identity", identityID, "device", deviceID, "added", added, "index", maxIndex)
		s.notifier.Notify(ctx, identityID, Notification{Type: DatawalletModificationsCreated, Index: maxIndex})
	}
	return results, nil
}

func validatePushItem(it PushItem) string {
	switch {
	case it.IdempotencyKey == "":
		return "idempotency key is missing"
	case it.ObjectID == "":
		return "object identifier is missing"
	case it.Collection == "":
		return "collection is missing"
	case it.DatawalletVersion < 1 || it.DatawalletVersion > MaxDatawalletVersion:
		return fmt.Sprintf("datawallet version %d is not supported", it.DatawalletVersion)
	}
	switch it.Type {
	case models.ModificationCreate, models.ModificationUpdate:
		if len(it.Payload) == 0 {
			return it.Type + " without payload"
		}
	case models.ModificationDelete, models.ModificationCacheChanged:
	default:
		return fmt.Sprintf("modification type %q is unknown", it.Type)
	}
	return ""
}

// List returns modifications of identityID with index greater than
// localIndex.
func (s *DatawalletService) List(ctx context.Context, identityID string, localIndex int64, pageSize int) ([]*models.Modification, error) {
	if localIndex < 0 {
		return nil, fmt.Errorf("negative local index: %w", common.ErrValidation)
	}
	return s.repomanager.Modifications(s.db).ListAfter(ctx, identityID, localIndex, clampPageSize(pageSize))
}
