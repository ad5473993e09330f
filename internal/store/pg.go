package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/datalith/provenance-ledger/internal/domain"
	"github.com/datalith/provenance-ledger/internal/store/schema"
)

const sweepCursorKey = "integrity_sweep_cursor"

type pgStore struct {
	db *gorm.DB
}

// NewPGStore creates a new PostgreSQL store instance
func NewPGStore(db *gorm.DB) Store {
	return &pgStore{db: db}
}

// ConfigureConnectionPool configures the connection pool settings for a GORM
// database connection. Zero values fall back to reasonable defaults.
func ConfigureConnectionPool(db *gorm.DB, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime =
		NormalizeConnectionPoolSettings(maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime)

	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	return nil
}

// NormalizeConnectionPoolSettings applies defaults and clamps pool settings
// into safe values.
//
// Defaults (when zero):
//   - MaxOpenConns: 20
//   - MaxIdleConns: 5
//   - ConnMaxLifetime: 5 minutes
//   - ConnMaxIdleTime: 10 minutes
//
// Notes:
//   - database/sql treats MaxOpenConns=0 as "unlimited"
//   - database/sql treats MaxIdleConns=0 as "no idle connections"
func NormalizeConnectionPoolSettings(maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) (int, int, time.Duration, time.Duration) {
	if maxOpenConns == 0 {
		maxOpenConns = 20
	}
	if maxIdleConns == 0 {
		maxIdleConns = 5
	}
	if connMaxLifetime == 0 {
		connMaxLifetime = 5 * time.Minute
	}
	if connMaxIdleTime == 0 {
		connMaxIdleTime = 10 * time.Minute
	}

	// Ensure MaxIdleConns doesn't exceed MaxOpenConns
	if maxIdleConns > maxOpenConns {
		maxIdleConns = maxOpenConns
	}

	return maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime
}

// acquireDatasetLock takes the dataset-scoped advisory lock for the duration
// of the surrounding transaction. Operations on other datasets hash to other
// lock keys and proceed concurrently.
func acquireDatasetLock(tx *gorm.DB, datasetID uuid.UUID) error {
	if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtextextended(?, 0))", datasetID.String()).Error; err != nil {
		return fmt.Errorf("failed to acquire dataset lock: %w", err)
	}
	return nil
}

// AppendRecord durably appends a provenance record inside a single transaction
func (s *pgStore) AppendRecord(ctx context.Context, input AppendRecordInput) (*schema.ProvenanceRecord, error) {
	var record *schema.ProvenanceRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := acquireDatasetLock(tx, input.DatasetID); err != nil {
			return err
		}

		previousID := input.PreviousRecordID
		if input.ResolveTip {
			tip, err := chainTip(tx, input.DatasetID)
			if err != nil {
				return err
			}
			if tip != nil {
				previousID = &tip.ID
			} else {
				previousID = nil
			}
		}

		if previousID != nil {
			var previous schema.ProvenanceRecord
			err := tx.Where("id = ?", *previousID).First(&previous).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: previous record %s does not exist", domain.ErrInvalidLinkage, *previousID)
			}
			if err != nil {
				return fmt.Errorf("failed to resolve previous record: %w", err)
			}
			if previous.DatasetID != input.DatasetID {
				return fmt.Errorf("%w: previous record %s belongs to dataset %s",
					domain.ErrInvalidLinkage, previous.ID, previous.DatasetID)
			}
		} else {
			if input.ActionType != domain.ActionCreation {
				return fmt.Errorf("%w: %s event for dataset %s with no prior creation record",
					domain.ErrMissingRoot, input.ActionType, input.DatasetID)
			}

			var roots int64
			if err := tx.Model(&schema.ProvenanceRecord{}).
				Where("root_marker = ?", input.DatasetID).
				Count(&roots).Error; err != nil {
				return fmt.Errorf("failed to check for existing root: %w", err)
			}
			if roots > 0 {
				return fmt.Errorf("%w: dataset %s already has a creation record", domain.ErrDuplicateRoot, input.DatasetID)
			}
		}

		row := schema.ProvenanceRecord{
			ID:               input.ID,
			DatasetID:        input.DatasetID,
			ActionType:       input.ActionType,
			PerformedBy:      input.PerformedBy,
			Description:      input.Description,
			Metadata:         datatypes.JSON(input.Metadata),
			ContentRef:       input.ContentRef,
			PreviousRecordID: previousID,
			CreatedAt:        time.Now().UTC(),
		}
		if previousID == nil {
			// The unique index on root_marker backstops the duplicate-root
			// check against concurrent writers outside the advisory lock
			datasetID := input.DatasetID
			row.RootMarker = &datasetID
		}

		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("failed to append provenance record: %w", err)
		}

		record = &row
		return nil
	})
	if err != nil {
		return nil, err
	}

	return record, nil
}

// GetRecord retrieves a record by id
func (s *pgStore) GetRecord(ctx context.Context, id uuid.UUID) (*schema.ProvenanceRecord, error) {
	var record schema.ProvenanceRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrRecordNotFound, id)
		}
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return &record, nil
}

// ListRecordsByDataset retrieves all records of a dataset ordered by creation time ascending
func (s *pgStore) ListRecordsByDataset(ctx context.Context, datasetID uuid.UUID) ([]schema.ProvenanceRecord, error) {
	var records []schema.ProvenanceRecord
	err := s.db.WithContext(ctx).
		Where("dataset_id = ?", datasetID).
		Order("created_at ASC, id ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	return records, nil
}

// ListChildren retrieves the records chained directly onto recordID
func (s *pgStore) ListChildren(ctx context.Context, recordID uuid.UUID) ([]schema.ProvenanceRecord, error) {
	var records []schema.ProvenanceRecord
	err := s.db.WithContext(ctx).
		Where("previous_record_id = ?", recordID).
		Order("created_at ASC, id ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list children: %w", err)
	}
	return records, nil
}

// GetChainTip retrieves the most recently appended record of a dataset
func (s *pgStore) GetChainTip(ctx context.Context, datasetID uuid.UUID) (*schema.ProvenanceRecord, error) {
	return chainTip(s.db.WithContext(ctx), datasetID)
}

func chainTip(tx *gorm.DB, datasetID uuid.UUID) (*schema.ProvenanceRecord, error) {
	var record schema.ProvenanceRecord
	err := tx.Where("dataset_id = ?", datasetID).
		Order("created_at DESC, id DESC").
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get chain tip: %w", err)
	}
	return &record, nil
}

// HasActionRecord checks whether the dataset's chain contains a record of the given action type
func (s *pgStore) HasActionRecord(ctx context.Context, datasetID uuid.UUID, action domain.ActionType) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&schema.ProvenanceRecord{}).
		Where("dataset_id = ? AND action_type = ?", datasetID, string(action)).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check action records: %w", err)
	}
	return count > 0, nil
}

// AttachChainTx attaches the on-chain transaction reference to a committed record
func (s *pgStore) AttachChainTx(ctx context.Context, recordID uuid.UUID, txRef string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&schema.ProvenanceRecord{}).
			Where("id = ? AND chain_tx_ref IS NULL", recordID).
			Update("chain_tx_ref", txRef)
		if result.Error != nil {
			return fmt.Errorf("failed to attach chain transaction: %w", result.Error)
		}
		if result.RowsAffected > 0 {
			return nil
		}

		var count int64
		if err := tx.Model(&schema.ProvenanceRecord{}).
			Where("id = ?", recordID).
			Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check record existence: %w", err)
		}
		if count == 0 {
			return fmt.Errorf("%w: %s", domain.ErrRecordNotFound, recordID)
		}
		return fmt.Errorf("%w: %s", domain.ErrChainTxAlreadySet, recordID)
	})
}

// ListDatasetIDs pages over distinct dataset ids in ascending order
func (s *pgStore) ListDatasetIDs(ctx context.Context, cursor uuid.UUID, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.db.WithContext(ctx).
		Model(&schema.ProvenanceRecord{}).
		Distinct("dataset_id").
		Where("dataset_id > ?", cursor).
		Order("dataset_id ASC").
		Limit(limit).
		Pluck("dataset_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list dataset ids: %w", err)
	}
	return ids, nil
}

// ReplaceContributors transactionally replaces the contributor set of a dataset
func (s *pgStore) ReplaceContributors(ctx context.Context, datasetID uuid.UUID, contributors []domain.ShareInput) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := acquireDatasetLock(tx, datasetID); err != nil {
			return err
		}

		addresses := make([]string, 0, len(contributors))
		for _, c := range contributors {
			addresses = append(addresses, c.Address)
		}

		// Remove rows not present in the new set
		del := tx.Where("dataset_id = ?", datasetID)
		if len(addresses) > 0 {
			del = del.Where("address NOT IN ?", addresses)
		}
		if err := del.Delete(&schema.Contributor{}).Error; err != nil {
			return fmt.Errorf("failed to remove stale contributors: %w", err)
		}

		if len(contributors) == 0 {
			return nil
		}

		rows := make([]schema.Contributor, 0, len(contributors))
		now := time.Now().UTC()
		for _, c := range contributors {
			rows = append(rows, schema.Contributor{
				DatasetID: datasetID,
				Address:   c.Address,
				Share:     c.Share,
				Name:      c.Name,
				CreatedAt: now,
				UpdatedAt: now,
			})
		}

		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "dataset_id"}, {Name: "address"}},
			DoUpdates: clause.AssignmentColumns([]string{"share", "name", "updated_at"}),
		}).Create(&rows).Error; err != nil {
			return fmt.Errorf("failed to upsert contributors: %w", err)
		}

		return nil
	})
}

// ListContributors retrieves the contributor rows of a dataset ordered by address
func (s *pgStore) ListContributors(ctx context.Context, datasetID uuid.UUID) ([]schema.Contributor, error) {
	var contributors []schema.Contributor
	err := s.db.WithContext(ctx).
		Where("dataset_id = ?", datasetID).
		Order("address ASC").
		Find(&contributors).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list contributors: %w", err)
	}
	return contributors, nil
}

// UpsertRoyalties applies one distribution atomically: every royalty row is
// created or incremented inside a single transaction
func (s *pgStore) UpsertRoyalties(ctx context.Context, input UpsertRoyaltiesInput) error {
	if len(input.Allocations) == 0 {
		return nil
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := acquireDatasetLock(tx, input.DatasetID); err != nil {
			return err
		}

		rows := make([]schema.Royalty, 0, len(input.Allocations))
		for _, a := range input.Allocations {
			rows = append(rows, schema.Royalty{
				DatasetID:          input.DatasetID,
				ContributorAddress: a.Address,
				Share:              input.Shares[a.Address],
				TotalAmount:        a.Amount,
				LastCalculated:     input.LastCalculated,
				CreatedAt:          input.LastCalculated,
			})
		}

		// total_amount accumulates; share and last_calculated are snapshots
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "dataset_id"}, {Name: "contributor_address"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"total_amount":    gorm.Expr("royalties.total_amount + EXCLUDED.total_amount"),
				"share":           gorm.Expr("EXCLUDED.share"),
				"last_calculated": gorm.Expr("EXCLUDED.last_calculated"),
			}),
		}).Create(&rows).Error; err != nil {
			return fmt.Errorf("failed to upsert royalties: %w", err)
		}

		return nil
	})
}

// ListRoyalties retrieves the royalty rows of a dataset ordered by address
func (s *pgStore) ListRoyalties(ctx context.Context, datasetID uuid.UUID) ([]schema.Royalty, error) {
	var royalties []schema.Royalty
	err := s.db.WithContext(ctx).
		Where("dataset_id = ?", datasetID).
		Order("contributor_address ASC").
		Find(&royalties).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list royalties: %w", err)
	}
	return royalties, nil
}

// WithDatasetLock runs fn inside a transaction holding the dataset's advisory lock
func (s *pgStore) WithDatasetLock(ctx context.Context, datasetID uuid.UUID, fn func(txStore Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := acquireDatasetLock(tx, datasetID); err != nil {
			return err
		}
		return fn(&pgStore{db: tx})
	})
}

// GetSweepCursor retrieves the integrity sweeper's dataset cursor
func (s *pgStore) GetSweepCursor(ctx context.Context) (uuid.UUID, error) {
	var kv schema.KeyValueStore
	err := s.db.WithContext(ctx).Where("key = ?", sweepCursorKey).First(&kv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return uuid.Nil, nil
		}
		return uuid.Nil, fmt.Errorf("failed to get sweep cursor: %w", err)
	}

	cursor, err := uuid.Parse(kv.Value)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to parse sweep cursor: %w", err)
	}
	return cursor, nil
}

// SetSweepCursor stores the integrity sweeper's dataset cursor
func (s *pgStore) SetSweepCursor(ctx context.Context, cursor uuid.UUID) error {
	kv := schema.KeyValueStore{
		Key:       sweepCursorKey,
		Value:     cursor.String(),
		UpdatedAt: time.Now().UTC(),
	}

	if err := s.db.WithContext(ctx).Save(&kv).Error; err != nil {
		return fmt.Errorf("failed to set sweep cursor: %w", err)
	}
	return nil
}
