package ledger_test

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/datalith/provenance-ledger/internal/domain"
	"github.com/datalith/provenance-ledger/internal/store"
	"github.com/datalith/provenance-ledger/internal/store/schema"
)

// memStore is an in-memory Store used by the service and chain builder tests.
// It mirrors the PostgreSQL store's linkage semantics; the dataset lock
// degenerates to a process-wide mutex.
type memStore struct {
	mu        sync.Mutex
	records   map[uuid.UUID]*schema.ProvenanceRecord
	order     []uuid.UUID
	contribs  map[uuid.UUID][]schema.Contributor
	royalties map[uuid.UUID]map[string]*schema.Royalty
	cursor    uuid.UUID
	nextTime  time.Time
}

func newMemStore() *memStore {
	return &memStore{
		records:   make(map[uuid.UUID]*schema.ProvenanceRecord),
		contribs:  make(map[uuid.UUID][]schema.Contributor),
		royalties: make(map[uuid.UUID]map[string]*schema.Royalty),
		nextTime:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// tick hands out strictly increasing timestamps so chain ordering stays
// deterministic
func (m *memStore) tick() time.Time {
	m.nextTime = m.nextTime.Add(time.Millisecond)
	return m.nextTime
}

func (m *memStore) tipLocked(datasetID uuid.UUID) *schema.ProvenanceRecord {
	for i := len(m.order) - 1; i >= 0; i-- {
		record := m.records[m.order[i]]
		if record.DatasetID == datasetID {
			return record
		}
	}
	return nil
}

func (m *memStore) AppendRecord(ctx context.Context, input store.AppendRecordInput) (*schema.ProvenanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	previousID := input.PreviousRecordID
	if input.ResolveTip {
		if tip := m.tipLocked(input.DatasetID); tip != nil {
			previousID = &tip.ID
		} else {
			previousID = nil
		}
	}

	if previousID != nil {
		previous, ok := m.records[*previousID]
		if !ok {
			return nil, fmt.Errorf("%w: previous record %s does not exist", domain.ErrInvalidLinkage, *previousID)
		}
		if previous.DatasetID != input.DatasetID {
			return nil, fmt.Errorf("%w: previous record %s belongs to dataset %s",
				domain.ErrInvalidLinkage, previous.ID, previous.DatasetID)
		}
	} else {
		if input.ActionType != domain.ActionCreation {
			return nil, fmt.Errorf("%w: %s event for dataset %s with no prior creation record",
				domain.ErrMissingRoot, input.ActionType, input.DatasetID)
		}
		for _, id := range m.order {
			record := m.records[id]
			if record.DatasetID == input.DatasetID && record.PreviousRecordID == nil {
				return nil, fmt.Errorf("%w: dataset %s already has a creation record",
					domain.ErrDuplicateRoot, input.DatasetID)
			}
		}
	}

	row := &schema.ProvenanceRecord{
		ID:               input.ID,
		DatasetID:        input.DatasetID,
		ActionType:       input.ActionType,
		PerformedBy:      input.PerformedBy,
		Description:      input.Description,
		Metadata:         datatypes.JSON(input.Metadata),
		ContentRef:       input.ContentRef,
		PreviousRecordID: previousID,
		CreatedAt:        m.tick(),
	}
	if previousID == nil {
		datasetID := input.DatasetID
		row.RootMarker = &datasetID
	}

	m.records[row.ID] = row
	m.order = append(m.order, row.ID)
	copied := *row
	return &copied, nil
}

func (m *memStore) GetRecord(ctx context.Context, id uuid.UUID) (*schema.ProvenanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrRecordNotFound, id)
	}
	copied := *record
	return &copied, nil
}

func (m *memStore) ListRecordsByDataset(ctx context.Context, datasetID uuid.UUID) ([]schema.ProvenanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var records []schema.ProvenanceRecord
	for _, id := range m.order {
		record := m.records[id]
		if record.DatasetID == datasetID {
			records = append(records, *record)
		}
	}
	return records, nil
}

func (m *memStore) ListChildren(ctx context.Context, recordID uuid.UUID) ([]schema.ProvenanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var records []schema.ProvenanceRecord
	for _, id := range m.order {
		record := m.records[id]
		if record.PreviousRecordID != nil && *record.PreviousRecordID == recordID {
			records = append(records, *record)
		}
	}
	return records, nil
}

func (m *memStore) GetChainTip(ctx context.Context, datasetID uuid.UUID) (*schema.ProvenanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tip := m.tipLocked(datasetID)
	if tip == nil {
		return nil, nil
	}
	copied := *tip
	return &copied, nil
}

func (m *memStore) HasActionRecord(ctx context.Context, datasetID uuid.UUID, action domain.ActionType) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range m.order {
		record := m.records[id]
		if record.DatasetID == datasetID && record.ActionType == action {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) AttachChainTx(ctx context.Context, recordID uuid.UUID, txRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.records[recordID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrRecordNotFound, recordID)
	}
	if record.ChainTxRef != nil {
		return fmt.Errorf("%w: %s", domain.ErrChainTxAlreadySet, recordID)
	}
	record.ChainTxRef = &txRef
	return nil
}

func (m *memStore) ListDatasetIDs(ctx context.Context, cursor uuid.UUID, limit int) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[uuid.UUID]bool)
	var ids []uuid.UUID
	for _, id := range m.order {
		datasetID := m.records[id].DatasetID
		if !seen[datasetID] {
			seen[datasetID] = true
			ids = append(ids, datasetID)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})

	var page []uuid.UUID
	for _, id := range ids {
		if bytes.Compare(id[:], cursor[:]) <= 0 {
			continue
		}
		page = append(page, id)
		if len(page) == limit {
			break
		}
	}
	return page, nil
}

func (m *memStore) ReplaceContributors(ctx context.Context, datasetID uuid.UUID, contributors []domain.ShareInput) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows := make([]schema.Contributor, 0, len(contributors))
	now := m.tick()
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
	sort.Slice(rows, func(i, j int) bool { return rows[i].Address < rows[j].Address })
	m.contribs[datasetID] = rows
	return nil
}

func (m *memStore) ListContributors(ctx context.Context, datasetID uuid.UUID) ([]schema.Contributor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]schema.Contributor(nil), m.contribs[datasetID]...), nil
}

func (m *memStore) UpsertRoyalties(ctx context.Context, input store.UpsertRoyaltiesInput) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows := m.royalties[input.DatasetID]
	if rows == nil {
		rows = make(map[string]*schema.Royalty)
		m.royalties[input.DatasetID] = rows
	}
	for _, a := range input.Allocations {
		row, ok := rows[a.Address]
		if !ok {
			row = &schema.Royalty{
				DatasetID:          input.DatasetID,
				ContributorAddress: a.Address,
				CreatedAt:          input.LastCalculated,
			}
			rows[a.Address] = row
		}
		row.TotalAmount += a.Amount
		row.Share = input.Shares[a.Address]
		row.LastCalculated = input.LastCalculated
	}
	return nil
}

func (m *memStore) ListRoyalties(ctx context.Context, datasetID uuid.UUID) ([]schema.Royalty, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var royalties []schema.Royalty
	for _, row := range m.royalties[datasetID] {
		royalties = append(royalties, *row)
	}
	sort.Slice(royalties, func(i, j int) bool {
		return royalties[i].ContributorAddress < royalties[j].ContributorAddress
	})
	return royalties, nil
}

func (m *memStore) WithDatasetLock(ctx context.Context, datasetID uuid.UUID, fn func(txStore store.Store) error) error {
	return fn(m)
}

func (m *memStore) GetSweepCursor(ctx context.Context) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor, nil
}

func (m *memStore) SetSweepCursor(ctx context.Context, cursor uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursor = cursor
	return nil
}

// corruptPrevious rewires a stored record's previous reference, bypassing the
// append-time linkage checks, to simulate a corrupted history
func (m *memStore) corruptPrevious(recordID uuid.UUID, previous *uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[recordID].PreviousRecordID = previous
}
