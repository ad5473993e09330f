package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/datalith/provenance-ledger/internal/domain"
	"github.com/datalith/provenance-ledger/internal/store"
	"github.com/datalith/provenance-ledger/internal/store/schema"
)

// ChainBuilder assembles a dataset's provenance history into validated views.
// Integrity errors are surfaced for operator investigation, never repaired on
// the read path.
type ChainBuilder interface {
	// BuildChain returns the dataset's records from root to latest, validated
	// for linkage integrity
	BuildChain(ctx context.Context, datasetID uuid.UUID) ([]domain.Record, error)
	// BuildGraph returns the lineage tree keyed by record id with child lists
	BuildGraph(ctx context.Context, datasetID uuid.UUID) (*domain.Graph, error)
}

type chainBuilder struct {
	store store.Store
}

// NewChainBuilder creates a new chain builder
func NewChainBuilder(st store.Store) ChainBuilder {
	return &chainBuilder{store: st}
}

// BuildChain returns the validated record sequence from root to latest
func (b *chainBuilder) BuildChain(ctx context.Context, datasetID uuid.UUID) ([]domain.Record, error) {
	records, _, err := b.loadValidated(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	return records, nil
}

// BuildGraph returns the lineage tree for the dataset
func (b *chainBuilder) BuildGraph(ctx context.Context, datasetID uuid.UUID) (*domain.Graph, error) {
	records, rootID, err := b.loadValidated(ctx, datasetID)
	if err != nil {
		return nil, err
	}

	graph := &domain.Graph{
		RootID: rootID,
		Nodes:  make(map[uuid.UUID]*domain.GraphNode, len(records)),
	}
	for _, record := range records {
		graph.Nodes[record.ID] = &domain.GraphNode{Record: record}
	}
	for _, record := range records {
		if record.PreviousRecordID == nil {
			continue
		}
		parent := graph.Nodes[*record.PreviousRecordID]
		parent.Children = append(parent.Children, record.ID)
	}

	return graph, nil
}

// loadValidated loads the dataset's records, validates linkage integrity and
// returns them root first together with the root id.
//
// Validation rules:
//   - exactly one root must exist (nil previous-record reference)
//   - every non-root record's predecessor must resolve within the set
//   - every ancestor walk must terminate at the root within N steps, where N
//     is the record count; exceeding N signals a cycle
func (b *chainBuilder) loadValidated(ctx context.Context, datasetID uuid.UUID) ([]domain.Record, uuid.UUID, error) {
	rows, err := b.store.ListRecordsByDataset(ctx, datasetID)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("failed to load records: %w", err)
	}

	byID := make(map[uuid.UUID]*schema.ProvenanceRecord, len(rows))
	var rootID uuid.UUID
	var rootCount int
	for i := range rows {
		row := &rows[i]
		byID[row.ID] = row
		if row.PreviousRecordID == nil {
			rootID = row.ID
			rootCount++
		}
	}

	if rootCount == 0 {
		return nil, uuid.Nil, fmt.Errorf("%w: dataset %s", domain.ErrMissingRoot, datasetID)
	}
	if rootCount > 1 {
		return nil, uuid.Nil, fmt.Errorf("%w: dataset %s has %d roots", domain.ErrBrokenChain, datasetID, rootCount)
	}

	// Walk every record's ancestor chain, bounding iterations by the record
	// count so a corrupted back-reference loop cannot hang the read path
	for i := range rows {
		current := &rows[i]
		for steps := 0; current.PreviousRecordID != nil; steps++ {
			if steps >= len(rows) {
				return nil, uuid.Nil, fmt.Errorf("%w: dataset %s, starting at record %s",
					domain.ErrCycleDetected, datasetID, rows[i].ID)
			}

			parent, ok := byID[*current.PreviousRecordID]
			if !ok {
				return nil, uuid.Nil, fmt.Errorf("%w: record %s references missing record %s",
					domain.ErrBrokenChain, current.ID, *current.PreviousRecordID)
			}
			current = parent
		}
	}

	records := make([]domain.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, toDomainRecord(&row))
	}
	return records, rootID, nil
}

func toDomainRecord(row *schema.ProvenanceRecord) domain.Record {
	return domain.Record{
		ID:               row.ID,
		DatasetID:        row.DatasetID,
		ActionType:       row.ActionType,
		PerformedBy:      row.PerformedBy,
		Description:      row.Description,
		Metadata:         json.RawMessage(row.Metadata),
		ContentRef:       row.ContentRef,
		ChainTxRef:       row.ChainTxRef,
		PreviousRecordID: row.PreviousRecordID,
		CreatedAt:        row.CreatedAt,
	}
}
