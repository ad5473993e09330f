package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datalith/provenance-ledger/internal/domain"
)

// =============================================================================
// Test Data Builders
// =============================================================================

const (
	testCreatorAddress     = "0x1111111111111111111111111111111111111111"
	testContributorAddress = "0x2222222222222222222222222222222222222222"
	testVerifierAddress    = "0x3333333333333333333333333333333333333333"
)

// buildTestRecord creates an append input for one provenance record
func buildTestRecord(datasetID uuid.UUID, action domain.ActionType, previous *uuid.UUID) AppendRecordInput {
	metadata, _ := json.Marshal(map[string]interface{}{
		"note": "test event",
	})

	return AppendRecordInput{
		ID:               uuid.New(),
		DatasetID:        datasetID,
		ActionType:       action,
		PerformedBy:      testCreatorAddress,
		Description:      "test " + string(action) + " event",
		Metadata:         metadata,
		PreviousRecordID: previous,
	}
}

// buildTestChain appends a creation record followed by n tip-resolved
// modification records and returns all of them in append order
func buildTestChain(t *testing.T, store Store, datasetID uuid.UUID, n int) []uuid.UUID {
	ctx := context.Background()

	root, err := store.AppendRecord(ctx, buildTestRecord(datasetID, domain.ActionCreation, nil))
	require.NoError(t, err)

	ids := []uuid.UUID{root.ID}
	for i := 0; i < n; i++ {
		input := buildTestRecord(datasetID, domain.ActionModification, nil)
		input.ResolveTip = true
		record, err := store.AppendRecord(ctx, input)
		require.NoError(t, err)
		ids = append(ids, record.ID)
	}
	return ids
}

// =============================================================================
// Test: AppendRecord
// =============================================================================

func testAppendRecord(t *testing.T, store Store) {
	ctx := context.Background()

	t.Run("creation record becomes the dataset root", func(t *testing.T) {
		datasetID := uuid.New()

		record, err := store.AppendRecord(ctx, buildTestRecord(datasetID, domain.ActionCreation, nil))
		require.NoError(t, err)
		assert.Equal(t, datasetID, record.DatasetID)
		assert.Nil(t, record.PreviousRecordID)
		require.NotNil(t, record.RootMarker)
		assert.Equal(t, datasetID, *record.RootMarker)
		assert.False(t, record.CreatedAt.IsZero())
	})

	t.Run("second rootless creation fails with duplicate root", func(t *testing.T) {
		datasetID := uuid.New()

		_, err := store.AppendRecord(ctx, buildTestRecord(datasetID, domain.ActionCreation, nil))
		require.NoError(t, err)

		_, err = store.AppendRecord(ctx, buildTestRecord(datasetID, domain.ActionCreation, nil))
		assert.ErrorIs(t, err, domain.ErrDuplicateRoot)
	})

	t.Run("non-creation record before the root fails with missing root", func(t *testing.T) {
		datasetID := uuid.New()

		_, err := store.AppendRecord(ctx, buildTestRecord(datasetID, domain.ActionModification, nil))
		assert.ErrorIs(t, err, domain.ErrMissingRoot)

		// Nothing must have been written
		records, err := store.ListRecordsByDataset(ctx, datasetID)
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("explicit previous record chains the new record onto it", func(t *testing.T) {
		datasetID := uuid.New()

		root, err := store.AppendRecord(ctx, buildTestRecord(datasetID, domain.ActionCreation, nil))
		require.NoError(t, err)

		record, err := store.AppendRecord(ctx, buildTestRecord(datasetID, domain.ActionModification, &root.ID))
		require.NoError(t, err)
		require.NotNil(t, record.PreviousRecordID)
		assert.Equal(t, root.ID, *record.PreviousRecordID)
		assert.Nil(t, record.RootMarker)
	})

	t.Run("resolve tip chains onto the latest record", func(t *testing.T) {
		datasetID := uuid.New()
		ids := buildTestChain(t, store, datasetID, 2)

		input := buildTestRecord(datasetID, domain.ActionUsage, nil)
		input.ResolveTip = true
		record, err := store.AppendRecord(ctx, input)
		require.NoError(t, err)
		require.NotNil(t, record.PreviousRecordID)
		assert.Equal(t, ids[len(ids)-1], *record.PreviousRecordID)
	})

	t.Run("previous record from another dataset fails with invalid linkage", func(t *testing.T) {
		datasetA := uuid.New()
		datasetB := uuid.New()

		rootA, err := store.AppendRecord(ctx, buildTestRecord(datasetA, domain.ActionCreation, nil))
		require.NoError(t, err)

		_, err = store.AppendRecord(ctx, buildTestRecord(datasetB, domain.ActionModification, &rootA.ID))
		assert.ErrorIs(t, err, domain.ErrInvalidLinkage)
	})

	t.Run("nonexistent previous record fails with invalid linkage", func(t *testing.T) {
		datasetID := uuid.New()

		_, err := store.AppendRecord(ctx, buildTestRecord(datasetID, domain.ActionCreation, nil))
		require.NoError(t, err)

		ghost := uuid.New()
		_, err = store.AppendRecord(ctx, buildTestRecord(datasetID, domain.ActionModification, &ghost))
		assert.ErrorIs(t, err, domain.ErrInvalidLinkage)
	})

	t.Run("branching from a non-tip ancestor is allowed", func(t *testing.T) {
		datasetID := uuid.New()
		ids := buildTestChain(t, store, datasetID, 2)

		// Derive from the root even though the chain has moved on
		branch, err := store.AppendRecord(ctx, buildTestRecord(datasetID, domain.ActionDerivation, &ids[0]))
		require.NoError(t, err)
		require.NotNil(t, branch.PreviousRecordID)
		assert.Equal(t, ids[0], *branch.PreviousRecordID)

		children, err := store.ListChildren(ctx, ids[0])
		require.NoError(t, err)
		assert.Len(t, children, 2)
	})
}

// =============================================================================
// Test: GetRecord / ListRecordsByDataset / GetChainTip
// =============================================================================

func testGetRecord(t *testing.T, store Store) {
	ctx := context.Background()

	t.Run("returns the stored record", func(t *testing.T) {
		datasetID := uuid.New()
		input := buildTestRecord(datasetID, domain.ActionCreation, nil)

		created, err := store.AppendRecord(ctx, input)
		require.NoError(t, err)

		record, err := store.GetRecord(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, input.ID, record.ID)
		assert.Equal(t, input.Description, record.Description)
		assert.JSONEq(t, string(input.Metadata), string(record.Metadata))
	})

	t.Run("unknown record fails with not found", func(t *testing.T) {
		_, err := store.GetRecord(ctx, uuid.New())
		assert.ErrorIs(t, err, domain.ErrRecordNotFound)
	})
}

func testListRecordsByDataset(t *testing.T, store Store) {
	ctx := context.Background()

	t.Run("returns records in append order", func(t *testing.T) {
		datasetID := uuid.New()
		ids := buildTestChain(t, store, datasetID, 3)

		records, err := store.ListRecordsByDataset(ctx, datasetID)
		require.NoError(t, err)
		require.Len(t, records, len(ids))
		for i, record := range records {
			assert.Equal(t, ids[i], record.ID)
		}
	})

	t.Run("unknown dataset yields no records", func(t *testing.T) {
		records, err := store.ListRecordsByDataset(ctx, uuid.New())
		require.NoError(t, err)
		assert.Empty(t, records)
	})
}

func testGetChainTip(t *testing.T, store Store) {
	ctx := context.Background()

	t.Run("empty dataset has no tip", func(t *testing.T) {
		tip, err := store.GetChainTip(ctx, uuid.New())
		require.NoError(t, err)
		assert.Nil(t, tip)
	})

	t.Run("tip is the most recently appended record", func(t *testing.T) {
		datasetID := uuid.New()
		ids := buildTestChain(t, store, datasetID, 2)

		tip, err := store.GetChainTip(ctx, datasetID)
		require.NoError(t, err)
		require.NotNil(t, tip)
		assert.Equal(t, ids[len(ids)-1], tip.ID)
	})
}

// =============================================================================
// Test: HasActionRecord
// =============================================================================

func testHasActionRecord(t *testing.T, store Store) {
	ctx := context.Background()

	datasetID := uuid.New()
	buildTestChain(t, store, datasetID, 1)

	has, err := store.HasActionRecord(ctx, datasetID, domain.ActionCreation)
	require.NoError(t, err)
	assert.True(t, has)

	has, err = store.HasActionRecord(ctx, datasetID, domain.ActionVerification)
	require.NoError(t, err)
	assert.False(t, has)
}

// =============================================================================
// Test: AttachChainTx
// =============================================================================

func testAttachChainTx(t *testing.T, store Store) {
	ctx := context.Background()

	t.Run("attaches the reference once", func(t *testing.T) {
		datasetID := uuid.New()
		ids := buildTestChain(t, store, datasetID, 0)

		err := store.AttachChainTx(ctx, ids[0], "0xabc123")
		require.NoError(t, err)

		record, err := store.GetRecord(ctx, ids[0])
		require.NoError(t, err)
		require.NotNil(t, record.ChainTxRef)
		assert.Equal(t, "0xabc123", *record.ChainTxRef)
	})

	t.Run("second attachment fails and keeps the original reference", func(t *testing.T) {
		datasetID := uuid.New()
		ids := buildTestChain(t, store, datasetID, 0)

		require.NoError(t, store.AttachChainTx(ctx, ids[0], "0xfirst"))

		err := store.AttachChainTx(ctx, ids[0], "0xsecond")
		assert.ErrorIs(t, err, domain.ErrChainTxAlreadySet)

		record, err := store.GetRecord(ctx, ids[0])
		require.NoError(t, err)
		require.NotNil(t, record.ChainTxRef)
		assert.Equal(t, "0xfirst", *record.ChainTxRef)
	})

	t.Run("unknown record fails with not found", func(t *testing.T) {
		err := store.AttachChainTx(ctx, uuid.New(), "0xabc")
		assert.ErrorIs(t, err, domain.ErrRecordNotFound)
	})
}

// =============================================================================
// Test: ListDatasetIDs
// =============================================================================

func testListDatasetIDs(t *testing.T, store Store) {
	ctx := context.Background()

	datasets := make([]uuid.UUID, 5)
	for i := range datasets {
		datasets[i] = uuid.New()
		buildTestChain(t, store, datasets[i], 1)
	}

	var collected []uuid.UUID
	cursor := uuid.Nil
	for {
		page, err := store.ListDatasetIDs(ctx, cursor, 2)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		collected = append(collected, page...)
		cursor = page[len(page)-1]
	}

	// Every seeded dataset shows up exactly once across pages
	seen := make(map[uuid.UUID]int)
	for _, id := range collected {
		seen[id]++
	}
	for _, id := range datasets {
		assert.Equal(t, 1, seen[id], "dataset %s", id)
	}
}

// =============================================================================
// Test: Contributors
// =============================================================================

func testReplaceContributors(t *testing.T, store Store) {
	ctx := context.Background()

	name := "Alice"

	t.Run("inserts the contributor set", func(t *testing.T) {
		datasetID := uuid.New()

		err := store.ReplaceContributors(ctx, datasetID, []domain.ShareInput{
			{Address: testCreatorAddress, Share: 80, Name: &name},
			{Address: testContributorAddress, Share: 20},
		})
		require.NoError(t, err)

		contributors, err := store.ListContributors(ctx, datasetID)
		require.NoError(t, err)
		require.Len(t, contributors, 2)
		assert.Equal(t, testCreatorAddress, contributors[0].Address)
		assert.Equal(t, 80.0, contributors[0].Share)
		require.NotNil(t, contributors[0].Name)
		assert.Equal(t, name, *contributors[0].Name)
		assert.Equal(t, testContributorAddress, contributors[1].Address)
		assert.Equal(t, 20.0, contributors[1].Share)
	})

	t.Run("replacement updates shares and removes stale rows", func(t *testing.T) {
		datasetID := uuid.New()

		require.NoError(t, store.ReplaceContributors(ctx, datasetID, []domain.ShareInput{
			{Address: testCreatorAddress, Share: 50},
			{Address: testContributorAddress, Share: 50},
		}))

		require.NoError(t, store.ReplaceContributors(ctx, datasetID, []domain.ShareInput{
			{Address: testCreatorAddress, Share: 70},
			{Address: testVerifierAddress, Share: 30},
		}))

		contributors, err := store.ListContributors(ctx, datasetID)
		require.NoError(t, err)
		require.Len(t, contributors, 2)
		assert.Equal(t, testCreatorAddress, contributors[0].Address)
		assert.Equal(t, 70.0, contributors[0].Share)
		assert.Equal(t, testVerifierAddress, contributors[1].Address)
		assert.Equal(t, 30.0, contributors[1].Share)
	})

	t.Run("empty set clears the ledger", func(t *testing.T) {
		datasetID := uuid.New()

		require.NoError(t, store.ReplaceContributors(ctx, datasetID, []domain.ShareInput{
			{Address: testCreatorAddress, Share: 100},
		}))
		require.NoError(t, store.ReplaceContributors(ctx, datasetID, nil))

		contributors, err := store.ListContributors(ctx, datasetID)
		require.NoError(t, err)
		assert.Empty(t, contributors)
	})
}

// =============================================================================
// Test: Royalties
// =============================================================================

func testUpsertRoyalties(t *testing.T, store Store) {
	ctx := context.Background()

	shares := map[string]float64{
		testCreatorAddress:     80,
		testContributorAddress: 20,
	}

	t.Run("first distribution creates the rows", func(t *testing.T) {
		datasetID := uuid.New()
		now := time.Now().UTC().Truncate(time.Microsecond)

		err := store.UpsertRoyalties(ctx, UpsertRoyaltiesInput{
			DatasetID: datasetID,
			Allocations: []domain.Allocation{
				{Address: testCreatorAddress, Amount: 800},
				{Address: testContributorAddress, Amount: 200},
			},
			Shares:         shares,
			LastCalculated: now,
		})
		require.NoError(t, err)

		royalties, err := store.ListRoyalties(ctx, datasetID)
		require.NoError(t, err)
		require.Len(t, royalties, 2)
		assert.Equal(t, testCreatorAddress, royalties[0].ContributorAddress)
		assert.Equal(t, 800.0, royalties[0].TotalAmount)
		assert.Equal(t, 80.0, royalties[0].Share)
		assert.Equal(t, testContributorAddress, royalties[1].ContributorAddress)
		assert.Equal(t, 200.0, royalties[1].TotalAmount)
	})

	t.Run("subsequent distributions accumulate totals", func(t *testing.T) {
		datasetID := uuid.New()

		for _, revenue := range []float64{1000, 500} {
			err := store.UpsertRoyalties(ctx, UpsertRoyaltiesInput{
				DatasetID: datasetID,
				Allocations: []domain.Allocation{
					{Address: testCreatorAddress, Amount: revenue * 0.8},
					{Address: testContributorAddress, Amount: revenue * 0.2},
				},
				Shares:         shares,
				LastCalculated: time.Now().UTC(),
			})
			require.NoError(t, err)
		}

		royalties, err := store.ListRoyalties(ctx, datasetID)
		require.NoError(t, err)
		require.Len(t, royalties, 2)
		assert.InDelta(t, 1200.0, royalties[0].TotalAmount, 1e-9)
		assert.InDelta(t, 300.0, royalties[1].TotalAmount, 1e-9)
	})

	t.Run("empty allocation set is a no-op", func(t *testing.T) {
		datasetID := uuid.New()

		err := store.UpsertRoyalties(ctx, UpsertRoyaltiesInput{
			DatasetID:      datasetID,
			LastCalculated: time.Now().UTC(),
		})
		require.NoError(t, err)

		royalties, err := store.ListRoyalties(ctx, datasetID)
		require.NoError(t, err)
		assert.Empty(t, royalties)
	})
}

// =============================================================================
// Test: WithDatasetLock
// =============================================================================

func testWithDatasetLock(t *testing.T, store Store) {
	ctx := context.Background()

	t.Run("locked operations see and produce committed state", func(t *testing.T) {
		datasetID := uuid.New()

		err := store.WithDatasetLock(ctx, datasetID, func(tx Store) error {
			_, err := tx.AppendRecord(ctx, buildTestRecord(datasetID, domain.ActionCreation, nil))
			return err
		})
		require.NoError(t, err)

		records, err := store.ListRecordsByDataset(ctx, datasetID)
		require.NoError(t, err)
		assert.Len(t, records, 1)
	})

	t.Run("an error rolls the whole operation back", func(t *testing.T) {
		datasetID := uuid.New()

		err := store.WithDatasetLock(ctx, datasetID, func(tx Store) error {
			if _, err := tx.AppendRecord(ctx, buildTestRecord(datasetID, domain.ActionCreation, nil)); err != nil {
				return err
			}
			return assert.AnError
		})
		assert.ErrorIs(t, err, assert.AnError)

		records, err := store.ListRecordsByDataset(ctx, datasetID)
		require.NoError(t, err)
		assert.Empty(t, records)
	})
}

// =============================================================================
// Test: Sweep cursor
// =============================================================================

func testSweepCursor(t *testing.T, store Store) {
	ctx := context.Background()

	cursor, err := store.GetSweepCursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, cursor)

	want := uuid.New()
	require.NoError(t, store.SetSweepCursor(ctx, want))

	cursor, err = store.GetSweepCursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, cursor)

	// Overwrite
	require.NoError(t, store.SetSweepCursor(ctx, uuid.Nil))
	cursor, err = store.GetSweepCursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, cursor)
}

// =============================================================================
// Suite
// =============================================================================

// RunStoreTests runs the full store suite against one implementation
func RunStoreTests(t *testing.T, initDB func(t *testing.T) Store, cleanupDB func(t *testing.T)) {
	tests := []struct {
		name string
		fn   func(*testing.T, Store)
	}{
		{"AppendRecord", testAppendRecord},
		{"GetRecord", testGetRecord},
		{"ListRecordsByDataset", testListRecordsByDataset},
		{"GetChainTip", testGetChainTip},
		{"HasActionRecord", testHasActionRecord},
		{"AttachChainTx", testAttachChainTx},
		{"ListDatasetIDs", testListDatasetIDs},
		{"ReplaceContributors", testReplaceContributors},
		{"UpsertRoyalties", testUpsertRoyalties},
		{"WithDatasetLock", testWithDatasetLock},
		{"SweepCursor", testSweepCursor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := initDB(t)
			defer cleanupDB(t)
			tt.fn(t, store)
		})
	}
}
