package royalty

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/datalith/provenance-ledger/internal/adapter"
	"github.com/datalith/provenance-ledger/internal/domain"
	"github.com/datalith/provenance-ledger/internal/store"
)

// Service defines the share ledger and royalty calculator operations
type Service interface {
	// SetShares replaces the contributor set of a dataset; fails with
	// domain.ErrInvalidShareSum, domain.ErrDuplicateContributor or
	// domain.ErrOutOfRangeShare when the input violates the share invariants
	SetShares(ctx context.Context, datasetID uuid.UUID, shares []domain.ShareInput) error
	// GetShares retrieves the contributor set of a dataset
	GetShares(ctx context.Context, datasetID uuid.UUID) ([]domain.Contributor, error)
	// Distribute allocates one revenue event across the dataset's
	// contributors and accumulates the royalty totals atomically. Callers
	// invoke it exactly once per revenue event.
	Distribute(ctx context.Context, datasetID uuid.UUID, revenue float64) ([]domain.Allocation, error)
	// GetRoyalties retrieves the cumulative royalty rows of a dataset
	GetRoyalties(ctx context.Context, datasetID uuid.UUID) ([]domain.Royalty, error)
}

type service struct {
	store store.Store
	clock adapter.Clock
}

// NewService creates a new royalty service
func NewService(st store.Store, clock adapter.Clock) Service {
	return &service{store: st, clock: clock}
}

// Distribute reads the share ledger, validates it, computes per-contributor
// allocations and writes the new royalty totals in a single atomic unit per
// dataset. A failure midway leaves royalty totals unchanged.
func (s *service) Distribute(ctx context.Context, datasetID uuid.UUID, revenue float64) ([]domain.Allocation, error) {
	if revenue <= 0 {
		return nil, fmt.Errorf("%w: revenue must be positive, got %v", domain.ErrInvalidAmount, revenue)
	}

	var allocations []domain.Allocation
	err := s.store.WithDatasetLock(ctx, datasetID, func(tx store.Store) error {
		contributors, err := tx.ListContributors(ctx, datasetID)
		if err != nil {
			return fmt.Errorf("failed to load shares: %w", err)
		}
		if len(contributors) == 0 {
			return fmt.Errorf("%w: dataset %s", domain.ErrNoContributors, datasetID)
		}

		// Shares may have drifted since the eager SetShares check
		if err := validateContributorSum(contributors); err != nil {
			return err
		}

		// Address order keeps rounding deterministic across repeated runs
		sort.Slice(contributors, func(i, j int) bool {
			return contributors[i].Address < contributors[j].Address
		})

		shares := make(map[string]float64, len(contributors))
		allocations = make([]domain.Allocation, 0, len(contributors))
		for _, c := range contributors {
			shares[c.Address] = c.Share
			allocations = append(allocations, domain.Allocation{
				Address: c.Address,
				Amount:  revenue * (c.Share / domain.SHARE_TOTAL),
			})
		}

		return tx.UpsertRoyalties(ctx, store.UpsertRoyaltiesInput{
			DatasetID:      datasetID,
			Allocations:    allocations,
			Shares:         shares,
			LastCalculated: s.clock.Now().UTC(),
		})
	})
	if err != nil {
		return nil, err
	}

	return allocations, nil
}

// GetRoyalties retrieves the cumulative royalty rows of a dataset
func (s *service) GetRoyalties(ctx context.Context, datasetID uuid.UUID) ([]domain.Royalty, error) {
	rows, err := s.store.ListRoyalties(ctx, datasetID)
	if err != nil {
		return nil, fmt.Errorf("failed to list royalties: %w", err)
	}

	royalties := make([]domain.Royalty, 0, len(rows))
	for _, row := range rows {
		royalties = append(royalties, domain.Royalty{
			DatasetID:      row.DatasetID,
			Address:        row.ContributorAddress,
			Share:          row.Share,
			TotalAmount:    row.TotalAmount,
			LastCalculated: row.LastCalculated,
		})
	}
	return royalties, nil
}
