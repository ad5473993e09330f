package royalty

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/datalith/provenance-ledger/internal/domain"
	"github.com/datalith/provenance-ledger/internal/store/schema"
)

// SetShares replaces the contributor set of a dataset after validating the
// share invariants. The replacement is transactional; recording the
// accompanying modification provenance event is the caller's responsibility.
func (s *service) SetShares(ctx context.Context, datasetID uuid.UUID, shares []domain.ShareInput) error {
	normalized, err := normalizeShares(shares)
	if err != nil {
		return err
	}

	if err := validateShareSum(normalized); err != nil {
		return err
	}

	if err := s.store.ReplaceContributors(ctx, datasetID, normalized); err != nil {
		return fmt.Errorf("failed to replace contributors: %w", err)
	}

	return nil
}

// GetShares retrieves the contributor set of a dataset ordered by address
func (s *service) GetShares(ctx context.Context, datasetID uuid.UUID) ([]domain.Contributor, error) {
	rows, err := s.store.ListContributors(ctx, datasetID)
	if err != nil {
		return nil, fmt.Errorf("failed to list contributors: %w", err)
	}

	contributors := make([]domain.Contributor, 0, len(rows))
	for _, row := range rows {
		contributors = append(contributors, domain.Contributor{
			DatasetID: row.DatasetID,
			Address:   row.Address,
			Share:     row.Share,
			Name:      row.Name,
		})
	}
	return contributors, nil
}

// normalizeShares validates addresses and ranges and normalizes address
// casing so the (dataset, address) uniqueness check is case-insensitive
func normalizeShares(shares []domain.ShareInput) ([]domain.ShareInput, error) {
	normalized := make([]domain.ShareInput, 0, len(shares))
	seen := make(map[string]struct{}, len(shares))

	for _, share := range shares {
		if !domain.IsValidAddress(share.Address) {
			return nil, fmt.Errorf("%w: %q", domain.ErrInvalidAddress, share.Address)
		}
		if share.Share < 0 || share.Share > domain.SHARE_TOTAL {
			return nil, fmt.Errorf("%w: %s has share %v", domain.ErrOutOfRangeShare, share.Address, share.Share)
		}

		address := domain.NormalizeAddress(share.Address)
		if _, ok := seen[address]; ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrDuplicateContributor, address)
		}
		seen[address] = struct{}{}

		normalized = append(normalized, domain.ShareInput{
			Address: address,
			Share:   share.Share,
			Name:    share.Name,
		})
	}

	return normalized, nil
}

// validateShareSum checks that shares sum to exactly 100 within tolerance.
// Shares are never silently normalized.
func validateShareSum(shares []domain.ShareInput) error {
	var sum float64
	for _, share := range shares {
		sum += share.Share
	}

	if math.Abs(sum-domain.SHARE_TOTAL) > domain.SHARE_TOLERANCE {
		return fmt.Errorf("%w: shares sum to %v, expected %v", domain.ErrInvalidShareSum, sum, domain.SHARE_TOTAL)
	}
	return nil
}

// validateContributorSum revalidates persisted rows at distribution time,
// since shares may have drifted since the last SetShares call
func validateContributorSum(contributors []schema.Contributor) error {
	var sum float64
	for _, c := range contributors {
		sum += c.Share
	}

	if math.Abs(sum-domain.SHARE_TOTAL) > domain.SHARE_TOLERANCE {
		return fmt.Errorf("%w: persisted shares sum to %v, expected %v", domain.ErrInvalidShareSum, sum, domain.SHARE_TOTAL)
	}
	return nil
}
