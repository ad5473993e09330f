package schema

import (
	"time"

	"github.com/google/uuid"
)

// Royalty represents the royalties table - cumulative per-contributor totals.
// Rows are created lazily on first distribution and never deleted;
// total_amount only ever increases.
type Royalty struct {
	// ID is the internal database primary key
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// DatasetID is the dataset the royalty accrues against
	DatasetID uuid.UUID `gorm:"column:dataset_id;not null;type:uuid;uniqueIndex:idx_royalties_dataset_address,priority:1"`
	// ContributorAddress is the contributor's wallet address
	ContributorAddress string `gorm:"column:contributor_address;not null;type:text;uniqueIndex:idx_royalties_dataset_address,priority:2"`
	// Share is the contributor's share snapshot at the last calculation
	Share float64 `gorm:"column:share;not null;type:double precision"`
	// TotalAmount is the cumulative amount allocated to the contributor
	TotalAmount float64 `gorm:"column:total_amount;not null;default:0;type:double precision"`
	// LastCalculated is the timestamp of the most recent distribution
	LastCalculated time.Time `gorm:"column:last_calculated;not null;type:timestamptz"`
	// CreatedAt is the timestamp this row was created
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the Royalty model
func (Royalty) TableName() string {
	return "royalties"
}
