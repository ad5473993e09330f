package schema

import (
	"time"

	"github.com/google/uuid"
)

// Contributor represents the contributors table - the share ledger rows for a
// dataset. The share sum invariant (exactly 100) is enforced by the store's
// replace operation and revalidated at distribution time.
type Contributor struct {
	// ID is the internal database primary key
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// DatasetID is the dataset the share applies to
	DatasetID uuid.UUID `gorm:"column:dataset_id;not null;type:uuid;uniqueIndex:idx_contributors_dataset_address,priority:1"`
	// Address is the contributor's wallet address
	Address string `gorm:"column:address;not null;type:text;uniqueIndex:idx_contributors_dataset_address,priority:2"`
	// Share is the revenue percentage in [0,100]
	Share float64 `gorm:"column:share;not null;type:double precision"`
	// Name is an optional display name
	Name *string `gorm:"column:name;type:text"`
	// CreatedAt is the timestamp this row was created
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
	// UpdatedAt is the timestamp this row was last updated
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the Contributor model
func (Contributor) TableName() string {
	return "contributors"
}
