package schema

import (
	"time"
)

// KeyValueStore represents the key_value_store table - small operational state
// such as the integrity sweeper's dataset cursor
type KeyValueStore struct {
	// Key is the unique lookup key
	Key string `gorm:"column:key;primaryKey;type:text"`
	// Value is the stored value
	Value string `gorm:"column:value;not null;type:text"`
	// UpdatedAt is the timestamp this entry was last written
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the KeyValueStore model
func (KeyValueStore) TableName() string {
	return "key_value_store"
}
