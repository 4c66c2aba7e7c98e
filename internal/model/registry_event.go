package model

// Registry event types.
const (
	EventHatched       = "hatched"
	EventMigrated      = "migrated"
	EventHealthUpdated = "health_updated"
)

// RegistryEvent records one registry mutation for the audit journal.
type RegistryEvent struct {
	Type       string `json:"type"`
	AssetID    string `json:"asset_id"`
	Owner      string `json:"owner"`
	Health     int    `json:"health"`
	LocationID uint64 `json:"location_id"`
	PoolID     string `json:"pool_id,omitempty"`
	PositionID string `json:"position_id,omitempty"`
	At         int64  `json:"at"`
}
