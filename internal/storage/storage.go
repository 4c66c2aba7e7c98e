package storage

import "liquidityNest/internal/model"

// EventSink defines a sink for registry events.
type EventSink interface {
	PutEventBatch(events []model.RegistryEvent) error
}
