// Package registry owns one mutable asset record per owner identity.
// Creation and migration share a single idempotent entry point
// restricted to the position bridge; health mutation is gated behind a
// designated updater with an owner-initiated fallback.
package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"liquidityNest/internal/model"
	"liquidityNest/internal/storage"
)

// Outcome reports which state transition a call performed.
type Outcome string

const (
	OutcomeCreated       Outcome = "created"
	OutcomeMigrated      Outcome = "migrated"
	OutcomeHealthUpdated Outcome = "healthUpdated"
)

// assetDomainTag namespaces derived asset ids.
var assetDomainTag = []byte("nest/asset/v1")

// DeriveAssetID returns the canonical asset id for an owner.
func DeriveAssetID(owner common.Address) common.Hash {
	return crypto.Keccak256Hash(assetDomainTag, owner.Bytes())
}

// Registry maintains asset records and their authority configuration.
type Registry struct {
	mu     sync.Mutex
	store  Store
	sink   storage.EventSink
	logger *zap.Logger

	admin   common.Address
	bridge  common.Address
	updater common.Address

	now func() time.Time
}

// Config carries the registry's initial authority set.
type Config struct {
	Admin   common.Address
	Bridge  common.Address
	Updater common.Address
}

// New builds a registry over the given store. sink may be nil to
// disable the audit journal.
func New(cfg Config, store Store, sink storage.EventSink, logger *zap.Logger) (*Registry, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Admin == (common.Address{}) {
		return nil, fmt.Errorf("admin address is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		store:   store,
		sink:    sink,
		logger:  logger,
		admin:   cfg.Admin,
		bridge:  cfg.Bridge,
		updater: cfg.Updater,
		now:     time.Now,
	}, nil
}

// Hatch creates the owner's asset record or migrates an existing one.
// With requestedID zero the canonical id for the owner is derived; a
// non-zero requestedID binds to that exact id, creating it if absent
// and requiring an owner match otherwise. Restricted to the bridge.
func (r *Registry) Hatch(caller, owner common.Address, requestedID common.Hash, locationID uint64, poolID, positionID common.Hash) (common.Hash, Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if caller != r.bridge || r.bridge == (common.Address{}) {
		return common.Hash{}, "", ErrUnauthorized
	}
	if owner == (common.Address{}) {
		return common.Hash{}, "", ErrZeroOwner
	}
	if positionID == (common.Hash{}) {
		return common.Hash{}, "", ErrZeroPosition
	}

	id := requestedID
	if id == (common.Hash{}) {
		id = DeriveAssetID(owner)
	}

	record, exists, err := r.store.Get(id)
	if err != nil {
		return common.Hash{}, "", fmt.Errorf("load record: %w", err)
	}

	nowUnix := r.now().Unix()
	outcome := OutcomeMigrated

	if !exists {
		record = model.AssetRecord{
			ID:        id,
			Owner:     owner,
			Health:    100,
			CreatedAt: nowUnix,
		}
		outcome = OutcomeCreated
	} else if record.Owner != owner {
		return common.Hash{}, "", ErrOwnerMismatch
	}

	// Migration rebinds location/pool/position and refreshes the
	// update marker; owner, health and creation marker are preserved.
	record.LocationID = locationID
	record.PoolID = poolID
	record.PositionID = positionID
	record.UpdatedAt = nowUnix

	if err := r.store.Put(record); err != nil {
		return common.Hash{}, "", fmt.Errorf("store record: %w", err)
	}

	eventType := model.EventMigrated
	if outcome == OutcomeCreated {
		eventType = model.EventHatched
	}
	r.emit(model.RegistryEvent{
		Type:       eventType,
		AssetID:    id.Hex(),
		Owner:      owner.Hex(),
		Health:     record.Health,
		LocationID: locationID,
		PoolID:     poolID.Hex(),
		PositionID: positionID.Hex(),
		At:         nowUnix,
	})

	r.logger.Info("hatch",
		zap.String("asset_id", id.Hex()),
		zap.String("owner", owner.Hex()),
		zap.String("outcome", string(outcome)),
		zap.Uint64("location_id", locationID),
	)

	return id, outcome, nil
}

// UpdateHealth overwrites health and location for an existing record.
// Restricted to the designated updater.
func (r *Registry) UpdateHealth(caller common.Address, id common.Hash, health int, locationID uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if caller != r.updater || r.updater == (common.Address{}) {
		return ErrUnauthorized
	}
	return r.setHealth(id, health, locationID)
}

// OverrideHealth lets the record's own owner set health directly.
// Degraded-mode fallback for when the automated updater is down.
func (r *Registry) OverrideHealth(caller common.Address, id common.Hash, health int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, exists, err := r.store.Get(id)
	if err != nil {
		return fmt.Errorf("load record: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	if caller != record.Owner {
		return ErrUnauthorized
	}
	return r.setHealth(id, health, record.LocationID)
}

func (r *Registry) setHealth(id common.Hash, health int, locationID uint64) error {
	if health < 0 || health > 100 {
		return fmt.Errorf("%w: %d", ErrInvalidHealth, health)
	}

	record, exists, err := r.store.Get(id)
	if err != nil {
		return fmt.Errorf("load record: %w", err)
	}
	if !exists {
		return ErrNotFound
	}

	nowUnix := r.now().Unix()
	record.Health = health
	record.LocationID = locationID
	record.UpdatedAt = nowUnix

	if err := r.store.Put(record); err != nil {
		return fmt.Errorf("store record: %w", err)
	}

	r.emit(model.RegistryEvent{
		Type:       model.EventHealthUpdated,
		AssetID:    id.Hex(),
		Owner:      record.Owner.Hex(),
		Health:     health,
		LocationID: locationID,
		At:         nowUnix,
	})

	return nil
}

// SetBridge changes the bridge identity. Admin only.
func (r *Registry) SetBridge(caller, bridge common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if caller != r.admin {
		return ErrUnauthorized
	}
	if bridge == (common.Address{}) {
		return ErrEmptyValue
	}
	r.bridge = bridge
	return nil
}

// SetUpdater changes the updater identity. Admin only.
func (r *Registry) SetUpdater(caller, updater common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if caller != r.admin {
		return ErrUnauthorized
	}
	if updater == (common.Address{}) {
		return ErrEmptyValue
	}
	r.updater = updater
	return nil
}

// Record fetches a record by id.
func (r *Registry) Record(id common.Hash) (model.AssetRecord, error) {
	record, exists, err := r.store.Get(id)
	if err != nil {
		return model.AssetRecord{}, fmt.Errorf("load record: %w", err)
	}
	if !exists {
		return model.AssetRecord{}, ErrNotFound
	}
	return record, nil
}

// IDsByOwner lists all asset ids held by an owner.
func (r *Registry) IDsByOwner(owner common.Address) ([]common.Hash, error) {
	return r.store.IDsByOwner(owner)
}

// TotalHatched reports the number of records ever created.
func (r *Registry) TotalHatched() (uint64, error) {
	return r.store.Count()
}

// Exists reports whether a record is present at id.
func (r *Registry) Exists(id common.Hash) (bool, error) {
	_, exists, err := r.store.Get(id)
	return exists, err
}

// CurrentID returns the canonical id for an owner and whether a
// record exists there.
func (r *Registry) CurrentID(owner common.Address) (common.Hash, bool, error) {
	id := DeriveAssetID(owner)
	_, exists, err := r.store.Get(id)
	return id, exists, err
}

func (r *Registry) emit(event model.RegistryEvent) {
	if r.sink == nil {
		return
	}
	if err := r.sink.PutEventBatch([]model.RegistryEvent{event}); err != nil {
		// The journal is an observability surface; losing an entry
		// must not fail the mutation that already committed.
		r.logger.Warn("event journal write failed", zap.Error(err))
	}
}
