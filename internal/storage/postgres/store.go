package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"liquidityNest/internal/model"
)

// Store provides Postgres persistence for asset records. It satisfies
// the registry's Store interface. Registry calls carry no context of
// their own (a call either completes or aborts in place), so queries
// run under context.Background.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the asset_records table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS asset_records (
			asset_id    TEXT PRIMARY KEY,
			owner       TEXT NOT NULL,
			health      INT NOT NULL,
			created_at  BIGINT NOT NULL,
			updated_at  BIGINT NOT NULL,
			location_id BIGINT NOT NULL,
			pool_id     TEXT NOT NULL,
			position_id TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS asset_records_owner_idx ON asset_records (owner);
	`)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Get loads one asset record by id.
func (s *Store) Get(id common.Hash) (model.AssetRecord, bool, error) {
	row := s.pool.QueryRow(context.Background(), `
		SELECT asset_id, owner, health, created_at, updated_at, location_id, pool_id, position_id
		FROM asset_records
		WHERE asset_id = $1
	`, id.Hex())

	var (
		assetID    string
		owner      string
		health     int
		createdAt  int64
		updatedAt  int64
		locationID int64
		poolID     string
		positionID string
	)
	err := row.Scan(&assetID, &owner, &health, &createdAt, &updatedAt, &locationID, &poolID, &positionID)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.AssetRecord{}, false, nil
	}
	if err != nil {
		return model.AssetRecord{}, false, fmt.Errorf("query record: %w", err)
	}

	return model.AssetRecord{
		ID:         common.HexToHash(assetID),
		Owner:      common.HexToAddress(owner),
		Health:     health,
		CreatedAt:  createdAt,
		UpdatedAt:  updatedAt,
		LocationID: uint64(locationID),
		PoolID:     common.HexToHash(poolID),
		PositionID: common.HexToHash(positionID),
	}, true, nil
}

// Put inserts or updates one asset record.
func (s *Store) Put(record model.AssetRecord) error {
	_, err := s.pool.Exec(context.Background(), `
		INSERT INTO asset_records (
			asset_id, owner, health, created_at, updated_at, location_id, pool_id, position_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (asset_id)
		DO UPDATE SET
			owner = EXCLUDED.owner,
			health = EXCLUDED.health,
			updated_at = EXCLUDED.updated_at,
			location_id = EXCLUDED.location_id,
			pool_id = EXCLUDED.pool_id,
			position_id = EXCLUDED.position_id
	`,
		record.ID.Hex(),
		record.Owner.Hex(),
		record.Health,
		record.CreatedAt,
		record.UpdatedAt,
		int64(record.LocationID),
		record.PoolID.Hex(),
		record.PositionID.Hex(),
	)
	if err != nil {
		return fmt.Errorf("upsert record: %w", err)
	}
	return nil
}

// IDsByOwner lists all asset ids held by an owner.
func (s *Store) IDsByOwner(owner common.Address) ([]common.Hash, error) {
	rows, err := s.pool.Query(context.Background(), `
		SELECT asset_id FROM asset_records WHERE owner = $1 ORDER BY created_at
	`, owner.Hex())
	if err != nil {
		return nil, fmt.Errorf("query ids: %w", err)
	}
	defer rows.Close()

	var ids []common.Hash
	for rows.Next() {
		var assetID string
		if err := rows.Scan(&assetID); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, common.HexToHash(assetID))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ids: %w", err)
	}
	return ids, nil
}

// Count reports the total number of asset records.
func (s *Store) Count() (uint64, error) {
	var count int64
	row := s.pool.QueryRow(context.Background(), `SELECT COUNT(*) FROM asset_records`)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return uint64(count), nil
}
