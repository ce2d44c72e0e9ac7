package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/foodly/authsync"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

var _ authsync.HintStore = &HintRepository{}

// HintModel is the Bun model for remembered client hints.
type HintModel struct {
	bun.BaseModel `bun:"table:client_hints"`

	Key       string    `bun:"hint_key,pk"`
	Value     string    `bun:"value,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// HintRepository implements authsync.HintStore using Bun.
type HintRepository struct {
	db  *bun.DB
	now func() time.Time
}

// NewHintRepository creates a new repository.
func NewHintRepository(db *bun.DB) *HintRepository {
	return &HintRepository{db: db, now: time.Now}
}

// OpenSQLite opens (or creates) the hint database at path. Use ":memory:"
// for a throwaway store.
func OpenSQLite(ctx context.Context, path string) (*bun.DB, error) {
	dsn := "file:" + path + "?cache=shared"
	if path == ":memory:" {
		dsn = "file::memory:?cache=shared"
	}

	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open hint database: %w", err)
	}
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Migrate creates the hint table if needed.
func Migrate(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().
		Model((*HintModel)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create client_hints: %w", err)
	}
	return nil
}

// Get implements authsync.HintStore.
func (r *HintRepository) Get(ctx context.Context, key string) (string, bool, error) {
	var model HintModel
	err := r.db.NewSelect().
		Model(&model).
		Where("hint_key = ?", key).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return model.Value, true, nil
}

// Set implements authsync.HintStore.
func (r *HintRepository) Set(ctx context.Context, key, value string) error {
	model := &HintModel{
		Key:       key,
		Value:     value,
		UpdatedAt: r.now(),
	}

	_, err := r.db.NewInsert().
		Model(model).
		On("CONFLICT (hint_key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

// Delete implements authsync.HintStore.
func (r *HintRepository) Delete(ctx context.Context, key string) error {
	_, err := r.db.NewDelete().
		Model((*HintModel)(nil)).
		Where("hint_key = ?", key).
		Exec(ctx)
	return err
}
