package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

type kvRow struct {
	bun.BaseModel `bun:"table:agent_kv,alias:kv"`

	Namespace string    `bun:"namespace,pk"`
	Key       string    `bun:"entry_key,pk"`
	Value     []byte    `bun:"value,type:bytea"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type Postgres struct {
	db        *bun.DB
	namespace string
}

func OpenPostgres(ctx context.Context, dsn, namespace string) (*Postgres, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("storage: postgres dsn is required")
	}
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())

	if _, err := db.NewCreateTable().Model((*kvRow)(nil)).IfNotExists().Exec(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: create agent_kv: %w", err)
	}
	return &Postgres{db: db, namespace: namespace}, nil
}

func (p *Postgres) Get(ctx context.Context, key string) ([]byte, error) {
	var row kvRow
	err := p.db.NewSelect().
		Model(&row).
		Where("namespace = ?", p.namespace).
		Where("entry_key = ?", key).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: postgres get %s: %w", key, err)
	}
	return row.Value, nil
}

func (p *Postgres) Set(ctx context.Context, key string, value []byte) error {
	row := &kvRow{Namespace: p.namespace, Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	_, err := p.db.NewInsert().
		Model(row).
		On("CONFLICT (namespace, entry_key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("storage: postgres set %s: %w", key, err)
	}
	return nil
}

func (p *Postgres) Delete(ctx context.Context, key string) error {
	_, err := p.db.NewDelete().
		Model((*kvRow)(nil)).
		Where("namespace = ?", p.namespace).
		Where("entry_key = ?", key).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("storage: postgres delete %s: %w", key, err)
	}
	return nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}
