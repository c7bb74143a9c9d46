package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"document-agent/internal/config"
	"document-agent/internal/helper"
	"document-agent/internal/models"
)

const (
	insertBatchSize = 500
	tablePrefix     = "document_chunks"
)

// Chunk is one row of an index table. Every Build writes to a fresh
// document_chunks_<uuid> table.
type Chunk struct {
	bun.BaseModel `bun:"table:document_chunks,alias:c"`
	Position      int             `bun:"position,pk"`
	Content       string          `bun:"content,notnull"`
	Embedding     pgvector.Vector `bun:"embedding,notnull,type:vector"`
}

type searchRow struct {
	Position int     `bun:"position"`
	Score    float64 `bun:"score"`
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// ConnectDB opens a connection pool with the configured driver. The pq
// driver reads the password from the DSN; pgdriver also accepts it apart.
func ConnectDB(cfg config.DatabaseConfig) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database dsn is required")
	}
	switch cfg.Driver {
	case config.DriverPq:
		sqldb, err := sql.Open("postgres", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		return sqldb, nil
	case config.DriverPgdriver, "":
		opts := []pgdriver.Option{pgdriver.WithDSN(cfg.DSN)}
		if cfg.Password != "" {
			opts = append(opts, pgdriver.WithPassword(cfg.Password))
		}
		return sql.OpenDB(pgdriver.NewConnector(opts...)), nil
	default:
		return nil, fmt.Errorf("unknown database driver: %s", cfg.Driver)
	}
}

func InitDB(ctx context.Context, db *bun.DB) error {
	if _, err := db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}
	return nil
}

// Index stores chunk embeddings in a pgvector column and ranks them by
// inner product. Each Index owns its table, so indexes sharing a database
// never see each other's rows.
type Index struct {
	db *bun.DB

	mu        sync.RWMutex
	table     string
	size      int
	dimension int
}

// Open connects to the database described by cfg and makes sure the vector
// extension is available.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Index, error) {
	sqldb, err := ConnectDB(cfg)
	if err != nil {
		return nil, err
	}
	db := NewDB(sqldb, cfg.Debug)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	if err := InitDB(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return NewIndex(db), nil
}

func NewIndex(db *bun.DB) *Index {
	return &Index{db: db}
}

// Build writes entries to a new table in one transaction, drops the table of
// the previous build and switches searches to the new one.
func (x *Index) Build(ctx context.Context, entries []models.IndexEntry) error {
	if len(entries) == 0 {
		return errors.New("no entries to index")
	}
	dim := len(entries[0].Embedding)
	rows := make([]Chunk, len(entries))
	for i, e := range entries {
		if len(e.Embedding) != dim {
			return fmt.Errorf("entry %d has dimension %d, expected %d", e.Position, len(e.Embedding), dim)
		}
		rows[i] = Chunk{Position: e.Position, Content: e.Content, Embedding: pgvector.NewVector(e.Embedding)}
	}

	table, err := newTableName()
	if err != nil {
		return err
	}
	x.mu.RLock()
	old := x.table
	x.mu.RUnlock()

	err = x.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewCreateTable().Model((*Chunk)(nil)).ModelTableExpr("?", bun.Ident(table)).Exec(ctx); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
		for start := 0; start < len(rows); start += insertBatchSize {
			batch := rows[start:min(start+insertBatchSize, len(rows))]
			if _, err := tx.NewInsert().Model(&batch).ModelTableExpr("?", bun.Ident(table)).Exec(ctx); err != nil {
				return fmt.Errorf("failed to insert chunks: %w", err)
			}
		}
		if old != "" {
			if err := dropTable(ctx, tx, old); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	x.mu.Lock()
	x.table, x.size, x.dimension = table, len(entries), dim
	x.mu.Unlock()
	log.Debug().Str("table", table).Int("entries", len(entries)).Int("dimension", dim).Msg("Built pgvector index")
	return nil
}

// Search returns the k rows with the highest inner product to query, best
// first. k is clamped to the index size.
func (x *Index) Search(ctx context.Context, query []float32, k int) ([]models.Hit, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	x.mu.RLock()
	table, size, dim := x.table, x.size, x.dimension
	x.mu.RUnlock()
	if size == 0 {
		return nil, errors.New("index is empty")
	}
	if len(query) != dim {
		return nil, fmt.Errorf("query has dimension %d, index expects %d", len(query), dim)
	}

	vec := pgvector.NewVector(query)
	var rows []searchRow
	err := x.db.NewSelect().
		Model((*Chunk)(nil)).
		ModelTableExpr("? AS c", bun.Ident(table)).
		Column("position").
		ColumnExpr("(embedding <#> ?) * -1 AS score", vec).
		OrderExpr("embedding <#> ?", vec).
		OrderExpr("position ASC").
		Limit(min(k, size)).
		Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}

	hits := make([]models.Hit, len(rows))
	for i, r := range rows {
		hits[i] = models.Hit{Position: r.Position, Score: r.Score}
	}
	return hits, nil
}

func (x *Index) Size() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.size
}

// Close drops the index table and releases the connection pool.
func (x *Index) Close() error {
	x.mu.Lock()
	table := x.table
	x.table, x.size = "", 0
	x.mu.Unlock()

	var dropErr error
	if table != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		dropErr = dropTable(ctx, x.db, table)
	}
	return errors.Join(dropErr, x.db.Close())
}

func newTableName() (string, error) {
	id, err := helper.GenerateUUID()
	if err != nil {
		return "", err
	}
	return tablePrefix + "_" + strings.ReplaceAll(id, "-", ""), nil
}

func dropTable(ctx context.Context, db bun.IDB, table string) error {
	if _, err := db.NewDropTable().Model((*Chunk)(nil)).ModelTableExpr("?", bun.Ident(table)).IfExists().Exec(ctx); err != nil {
		return fmt.Errorf("failed to drop table %s: %w", table, err)
	}
	return nil
}
