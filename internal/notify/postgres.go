package notify

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"
)

// PostgresBackend appends events to a PostgreSQL table. The connection is
// opened lazily on first publish.
type PostgresBackend struct {
	log     *zap.SugaredLogger
	connStr string
	table   string

	mu sync.Mutex
	db *sql.DB
}

func NewPostgresBackend(log *zap.SugaredLogger, connStr, table string) *PostgresBackend {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if table == "" {
		table = "sevino_events"
	}
	return &PostgresBackend{
		log:     log,
		connStr: connStr,
		table:   table,
	}
}

func (p *PostgresBackend) Name() string {
	return "postgres"
}

func (p *PostgresBackend) ensureConnection() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.db != nil {
		return nil
	}
	db, err := sql.Open("postgres", p.connStr)
	if err != nil {
		return fmt.Errorf("postgres connect: %w", err)
	}
	p.db = db

	createSQL := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id BIGSERIAL PRIMARY KEY,
		event_time TIMESTAMPTZ DEFAULT NOW(),
		payload JSONB NOT NULL
	)`, p.table)
	if _, err := db.Exec(createSQL); err != nil {
		// the table may already exist under narrower privileges
		p.log.Warnw("postgres create table failed", "table", p.table, "error", err)
	}
	return nil
}

func (p *PostgresBackend) Publish(ctx context.Context, payload []byte) error {
	if err := p.ensureConnection(); err != nil {
		return err
	}
	p.mu.Lock()
	db := p.db
	p.mu.Unlock()

	insertSQL := fmt.Sprintf("INSERT INTO %s (payload) VALUES ($1)", p.table)
	_, err := db.ExecContext(ctx, insertSQL, string(payload))
	return err
}

func (p *PostgresBackend) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}
