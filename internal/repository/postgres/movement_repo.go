package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Драйвер Postgres

	"github.com/xela07ax/demonlist-history/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS demon_movement_snapshots (
	demon_id   INTEGER PRIMARY KEY,
	payload    JSONB NOT NULL,
	fetched_at TIMESTAMPTZ NOT NULL
)`

// Количество колонок в таблице demon_movement_snapshots
const numFields = 3

type MovementRepo struct {
	db *sql.DB
}

// NewMovementRepo открывает пул соединений. Доступность базы проверяется через Ping.
func NewMovementRepo(connString string, maxConns, minConns int) (*MovementRepo, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(minConns)
	db.SetConnMaxLifetime(5 * time.Minute)
	return &MovementRepo{db: db}, nil
}

// EnsureSchema создает таблицу снапшотов, если ее нет.
func (r *MovementRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("postgres: ensure schema: %w", err)
	}
	return nil
}

// WriteBatch сохраняет пачку снапшотов одним запросом.
// Более старый снапшот не перетирает более свежий.
func (r *MovementRepo) WriteBatch(ctx context.Context, snapshots []domain.MovementSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	query, vals, err := buildUpsert(snapshots)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, query, vals...); err != nil {
		return fmt.Errorf("postgres: write snapshots: %w", err)
	}
	return nil
}

// Latest возвращает последний сохраненный журнал демона.
func (r *MovementRepo) Latest(ctx context.Context, demonID int) (domain.MovementSnapshot, error) {
	var (
		payload   []byte
		fetchedAt time.Time
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT payload, fetched_at FROM demon_movement_snapshots WHERE demon_id = $1`, demonID,
	).Scan(&payload, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.MovementSnapshot{}, fmt.Errorf("postgres: demon %d: %w", demonID, domain.ErrSnapshotNotFound)
	}
	if err != nil {
		return domain.MovementSnapshot{}, fmt.Errorf("postgres: read snapshot: %w", err)
	}

	var events []domain.AuditEvent
	if err := json.Unmarshal(payload, &events); err != nil {
		return domain.MovementSnapshot{}, fmt.Errorf("postgres: decode snapshot of demon %d: %w", demonID, err)
	}
	return domain.MovementSnapshot{DemonID: demonID, Events: events, FetchedAt: fetchedAt}, nil
}

// Ping проверяет доступность базы при старте
func (r *MovementRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *MovementRepo) Close() error {
	return r.db.Close()
}

func buildUpsert(snapshots []domain.MovementSnapshot) (string, []interface{}, error) {
	var placeholders strings.Builder
	vals := make([]interface{}, 0, len(snapshots)*numFields)

	// Динамически строим запрос для пакетной вставки
	for i, s := range snapshots {
		payload, err := json.Marshal(s.Events)
		if err != nil {
			return "", nil, fmt.Errorf("postgres: encode snapshot of demon %d: %w", s.DemonID, err)
		}
		if s.Events == nil {
			payload = []byte("[]")
		}

		if i > 0 {
			placeholders.WriteString(", ")
		}
		p := i * numFields
		fmt.Fprintf(&placeholders, "($%d, $%d, $%d)", p+1, p+2, p+3)

		vals = append(vals, s.DemonID, string(payload), s.FetchedAt)
	}

	query := "INSERT INTO demon_movement_snapshots (demon_id, payload, fetched_at) VALUES " +
		placeholders.String() +
		" ON CONFLICT (demon_id) DO UPDATE SET payload = EXCLUDED.payload, fetched_at = EXCLUDED.fetched_at" +
		" WHERE demon_movement_snapshots.fetched_at <= EXCLUDED.fetched_at"

	return query, vals, nil
}
