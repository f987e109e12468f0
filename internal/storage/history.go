package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/akozadaev/go_quarry_depth_finder/internal/models"
)

// Поддерживаемые драйверы истории анализов.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// ErrNotFound запись не найдена.
var ErrNotFound = errors.New("analysis not found")

const historySchema = `CREATE TABLE IF NOT EXISTS analyses (
	id           TEXT PRIMARY KEY,
	session_id   TEXT NOT NULL,
	source       TEXT NOT NULL,
	outcome      TEXT NOT NULL,
	fallback     BOOLEAN NOT NULL DEFAULT FALSE,
	polygon      TEXT NOT NULL DEFAULT '[]',
	bbox         TEXT NOT NULL DEFAULT '',
	centroid_lat DOUBLE PRECISION,
	centroid_lng DOUBLE PRECISION,
	area_m2      DOUBLE PRECISION NOT NULL DEFAULT 0,
	stats        TEXT NOT NULL DEFAULT '{}',
	error        TEXT NOT NULL DEFAULT '',
	started_at   BIGINT NOT NULL,
	finished_at  BIGINT NOT NULL
)`

const historyIndex = `CREATE INDEX IF NOT EXISTS analyses_finished_at_idx ON analyses (finished_at)`

const historyColumns = `id, session_id, source, outcome, fallback, polygon, bbox, centroid_lat, centroid_lng, area_m2, stats, error, started_at, finished_at`

// HistoryStore хранит историю анализов в PostgreSQL или SQLite.
type HistoryStore struct {
	db     *sql.DB
	driver string
}

// NewHistoryStore открывает базу, проверяет подключение и создает схему.
// Для postgres DSN в формате "host=... port=... user=... password=... dbname=... sslmode=...",
// для sqlite путь к файлу или ":memory:".
func NewHistoryStore(ctx context.Context, driver, dsn string) (*HistoryStore, error) {
	switch driver {
	case DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported history driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == DriverSQLite {
		// sqlite не допускает параллельной записи, :memory: живет в одном соединении
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	hs := &HistoryStore{db: db, driver: driver}
	if err := hs.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return hs, nil
}

// Close закрывает подключение к базе данных.
func (hs *HistoryStore) Close() error {
	return hs.db.Close()
}

func (hs *HistoryStore) migrate(ctx context.Context) error {
	for _, stmt := range []string{historySchema, historyIndex} {
		if _, err := hs.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate history schema: %w", err)
		}
	}
	return nil
}

// rebind заменяет ? на $N для postgres.
func (hs *HistoryStore) rebind(query string) string {
	if hs.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Record сохраняет запись истории.
func (hs *HistoryStore) Record(ctx context.Context, rec models.AnalysisRecord) error {
	polygon, err := json.Marshal(rec.Polygon)
	if err != nil {
		return fmt.Errorf("failed to marshal polygon: %w", err)
	}
	stats, err := json.Marshal(rec.Stats)
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}
	var bbox []byte
	if rec.BBox != nil {
		if bbox, err = json.Marshal(rec.BBox); err != nil {
			return fmt.Errorf("failed to marshal bbox: %w", err)
		}
	}
	var lat, lng sql.NullFloat64
	if rec.Centroid != nil {
		lat = sql.NullFloat64{Float64: rec.Centroid.Lat, Valid: true}
		lng = sql.NullFloat64{Float64: rec.Centroid.Lng, Valid: true}
	}

	query := hs.rebind(`INSERT INTO analyses (` + historyColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err = hs.db.ExecContext(ctx, query,
		rec.ID,
		rec.SessionID,
		rec.Source,
		rec.Outcome,
		rec.Fallback,
		string(polygon),
		string(bbox),
		lat,
		lng,
		rec.AreaM2,
		string(stats),
		rec.Error,
		rec.StartedAt.UnixMilli(),
		rec.FinishedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert analysis: %w", err)
	}
	return nil
}

// Get возвращает запись по идентификатору.
func (hs *HistoryStore) Get(ctx context.Context, id string) (*models.AnalysisRecord, error) {
	query := hs.rebind(`SELECT ` + historyColumns + ` FROM analyses WHERE id = ?`)
	rec, err := scanRecord(hs.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Recent возвращает последние limit записей, новые первыми.
func (hs *HistoryStore) Recent(ctx context.Context, limit int) ([]*models.AnalysisRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	query := hs.rebind(`SELECT ` + historyColumns + ` FROM analyses ORDER BY finished_at DESC, id LIMIT ?`)
	return hs.query(ctx, query, limit)
}

// All возвращает всю историю в порядке завершения.
func (hs *HistoryStore) All(ctx context.Context) ([]*models.AnalysisRecord, error) {
	return hs.query(ctx, `SELECT `+historyColumns+` FROM analyses ORDER BY finished_at, id`)
}

func (hs *HistoryStore) query(ctx context.Context, query string, args ...any) ([]*models.AnalysisRecord, error) {
	rows, err := hs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query analyses: %w", err)
	}
	defer rows.Close()

	var records []*models.AnalysisRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return records, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.AnalysisRecord, error) {
	var (
		rec               models.AnalysisRecord
		polygon, bbox     string
		stats             string
		lat, lng          sql.NullFloat64
		started, finished int64
	)
	if err := row.Scan(
		&rec.ID,
		&rec.SessionID,
		&rec.Source,
		&rec.Outcome,
		&rec.Fallback,
		&polygon,
		&bbox,
		&lat,
		&lng,
		&rec.AreaM2,
		&stats,
		&rec.Error,
		&started,
		&finished,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan analysis: %w", err)
	}

	if err := json.Unmarshal([]byte(polygon), &rec.Polygon); err != nil {
		return nil, fmt.Errorf("failed to decode polygon: %w", err)
	}
	if err := json.Unmarshal([]byte(stats), &rec.Stats); err != nil {
		return nil, fmt.Errorf("failed to decode stats: %w", err)
	}
	if bbox != "" {
		var b models.BoundingBox
		if err := json.Unmarshal([]byte(bbox), &b); err != nil {
			return nil, fmt.Errorf("failed to decode bbox: %w", err)
		}
		rec.BBox = &b
	}
	if lat.Valid && lng.Valid {
		rec.Centroid = &models.Vertex{Lat: lat.Float64, Lng: lng.Float64}
	}
	rec.StartedAt = time.UnixMilli(started).UTC()
	rec.FinishedAt = time.UnixMilli(finished).UTC()
	return &rec, nil
}
