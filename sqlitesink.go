package tunbench

//
// SQLite result sink
//

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/bassosimone/tunbench/optional"
	_ "modernc.org/sqlite"
)

// sqliteSchema creates the results table. Columns after session_id
// follow [ResultHeader] order.
const sqliteSchema = `CREATE TABLE IF NOT EXISTS results(
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ts INTEGER,
	run INTEGER,
	session_id TEXT,
	protocol TEXT,
	connection_time REAL,
	latency_avg REAL,
	latency_min REAL,
	latency_max REAL,
	latency_mdev REAL,
	packet_loss REAL,
	jitter REAL,
	throughput REAL,
	file_transfer_time REAL,
	cpu_usage_h1 REAL,
	mem_usage_h1 REAL,
	cpu_usage_h2 REAL,
	mem_usage_h2 REAL
); CREATE INDEX IF NOT EXISTS idx_results_protocol ON results(protocol);`

// SQLiteSink is a [ResultSink] storing rows into a SQLite database.
// The zero value is invalid; use [NewSQLiteSink].
type SQLiteSink struct {
	db *sql.DB
}

var _ ResultSink = &SQLiteSink{}

// NewSQLiteSink opens (or creates) the database at path.
func NewSQLiteSink(ctx context.Context, path string) (*SQLiteSink, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteSink{db: db}, nil
}

// Append implements ResultSink. Errors wrap [ErrSink].
func (s *SQLiteSink) Append(ctx context.Context, m *Measurement) error {
	columns := append([]string{"ts", "run", "session_id"}, ResultHeader...)
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(columns)), ",")
	query := fmt.Sprintf("INSERT INTO results(%s) VALUES(%s)", strings.Join(columns, ", "), placeholders)
	args := []any{time.Now().Unix(), m.Run, m.SessionID, string(m.Protocol)}
	for _, v := range m.values() {
		args = append(args, nullFloat(v))
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%w: %w", ErrSink, err)
	}
	return nil
}

// Measurements returns all the stored measurements in insertion order.
func (s *SQLiteSink) Measurements(ctx context.Context) ([]*Measurement, error) {
	query := fmt.Sprintf("SELECT run, session_id, %s FROM results ORDER BY id", strings.Join(ResultHeader, ", "))
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Measurement
	for rows.Next() {
		var (
			run       int
			sessionID string
			protocol  string
		)
		nulls := make([]sql.NullFloat64, len(ResultHeader)-1)
		dest := []any{&run, &sessionID, &protocol}
		for idx := range nulls {
			dest = append(dest, &nulls[idx])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		m := NewMeasurement(ProtocolName(protocol), run, sessionID)
		for idx, field := range m.fields() {
			if nulls[idx].Valid {
				*field = optional.Some(nulls[idx].Float64)
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

// nullFloat converts an optional value to a nullable SQL value.
func nullFloat(v optional.Value[float64]) sql.NullFloat64 {
	value, ok := v.Get()
	return sql.NullFloat64{Float64: value, Valid: ok}
}
