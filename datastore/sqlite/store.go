// Package sqlite implements the scan result cache on an embedded SQLite
// database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/doug-martin/goqu/v8"
	_ "github.com/doug-martin/goqu/v8/dialect/sqlite3" // register the sqlite3 dialect
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/remind101/migrate"
	_ "modernc.org/sqlite" // register the sqlite driver

	"github.com/repscan/repscan"
	"github.com/repscan/repscan/datastore"
	"github.com/repscan/repscan/datastore/sqlite/migrations"
)

var (
	queryCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "repscan",
			Subsystem: "datastore",
			Name:      "query_total",
			Help:      "Total number of cache store queries issued.",
		},
		[]string{"query", "service"},
	)
	queryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "repscan",
			Subsystem: "datastore",
			Name:      "query_duration_seconds",
			Help:      "The duration of cache store queries.",
		},
		[]string{"query", "service"},
	)
)

var dialect = goqu.Dialect("sqlite3")

// fixedColumns lead every service table, in this order, ahead of the
// service-specific payload columns.
var fixedColumns = []string{"sha256", "http_status", "expiry", "expiry_iso"}

type stmts struct {
	get  *sql.Stmt
	put  *sql.Stmt
	cols []string
}

// Store is a [datastore.Store] backed by a single SQLite file, one table
// per service.
//
// All access is serialized through one process-wide lock; SQLite is not
// assumed to tolerate concurrent writers.
type Store struct {
	mu  sync.Mutex
	db  *sql.DB
	svc map[string]*stmts
}

var _ datastore.Store = (*Store)(nil)

// Open opens (creating if needed) the store file, applies any pending
// migrations inside a single transaction, and prepares statements for the
// given services.
//
// The tables argument maps service name to its payload column names, which
// must already exist in the schema; see the migrations package.
//
// The returned Store must have its Close method called, or the process may
// panic.
func Open(ctx context.Context, file string, tables map[string][]string) (*Store, error) {
	u := url.URL{
		Scheme: `file`,
		Opaque: file,
		RawQuery: url.Values{
			"_pragma": {
				"busy_timeout(5000)",
				"journal_mode(WAL)",
			},
		}.Encode(),
	}
	db, err := sql.Open(`sqlite`, u.String())
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	migrator := migrate.NewMigrator(db)
	migrator.Table = migrations.MigrationTable
	if err := migrator.Exec(migrate.Up, migrations.Migrations...); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: migration failed: %w", err)
	}

	s := Store{
		db:  db,
		svc: make(map[string]*stmts, len(tables)),
	}
	for name, cols := range tables {
		sel, err := selectSQL(name, cols)
		if err != nil {
			db.Close()
			return nil, err
		}
		get, err := db.PrepareContext(ctx, sel)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: preparing query for %q: %w", name, err)
		}
		put, err := db.PrepareContext(ctx, insertSQL(name, cols))
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: preparing upsert for %q: %w", name, err)
		}
		s.svc[name] = &stmts{get: get, put: put, cols: cols}
	}

	_, caller, line, _ := runtime.Caller(1)
	runtime.SetFinalizer(&s, func(s *Store) {
		panic(fmt.Sprintf("%s:%d: store not closed", caller, line))
	})
	return &s, nil
}

// SelectSQL builds the per-service read statement.
func selectSQL(table string, cols []string) (string, error) {
	sel := []any{"http_status", "expiry"}
	for _, c := range cols {
		sel = append(sel, c)
	}
	q, _, err := dialect.From(table).
		Select(sel...).
		Where(goqu.C("sha256").Eq(goqu.L("?"))).
		ToSQL()
	if err != nil {
		return "", fmt.Errorf("sqlite: building query for %q: %w", table, err)
	}
	return q, nil
}

// InsertSQL builds the per-service upsert. SQLite's INSERT OR REPLACE has
// no goqu spelling, so the statement text is assembled directly.
func insertSQL(table string, cols []string) string {
	all := append(append([]string{}, fixedColumns...), cols...)
	var b strings.Builder
	b.WriteString("INSERT OR REPLACE INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	b.WriteString(strings.Join(all, ", "))
	b.WriteString(") VALUES (?")
	b.WriteString(strings.Repeat(", ?", len(all)-1))
	b.WriteString(")")
	return b.String()
}

// Get implements [datastore.Store].
func (s *Store) Get(ctx context.Context, service string, d repscan.Digest) (*datastore.Entry, error) {
	t, ok := s.svc[service]
	if !ok {
		return nil, fmt.Errorf("sqlite: no table for service %q", service)
	}
	queryCounter.WithLabelValues("get", service).Inc()
	timer := prometheus.NewTimer(queryDuration.WithLabelValues("get", service))
	defer timer.ObserveDuration()

	s.mu.Lock()
	defer s.mu.Unlock()
	var status, expiry int64
	vals := make([]any, len(t.cols))
	dest := make([]any, 0, len(t.cols)+2)
	dest = append(dest, &status, &expiry)
	for i := range vals {
		dest = append(dest, &vals[i])
	}
	err := t.get.QueryRowContext(ctx, d.String()).Scan(dest...)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("sqlite: scan error: %w", err)
	}
	// Expiry is compared against the clock at read time. Stale rows stay
	// on disk but read as a miss.
	if expiry <= time.Now().UnixNano() {
		return nil, nil
	}
	payload := make(map[string]any, len(t.cols))
	for i, c := range t.cols {
		switch v := vals[i].(type) {
		case nil:
		case []byte:
			payload[c] = string(v)
		default:
			payload[c] = v
		}
	}
	return &datastore.Entry{
		Digest:     d,
		HTTPStatus: int(status),
		Expiry:     time.Unix(0, expiry),
		Payload:    payload,
	}, nil
}

// Put implements [datastore.Store].
func (s *Store) Put(ctx context.Context, service string, e *datastore.Entry) error {
	t, ok := s.svc[service]
	if !ok {
		return fmt.Errorf("sqlite: no table for service %q", service)
	}
	queryCounter.WithLabelValues("put", service).Inc()
	timer := prometheus.NewTimer(queryDuration.WithLabelValues("put", service))
	defer timer.ObserveDuration()

	args := make([]any, 0, len(t.cols)+len(fixedColumns))
	args = append(args,
		e.Digest.String(),
		int64(e.HTTPStatus),
		e.Expiry.UnixNano(),
		e.Expiry.Format(time.RFC3339),
	)
	for _, c := range t.cols {
		v, ok := e.Payload[c]
		if !ok {
			args = append(args, nil)
			continue
		}
		args = append(args, v)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := t.put.ExecContext(ctx, args...); err != nil {
		return fmt.Errorf("sqlite: upsert error: %w", err)
	}
	return nil
}

// Close releases held resources.
//
// This must be called when the Store is no longer needed, or the process
// may panic.
func (s *Store) Close() error {
	runtime.SetFinalizer(s, nil)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.svc {
		t.get.Close()
		t.put.Close()
	}
	return s.db.Close()
}
