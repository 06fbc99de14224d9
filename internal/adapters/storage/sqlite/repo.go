package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hylla/lcarev/internal/app"
	"github.com/hylla/lcarev/internal/domain"
	"github.com/hylla/lcarev/internal/revision"
	_ "modernc.org/sqlite"
)

// driverName defines a package constant value.
const driverName = "sqlite"

// Repository represents repository data used by this package.
type Repository struct {
	db *sql.DB
}

// Open opens the requested operation.
func Open(path string) (*Repository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return newRepository(db)
}

// OpenInMemory opens a private in-memory database.
func OpenInMemory() (*Repository, error) {
	db, err := sql.Open(driverName, ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	// Every pooled connection would otherwise see its own empty database.
	db.SetMaxOpenConns(1)
	return newRepository(db)
}

// newRepository migrates db and wraps it.
func newRepository(db *sql.DB) (*Repository, error) {
	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// Close closes the requested operation.
func (r *Repository) Close() error {
	return r.db.Close()
}

// migrate handles migrate.
func (r *Repository) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA foreign_keys = ON;`,
		`PRAGMA busy_timeout = 5000;`,
		`CREATE TABLE IF NOT EXISTS revisions (
			id INTEGER PRIMARY KEY,
			parent_id INTEGER,
			authors TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT NOT NULL,
			payload_json TEXT NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS revision_heads (
			name TEXT PRIMARY KEY,
			revision_id INTEGER NOT NULL,
			updated_at TEXT NOT NULL,
			FOREIGN KEY(revision_id) REFERENCES revisions(id)
		);`,
		`CREATE TABLE IF NOT EXISTS activities (
			id INTEGER PRIMARY KEY,
			database_name TEXT NOT NULL,
			code TEXT NOT NULL,
			name TEXT NOT NULL,
			location TEXT NOT NULL DEFAULT '',
			unit TEXT NOT NULL DEFAULT '',
			node_type TEXT NOT NULL DEFAULT 'process',
			data_json TEXT NOT NULL DEFAULT '{}',
			revision_id INTEGER NOT NULL,
			updated_at TEXT NOT NULL,
			FOREIGN KEY(revision_id) REFERENCES revisions(id)
		);`,
		`CREATE TABLE IF NOT EXISTS exchanges (
			id INTEGER PRIMARY KEY,
			input_database TEXT NOT NULL,
			input_code TEXT NOT NULL,
			output_database TEXT NOT NULL,
			output_code TEXT NOT NULL,
			exchange_type TEXT NOT NULL,
			amount REAL NOT NULL DEFAULT 0,
			data_json TEXT NOT NULL DEFAULT '{}',
			revision_id INTEGER NOT NULL,
			updated_at TEXT NOT NULL,
			FOREIGN KEY(revision_id) REFERENCES revisions(id)
		);`,
		`CREATE TABLE IF NOT EXISTS methods (
			id INTEGER PRIMARY KEY,
			name_json TEXT NOT NULL,
			unit TEXT NOT NULL DEFAULT '',
			abbreviation TEXT NOT NULL DEFAULT '',
			data_json TEXT NOT NULL DEFAULT '{}',
			revision_id INTEGER NOT NULL,
			updated_at TEXT NOT NULL,
			FOREIGN KEY(revision_id) REFERENCES revisions(id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_revisions_parent ON revisions(parent_id);`,
		`CREATE INDEX IF NOT EXISTS idx_activities_key ON activities(database_name, code);`,
		`CREATE INDEX IF NOT EXISTS idx_exchanges_output ON exchanges(output_database, output_code);`,
		`CREATE INDEX IF NOT EXISTS idx_exchanges_input ON exchanges(input_database, input_code);`,
	}

	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

// GetActivity returns one activity.
func (r *Repository) GetActivity(ctx context.Context, id int64) (domain.Activity, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, data_json FROM activities WHERE id = ?`, id)
	return scanActivity(row)
}

// ListActivities lists activities ordered by key.
func (r *Repository) ListActivities(ctx context.Context) ([]domain.Activity, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, data_json FROM activities ORDER BY database_name ASC, code ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]domain.Activity, 0)
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetExchange returns one exchange.
func (r *Repository) GetExchange(ctx context.Context, id int64) (domain.Exchange, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, data_json FROM exchanges WHERE id = ?`, id)
	return scanExchange(row)
}

// ListExchanges lists exchanges ordered by id.
func (r *Repository) ListExchanges(ctx context.Context) ([]domain.Exchange, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, data_json FROM exchanges ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]domain.Exchange, 0)
	for rows.Next() {
		e, err := scanExchange(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetMethod returns one method.
func (r *Repository) GetMethod(ctx context.Context, id int64) (domain.Method, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, data_json FROM methods WHERE id = ?`, id)
	return scanMethod(row)
}

// ListMethods lists methods ordered by id.
func (r *Repository) ListMethods(ctx context.Context) ([]domain.Method, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, data_json FROM methods ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]domain.Method, 0)
	for rows.Next() {
		m, err := scanMethod(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Head returns the revision a named head points at, or zero when unset.
func (r *Repository) Head(ctx context.Context, name string) (revision.ID, error) {
	return headOf(ctx, r.db, name)
}

// GetRevision returns one stored revision.
func (r *Repository) GetRevision(ctx context.Context, id revision.ID) (revision.Revision, error) {
	row := r.db.QueryRowContext(ctx, `SELECT payload_json FROM revisions WHERE id = ?`, int64(id))
	return scanRevision(row)
}

// ListRevisions lists every stored revision ordered by id.
func (r *Repository) ListRevisions(ctx context.Context) ([]revision.Revision, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT payload_json FROM revisions ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]revision.Revision, 0)
	for rows.Next() {
		rev, err := scanRevision(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rev)
	}
	return out, rows.Err()
}

// CommitChangeSet writes every record, the revision and the moved head in one transaction.
func (r *Repository) CommitChangeSet(ctx context.Context, cs app.ChangeSet) (err error) {
	headName := strings.TrimSpace(cs.Head)
	if headName == "" {
		return errors.New("revision head name is required")
	}
	rev := cs.Revision
	payload, err := revision.Encode(rev)
	if err != nil {
		return fmt.Errorf("encode revision %s: %w", rev.ID(), err)
	}
	committedAt := cs.CommittedAt
	if committedAt.IsZero() {
		committedAt = time.Now()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	current, err := headOf(ctx, tx, headName)
	if err != nil {
		return err
	}
	if rev.Metadata.ParentID() != current {
		err = fmt.Errorf("%w: revision %s parent %s, head %q is %s", app.ErrStaleHead, rev.ID(), rev.Metadata.ParentID(), headName, current)
		return err
	}
	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM revisions WHERE id = ?`, int64(rev.ID())).Scan(&exists)
	if err != nil {
		return err
	}
	if exists > 0 {
		err = fmt.Errorf("%w: %s", app.ErrRevisionExists, rev.ID())
		return err
	}

	var parent any
	if rev.Metadata.HasParent() {
		parent = int64(rev.Metadata.ParentID())
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO revisions(id, parent_id, authors, title, description, payload_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, int64(rev.ID()), parent, rev.Metadata.Authors, rev.Metadata.Title, rev.Metadata.Description, string(payload), ts(committedAt))
	if err != nil {
		return err
	}

	for _, rec := range cs.Records {
		err = upsertRecord(ctx, tx, rec, rev.ID(), committedAt)
		if err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO revision_heads(name, revision_id, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET revision_id = excluded.revision_id, updated_at = excluded.updated_at
	`, headName, int64(rev.ID()), ts(committedAt))
	if err != nil {
		return err
	}

	err = tx.Commit()
	return err
}

// queryRower represents a read-only DB contract used by DB and Tx implementations.
type queryRower interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// execerContext represents a write-only DB contract used by DB and Tx implementations.
type execerContext interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}

// headOf reads a named head, returning zero when unset.
func headOf(ctx context.Context, q queryRower, name string) (revision.ID, error) {
	var id int64
	err := q.QueryRowContext(ctx, `SELECT revision_id FROM revision_heads WHERE name = ?`, strings.TrimSpace(name)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return revision.ID(id), nil
}

// upsertRecord writes one tracked record stamped with the revision that last touched it.
func upsertRecord(ctx context.Context, execer execerContext, rec revision.Record, revID revision.ID, at time.Time) error {
	switch v := rec.(type) {
	case domain.Activity:
		data, err := encodePlain(domain.ActivityPlain(v))
		if err != nil {
			return fmt.Errorf("encode activity %d: %w", v.ID, err)
		}
		_, err = execer.ExecContext(ctx, `
			INSERT INTO activities(id, database_name, code, name, location, unit, node_type, data_json, revision_id, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				database_name = excluded.database_name,
				code = excluded.code,
				name = excluded.name,
				location = excluded.location,
				unit = excluded.unit,
				node_type = excluded.node_type,
				data_json = excluded.data_json,
				revision_id = excluded.revision_id,
				updated_at = excluded.updated_at
		`, v.ID, v.Database, v.Code, v.Name, v.Location, v.Unit, string(v.Type), data, int64(revID), ts(at))
		return err
	case domain.Exchange:
		data, err := encodePlain(domain.ExchangePlain(v))
		if err != nil {
			return fmt.Errorf("encode exchange %d: %w", v.ID, err)
		}
		_, err = execer.ExecContext(ctx, `
			INSERT INTO exchanges(id, input_database, input_code, output_database, output_code, exchange_type, amount, data_json, revision_id, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				input_database = excluded.input_database,
				input_code = excluded.input_code,
				output_database = excluded.output_database,
				output_code = excluded.output_code,
				exchange_type = excluded.exchange_type,
				amount = excluded.amount,
				data_json = excluded.data_json,
				revision_id = excluded.revision_id,
				updated_at = excluded.updated_at
		`, v.ID, v.Input.Database, v.Input.Code, v.Output.Database, v.Output.Code, string(v.Type), v.Amount, data, int64(revID), ts(at))
		return err
	case domain.Method:
		data, err := encodePlain(domain.MethodPlain(v))
		if err != nil {
			return fmt.Errorf("encode method %d: %w", v.ID, err)
		}
		nameJSON, err := json.Marshal(v.Name)
		if err != nil {
			return fmt.Errorf("encode method %d name: %w", v.ID, err)
		}
		_, err = execer.ExecContext(ctx, `
			INSERT INTO methods(id, name_json, unit, abbreviation, data_json, revision_id, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name_json = excluded.name_json,
				unit = excluded.unit,
				abbreviation = excluded.abbreviation,
				data_json = excluded.data_json,
				revision_id = excluded.revision_id,
				updated_at = excluded.updated_at
		`, v.ID, string(nameJSON), v.Unit, v.Abbreviation, data, int64(revID), ts(at))
		return err
	default:
		return fmt.Errorf("%w: %T", revision.ErrUnknownRecordKind, rec)
	}
}

// scanner represents scanner data used by this package.
type scanner interface {
	Scan(dest ...any) error
}

// scanActivity handles scan activity.
func scanActivity(s scanner) (domain.Activity, error) {
	id, plain, err := scanPlainRow(s)
	if err != nil {
		return domain.Activity{}, err
	}
	a, err := domain.ActivityFromPlain(id, plain)
	if err != nil {
		return domain.Activity{}, fmt.Errorf("decode activity %d: %w", id, err)
	}
	return a, nil
}

// scanExchange handles scan exchange.
func scanExchange(s scanner) (domain.Exchange, error) {
	id, plain, err := scanPlainRow(s)
	if err != nil {
		return domain.Exchange{}, err
	}
	e, err := domain.ExchangeFromPlain(id, plain)
	if err != nil {
		return domain.Exchange{}, fmt.Errorf("decode exchange %d: %w", id, err)
	}
	return e, nil
}

// scanMethod handles scan method.
func scanMethod(s scanner) (domain.Method, error) {
	id, plain, err := scanPlainRow(s)
	if err != nil {
		return domain.Method{}, err
	}
	m, err := domain.MethodFromPlain(id, plain)
	if err != nil {
		return domain.Method{}, fmt.Errorf("decode method %d: %w", id, err)
	}
	return m, nil
}

// scanPlainRow reads an (id, data_json) row.
func scanPlainRow(s scanner) (int64, revision.Plain, error) {
	var (
		id      int64
		dataRaw string
	)
	if err := s.Scan(&id, &dataRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil, app.ErrNotFound
		}
		return 0, nil, err
	}
	plain, err := decodePlain(dataRaw)
	if err != nil {
		return 0, nil, fmt.Errorf("decode data_json for %d: %w", id, err)
	}
	return id, plain, nil
}

// scanRevision decodes one stored revision payload.
func scanRevision(s scanner) (revision.Revision, error) {
	var payload string
	if err := s.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return revision.Revision{}, app.ErrNotFound
		}
		return revision.Revision{}, err
	}
	rev, err := revision.Decode([]byte(payload))
	if err != nil {
		return revision.Revision{}, fmt.Errorf("decode revision payload_json: %w", err)
	}
	return rev, nil
}

// encodePlain serializes a record's plain form for the data_json column.
func encodePlain(p revision.Plain) (string, error) {
	norm, err := revision.Normalize(p)
	if err != nil {
		return "", err
	}
	encoded, err := json.Marshal(norm)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

// decodePlain parses a data_json column, keeping integers exact.
func decodePlain(raw string) (revision.Plain, error) {
	if strings.TrimSpace(raw) == "" {
		raw = "{}"
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return revision.Normalize(out)
}

// ts handles ts.
func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
