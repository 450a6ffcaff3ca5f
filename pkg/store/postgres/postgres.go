// Package postgres is the PostgreSQL implementation of store.Store. Bodies,
// variable descriptors, reports and flow configs are stored as JSONB.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/goliatone/go-docforge/internal/dbx"
	"github.com/goliatone/go-docforge/pkg/catalog"
	"github.com/goliatone/go-docforge/pkg/content"
	"github.com/goliatone/go-docforge/pkg/flow"
	"github.com/goliatone/go-docforge/pkg/store"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store persists templates in PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// New wraps an open database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects with the pgx driver and checks the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return New(db), nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// gooseUp is a seam for tests.
var gooseUp = func(ctx context.Context, db *sql.DB, dir string) error {
	return goose.UpContext(ctx, db, dir)
}

// Migrate applies the embedded schema migrations.
func (s *Store) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("postgres: dialect: %w", err)
	}
	if err := gooseUp(ctx, s.db, "migrations"); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

const templateColumns = `id, title, category, content, required_variables, optional_variables, published,
	status, last_verified_at, version_hash, verification_required, variables_cache, variables_cached_at,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTemplate(row rowScanner) (catalog.Template, error) {
	var (
		tpl                             catalog.Template
		body, required, optional, cache []byte
		status                          string
		lastVerified, cachedAt          sql.NullTime
		hash                            sql.NullString
	)
	if err := row.Scan(
		&tpl.ID, &tpl.Title, &tpl.Category, &body, &required, &optional, &tpl.Published,
		&status, &lastVerified, &hash, &tpl.VerificationRequired, &cache, &cachedAt,
		&tpl.CreatedAt, &tpl.UpdatedAt,
	); err != nil {
		return catalog.Template{}, err
	}

	tpl.Status = catalog.Status(status)
	tpl.VersionHash = hash.String
	if lastVerified.Valid {
		t := lastVerified.Time.UTC()
		tpl.LastVerifiedAt = &t
	}
	if cachedAt.Valid {
		t := cachedAt.Time.UTC()
		tpl.VariablesCachedAt = &t
	}
	tpl.CreatedAt = tpl.CreatedAt.UTC()
	tpl.UpdatedAt = tpl.UpdatedAt.UTC()

	if err := json.Unmarshal(body, &tpl.Content); err != nil {
		return catalog.Template{}, fmt.Errorf("decode content: %w", err)
	}
	if err := unmarshalOptional(required, &tpl.RequiredVariables); err != nil {
		return catalog.Template{}, fmt.Errorf("decode required variables: %w", err)
	}
	if err := unmarshalOptional(optional, &tpl.OptionalVariables); err != nil {
		return catalog.Template{}, fmt.Errorf("decode optional variables: %w", err)
	}
	if err := unmarshalOptional(cache, &tpl.VariablesCache); err != nil {
		return catalog.Template{}, fmt.Errorf("decode variables cache: %w", err)
	}
	return tpl, nil
}

func unmarshalOptional(data []byte, dst any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dst)
}

func marshalString(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (s *Store) GetTemplate(ctx context.Context, id string) (catalog.Template, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM templates WHERE id = $1`, id)
	tpl, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.Template{}, fmt.Errorf("template %q: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return catalog.Template{}, fmt.Errorf("postgres: get template %q: %w", id, err)
	}
	return tpl, nil
}

func (s *Store) ListTemplates(ctx context.Context, filter store.ListFilter) ([]catalog.Template, error) {
	var (
		where []string
		args  []any
	)
	if filter.PublishedOnly {
		where = append(where, "published = TRUE")
	}
	if len(filter.IDs) > 0 {
		placeholders := make([]string, len(filter.IDs))
		for i, id := range filter.IDs {
			args = append(args, id)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		where = append(where, "id IN ("+strings.Join(placeholders, ", ")+")")
	}

	query := `SELECT ` + templateColumns + ` FROM templates`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list templates: %w", err)
	}
	defer rows.Close()

	var out []catalog.Template
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: list templates: %w", err)
		}
		out = append(out, tpl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list templates: %w", err)
	}
	return out, nil
}

func (s *Store) SaveTemplate(ctx context.Context, tpl catalog.Template) error {
	if tpl.ID == "" {
		return fmt.Errorf("postgres: template id is required")
	}
	body, err := marshalString(tpl.Content)
	if err != nil {
		return fmt.Errorf("postgres: encode content: %w", err)
	}
	required, err := marshalString(nonNilVars(tpl.RequiredVariables))
	if err != nil {
		return fmt.Errorf("postgres: encode required variables: %w", err)
	}
	optional, err := marshalString(nonNilVars(tpl.OptionalVariables))
	if err != nil {
		return fmt.Errorf("postgres: encode optional variables: %w", err)
	}
	var cache any
	if tpl.VariablesCache != nil {
		if cache, err = marshalString(tpl.VariablesCache); err != nil {
			return fmt.Errorf("postgres: encode variables cache: %w", err)
		}
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO templates (`+templateColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
ON CONFLICT (id) DO UPDATE SET
	title = EXCLUDED.title,
	category = EXCLUDED.category,
	content = EXCLUDED.content,
	required_variables = EXCLUDED.required_variables,
	optional_variables = EXCLUDED.optional_variables,
	published = EXCLUDED.published,
	status = EXCLUDED.status,
	last_verified_at = EXCLUDED.last_verified_at,
	version_hash = EXCLUDED.version_hash,
	verification_required = EXCLUDED.verification_required,
	variables_cache = EXCLUDED.variables_cache,
	variables_cached_at = EXCLUDED.variables_cached_at,
	updated_at = EXCLUDED.updated_at`,
		tpl.ID, tpl.Title, tpl.Category, body, required, optional, tpl.Published,
		string(tpl.Status), nullTime(tpl.LastVerifiedAt), nullString(tpl.VersionHash), tpl.VerificationRequired,
		cache, nullTime(tpl.VariablesCachedAt), tpl.CreatedAt, tpl.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: save template %q: %w", tpl.ID, err)
	}
	return nil
}

func (s *Store) UpdateContent(ctx context.Context, id string, body content.Content, now time.Time) (catalog.Template, error) {
	encoded, err := marshalString(body)
	if err != nil {
		return catalog.Template{}, fmt.Errorf("postgres: encode content: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `
UPDATE templates
SET content = $2, updated_at = $3, verification_required = TRUE
WHERE id = $1
RETURNING `+templateColumns,
		id, encoded, catalog.Truncate(now),
	)
	tpl, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.Template{}, fmt.Errorf("template %q: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return catalog.Template{}, fmt.Errorf("postgres: update content %q: %w", id, err)
	}
	return tpl, nil
}

func (s *Store) CommitVerification(ctx context.Context, report catalog.VerificationReport, state store.VerificationState) error {
	payload, err := marshalString(report)
	if err != nil {
		return fmt.Errorf("postgres: encode report: %w", err)
	}

	var expected sql.NullTime
	if !state.ExpectedUpdatedAt.IsZero() {
		expected = sql.NullTime{Time: state.ExpectedUpdatedAt.UTC(), Valid: true}
	}

	return dbx.WithSerializableTx(ctx, s.db, func(ctx context.Context, tx dbx.DBTX) error {
		var (
			res sql.Result
			err error
		)
		if state.Status == catalog.StatusVerified {
			var cache any
			if state.VariablesCachedAt != nil {
				if cache, err = marshalString(state.VariablesCache); err != nil {
					return fmt.Errorf("postgres: encode variables cache: %w", err)
				}
			}
			res, err = tx.ExecContext(ctx, `
UPDATE templates
SET status = $2,
	version_hash = $3,
	last_verified_at = $4,
	verification_required = CASE WHEN $5 THEN FALSE ELSE verification_required END,
	variables_cache = COALESCE($6, variables_cache),
	variables_cached_at = COALESCE($7, variables_cached_at)
WHERE id = $1 AND ($8::timestamptz IS NULL OR updated_at = $8)`,
				report.TemplateID, string(state.Status), state.VersionHash, nullTime(state.LastVerifiedAt),
				state.ClearRequired, cache, nullTime(state.VariablesCachedAt), expected,
			)
		} else {
			res, err = tx.ExecContext(ctx,
				`UPDATE templates SET status = $2 WHERE id = $1 AND ($3::timestamptz IS NULL OR updated_at = $3)`,
				report.TemplateID, string(state.Status), expected,
			)
		}
		if err != nil {
			return fmt.Errorf("postgres: update state %q: %w", report.TemplateID, err)
		}
		if err := requireCurrent(ctx, tx, res, report.TemplateID); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
INSERT INTO verification_reports (id, template_id, success, status, payload, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`,
			report.ID.String(), report.TemplateID, report.Success, string(report.Status), payload, report.CreatedAt,
		); err != nil {
			return fmt.Errorf("postgres: insert report %q: %w", report.TemplateID, err)
		}
		return nil
	})
}

func (s *Store) UpdateVariableCache(ctx context.Context, id string, vars []string, at time.Time) error {
	encoded, err := marshalString(nonNilStrings(vars))
	if err != nil {
		return fmt.Errorf("postgres: encode variables cache: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE templates SET variables_cache = $2, variables_cached_at = $3 WHERE id = $1`,
		id, encoded, catalog.Truncate(at),
	)
	if err != nil {
		return fmt.Errorf("postgres: update variables cache %q: %w", id, err)
	}
	return requireRow(res, id)
}

func (s *Store) FlagForReverification(ctx context.Context, id, reason string) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		res, err := tx.ExecContext(ctx, `UPDATE templates SET verification_required = TRUE WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("postgres: flag %q: %w", id, err)
		}
		if err := requireRow(res, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO template_flags (template_id, reason) VALUES ($1, $2)`, id, reason); err != nil {
			return fmt.Errorf("postgres: record flag %q: %w", id, err)
		}
		return nil
	})
}

func (s *Store) ListReports(ctx context.Context, templateID string) ([]catalog.VerificationReport, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM verification_reports WHERE template_id = $1 ORDER BY created_at DESC`,
		templateID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list reports %q: %w", templateID, err)
	}
	defer rows.Close()

	out := []catalog.VerificationReport{}
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("postgres: list reports %q: %w", templateID, err)
		}
		var report catalog.VerificationReport
		if err := json.Unmarshal(payload, &report); err != nil {
			return nil, fmt.Errorf("postgres: decode report: %w", err)
		}
		out = append(out, report)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list reports %q: %w", templateID, err)
	}
	return out, nil
}

func (s *Store) GetConfig(ctx context.Context, templateID string) (flow.TemplateConfig, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT config FROM template_configs WHERE template_id = $1`, templateID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return flow.TemplateConfig{}, fmt.Errorf("config %q: %w", templateID, store.ErrNotFound)
	}
	if err != nil {
		return flow.TemplateConfig{}, fmt.Errorf("postgres: get config %q: %w", templateID, err)
	}
	var cfg flow.TemplateConfig
	if err := json.Unmarshal(payload, &cfg); err != nil {
		return flow.TemplateConfig{}, fmt.Errorf("postgres: decode config %q: %w", templateID, err)
	}
	return cfg, nil
}

func (s *Store) SaveConfig(ctx context.Context, cfg flow.TemplateConfig) error {
	if cfg.TemplateID == "" {
		return fmt.Errorf("postgres: config template id is required")
	}
	payload, err := marshalString(cfg)
	if err != nil {
		return fmt.Errorf("postgres: encode config: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO template_configs (template_id, config, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (template_id) DO UPDATE SET config = EXCLUDED.config, updated_at = now()`,
		cfg.TemplateID, payload,
	)
	if err != nil {
		return fmt.Errorf("postgres: save config %q: %w", cfg.TemplateID, err)
	}
	return nil
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("template %q: %w", id, store.ErrNotFound)
	}
	return nil
}

// requireCurrent tells a missing template from one whose updated_at moved
// when a guarded update touched no rows.
func requireCurrent(ctx context.Context, tx dbx.DBTX, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM templates WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("postgres: check %q: %w", id, err)
	}
	if !exists {
		return fmt.Errorf("template %q: %w", id, store.ErrNotFound)
	}
	return fmt.Errorf("template %q: %w", id, store.ErrConflict)
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nonNilVars(v []catalog.Variable) []catalog.Variable {
	if v == nil {
		return []catalog.Variable{}
	}
	return v
}

func nonNilStrings(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
