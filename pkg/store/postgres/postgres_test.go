package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-docforge/pkg/catalog"
	"github.com/goliatone/go-docforge/pkg/content"
	"github.com/goliatone/go-docforge/pkg/flow"
	"github.com/goliatone/go-docforge/pkg/store"
)

var ts = time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC)

var columns = []string{
	"id", "title", "category", "content", "required_variables", "optional_variables", "published",
	"status", "last_verified_at", "version_hash", "verification_required", "variables_cache", "variables_cached_at",
	"created_at", "updated_at",
}

func newStoreWithMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return New(db), mock
}

func verifiedRow() *sqlmock.Rows {
	return sqlmock.NewRows(columns).AddRow(
		"nda", "NDA", "legal", []byte(`"Hello {{name}}"`), []byte(`[{"name":"name","type":"text"}]`), []byte(`[]`), true,
		"VERIFIED", ts, "abc", false, []byte(`["name"]`), ts,
		ts.Add(-time.Hour), ts.Add(-time.Hour),
	)
}

func TestGetTemplate(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectQuery(`(?s)^SELECT\s+id,\s*title.*FROM\s+templates\s+WHERE\s+id\s*=\s*\$1$`).
		WithArgs("nda").
		WillReturnRows(verifiedRow())

	tpl, err := s.GetTemplate(context.Background(), "nda")
	require.NoError(t, err)
	require.Equal(t, "Hello {{name}}", tpl.Content.Text())
	require.Equal(t, []catalog.Variable{{Name: "name", Type: "text"}}, tpl.RequiredVariables)
	require.Equal(t, catalog.StatusVerified, tpl.Status)
	require.Equal(t, []string{"name"}, tpl.VariablesCache)
	require.True(t, catalog.IsProductionEligible(tpl))
}

func TestGetTemplateNotFound(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectQuery(`FROM\s+templates\s+WHERE\s+id`).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := s.GetTemplate(context.Background(), "ghost")
	require.True(t, errors.Is(err, store.ErrNotFound), "got %v", err)
}

func TestListTemplatesFilters(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectQuery(`(?s)FROM\s+templates\s+WHERE\s+published\s*=\s*TRUE\s+AND\s+id\s+IN\s+\(\$1,\s*\$2\)\s+ORDER\s+BY\s+id$`).
		WithArgs("nda", "poa").
		WillReturnRows(verifiedRow())

	list, err := s.ListTemplates(context.Background(), store.ListFilter{PublishedOnly: true, IDs: []string{"nda", "poa"}})
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestUpdateContentFlagsVerification(t *testing.T) {
	s, mock := newStoreWithMock(t)

	edited := sqlmock.NewRows(columns).AddRow(
		"nda", "NDA", "legal", []byte(`{"en":"Hi","es":"Hola"}`), []byte(`[]`), []byte(`[]`), true,
		"VERIFIED", ts, "abc", true, nil, nil,
		ts.Add(-time.Hour), ts.Add(time.Minute),
	)
	mock.ExpectQuery(`(?s)^\s*UPDATE\s+templates\s+SET\s+content\s*=\s*\$2,\s*updated_at\s*=\s*\$3,\s*verification_required\s*=\s*TRUE\s+WHERE\s+id\s*=\s*\$1\s+RETURNING`).
		WithArgs("nda", `{"en":"Hi","es":"Hola"}`, ts.Add(time.Minute)).
		WillReturnRows(edited)

	tpl, err := s.UpdateContent(context.Background(), "nda", content.LocaleMap(map[string]string{"en": "Hi", "es": "Hola"}), ts.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, tpl.VerificationRequired)
	require.False(t, catalog.IsProductionEligible(tpl))
	require.Equal(t, content.KindLocaleMap, tpl.Content.Kind())
}

func TestCommitVerificationVerified(t *testing.T) {
	s, mock := newStoreWithMock(t)

	report := catalog.VerificationReport{ID: uuid.New(), TemplateID: "nda", Success: true, Status: catalog.StatusVerified, CreatedAt: ts}
	state := store.VerificationState{
		Status:            catalog.StatusVerified,
		VersionHash:       "h1",
		LastVerifiedAt:    &ts,
		ClearRequired:     true,
		VariablesCache:    []string{"name"},
		VariablesCachedAt: &ts,
		ExpectedUpdatedAt: ts.Add(-time.Hour),
	}

	mock.ExpectBegin()
	mock.ExpectExec(`(?s)UPDATE\s+templates\s+SET\s+status\s*=\s*\$2,\s*version_hash\s*=\s*\$3.*WHERE id = \$1 AND \(\$8::timestamptz IS NULL OR updated_at = \$8\)`).
		WithArgs("nda", "VERIFIED", "h1", ts, true, `["name"]`, ts, ts.Add(-time.Hour)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`(?s)INSERT\s+INTO\s+verification_reports`).
		WithArgs(report.ID.String(), "nda", true, "VERIFIED", sqlmock.AnyArg(), ts).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.CommitVerification(context.Background(), report, state))
}

func TestCommitVerificationBlockedOnlyTouchesStatus(t *testing.T) {
	s, mock := newStoreWithMock(t)

	report := catalog.VerificationReport{ID: uuid.New(), TemplateID: "nda", Status: catalog.StatusBlocked, CreatedAt: ts}

	mock.ExpectBegin()
	mock.ExpectExec(`^UPDATE templates SET status = \$2 WHERE id = \$1 AND \(\$3::timestamptz IS NULL OR updated_at = \$3\)$`).
		WithArgs("nda", "BLOCKED", nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT\s+INTO\s+verification_reports`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.CommitVerification(context.Background(), report, store.VerificationState{Status: catalog.StatusBlocked}))
}

func TestCommitVerificationRollsBack(t *testing.T) {
	t.Run("missing template", func(t *testing.T) {
		s, mock := newStoreWithMock(t)
		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE templates SET status`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM templates WHERE id = \$1\)`).
			WithArgs("ghost").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectRollback()

		err := s.CommitVerification(context.Background(),
			catalog.VerificationReport{ID: uuid.New(), TemplateID: "ghost"},
			store.VerificationState{Status: catalog.StatusBlocked})
		require.True(t, errors.Is(err, store.ErrNotFound), "got %v", err)
	})

	t.Run("edited since read", func(t *testing.T) {
		s, mock := newStoreWithMock(t)
		read := ts.Add(-time.Hour)
		mock.ExpectBegin()
		mock.ExpectExec(`(?s)UPDATE\s+templates\s+SET\s+status.*updated_at = \$8`).
			WithArgs("nda", "VERIFIED", "h1", ts, true, `["name"]`, ts, read).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM templates WHERE id = \$1\)`).
			WithArgs("nda").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectRollback()

		err := s.CommitVerification(context.Background(),
			catalog.VerificationReport{ID: uuid.New(), TemplateID: "nda", Success: true, Status: catalog.StatusVerified},
			store.VerificationState{
				Status:            catalog.StatusVerified,
				VersionHash:       "h1",
				LastVerifiedAt:    &ts,
				ClearRequired:     true,
				VariablesCache:    []string{"name"},
				VariablesCachedAt: &ts,
				ExpectedUpdatedAt: read,
			})
		require.True(t, errors.Is(err, store.ErrConflict), "got %v", err)
	})

	t.Run("report insert fails", func(t *testing.T) {
		s, mock := newStoreWithMock(t)
		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE templates SET status`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT\s+INTO\s+verification_reports`).WillReturnError(errors.New("disk full"))
		mock.ExpectRollback()

		err := s.CommitVerification(context.Background(),
			catalog.VerificationReport{ID: uuid.New(), TemplateID: "nda"},
			store.VerificationState{Status: catalog.StatusBlocked})
		require.ErrorContains(t, err, "disk full")
	})
}

func TestFlagForReverification(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE templates SET verification_required = TRUE WHERE id = \$1`).
		WithArgs("nda").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO template_flags \(template_id, reason\) VALUES \(\$1, \$2\)`).
		WithArgs("nda", "smoke test failed").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, s.FlagForReverification(context.Background(), "nda", "smoke test failed"))
}

func TestUpdateVariableCacheNotFound(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectExec(`UPDATE templates SET variables_cache = \$2, variables_cached_at = \$3 WHERE id = \$1`).
		WithArgs("ghost", `[]`, ts).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.UpdateVariableCache(context.Background(), "ghost", nil, ts)
	require.True(t, errors.Is(err, store.ErrNotFound), "got %v", err)
}

func TestListReports(t *testing.T) {
	s, mock := newStoreWithMock(t)

	newer := uuid.New()
	rows := sqlmock.NewRows([]string{"payload"}).
		AddRow([]byte(`{"id":"` + newer.String() + `","templateId":"nda","success":true,"status":"VERIFIED"}`)).
		AddRow([]byte(`{"id":"` + uuid.NewString() + `","templateId":"nda","success":false,"status":"BLOCKED"}`))
	mock.ExpectQuery(`SELECT payload FROM verification_reports WHERE template_id = \$1 ORDER BY created_at DESC`).
		WithArgs("nda").
		WillReturnRows(rows)

	reports, err := s.ListReports(context.Background(), "nda")
	require.NoError(t, err)
	require.Len(t, reports, 2)
	require.Equal(t, newer, reports[0].ID)
	require.Equal(t, catalog.StatusBlocked, reports[1].Status)
}

func TestConfigRoundTrip(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectExec(`(?s)INSERT\s+INTO\s+template_configs`).
		WithArgs("nda", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.SaveConfig(context.Background(), flow.TemplateConfig{TemplateID: "nda"}))

	mock.ExpectQuery(`SELECT config FROM template_configs WHERE template_id = \$1`).
		WithArgs("nda").
		WillReturnRows(sqlmock.NewRows([]string{"config"}).AddRow([]byte(`{"templateId":"nda","defaultVariantId":"mutual","steps":[],"variants":[{"id":"mutual"}]}`)))
	cfg, err := s.GetConfig(context.Background(), "nda")
	require.NoError(t, err)
	require.Equal(t, "mutual", cfg.DefaultVariantID)

	mock.ExpectQuery(`SELECT config FROM template_configs`).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)
	_, err = s.GetConfig(context.Background(), "ghost")
	require.True(t, errors.Is(err, store.ErrNotFound))
}

func TestMigrateUsesEmbeddedFS(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	orig := gooseUp
	t.Cleanup(func() { gooseUp = orig })

	var gotDir string
	gooseUp = func(_ context.Context, _ *sql.DB, dir string) error {
		gotDir = dir
		return nil
	}
	require.NoError(t, New(db).Migrate(context.Background()))
	require.Equal(t, "migrations", gotDir)

	entries, err := migrations.ReadDir("migrations")
	require.NoError(t, err)
	require.NotEmpty(t, entries)
}
