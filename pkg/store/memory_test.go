package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/goliatone/go-docforge/pkg/catalog"
	"github.com/goliatone/go-docforge/pkg/content"
	"github.com/goliatone/go-docforge/pkg/flow"
)

var now = time.Date(2024, 5, 2, 9, 30, 0, 0, time.UTC)

func seeded(t *testing.T) *Memory {
	t.Helper()
	m := NewMemory()
	tpl := catalog.New("nda", "NDA", content.PlainText("Between {{a}} and {{b}}"), now)
	tpl.Published = true
	if err := m.SaveTemplate(context.Background(), tpl); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := m.SaveTemplate(context.Background(), catalog.New("draft", "Draft", content.PlainText("x"), now)); err != nil {
		t.Fatalf("save: %v", err)
	}
	return m
}

func TestMemoryGetMissing(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	if _, err := m.GetTemplate(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := m.GetConfig(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := m.FlagForReverification(context.Background(), "nope", "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryListFilters(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := seeded(t)

	all, err := m.ListTemplates(ctx, ListFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 || all[0].ID != "draft" {
		t.Fatalf("unexpected list %v", all)
	}
	published, _ := m.ListTemplates(ctx, ListFilter{PublishedOnly: true})
	if len(published) != 1 || published[0].ID != "nda" {
		t.Fatalf("unexpected published list %v", published)
	}
	byID, _ := m.ListTemplates(ctx, ListFilter{IDs: []string{"draft"}})
	if len(byID) != 1 || byID[0].ID != "draft" {
		t.Fatalf("unexpected id list %v", byID)
	}
}

func TestMemoryCommitAndEdit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := seeded(t)

	verifiedAt := now.Add(time.Minute)
	report := catalog.VerificationReport{ID: uuid.New(), TemplateID: "nda", Success: true, Status: catalog.StatusVerified, CreatedAt: verifiedAt}
	state := VerificationState{
		Status:            catalog.StatusVerified,
		VersionHash:       "h1",
		LastVerifiedAt:    &verifiedAt,
		ClearRequired:     true,
		VariablesCache:    []string{"a", "b"},
		VariablesCachedAt: &verifiedAt,
	}
	if err := m.CommitVerification(ctx, report, state); err != nil {
		t.Fatalf("commit: %v", err)
	}

	tpl, _ := m.GetTemplate(ctx, "nda")
	if !catalog.IsProductionEligible(tpl) {
		t.Fatalf("expected eligible after commit: %+v", tpl)
	}
	if !cmp.Equal(tpl.VariablesCache, []string{"a", "b"}) {
		t.Fatalf("unexpected cache %v", tpl.VariablesCache)
	}

	edited, err := m.UpdateContent(ctx, "nda", content.PlainText("changed"), verifiedAt.Add(time.Minute))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !edited.VerificationRequired || catalog.IsProductionEligible(edited) {
		t.Fatalf("edit must clear eligibility: %+v", edited)
	}
}

func TestMemoryBlockedCommitKeepsState(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := seeded(t)
	before, _ := m.GetTemplate(ctx, "nda")

	report := catalog.VerificationReport{ID: uuid.New(), TemplateID: "nda", Status: catalog.StatusBlocked}
	if err := m.CommitVerification(ctx, report, VerificationState{Status: catalog.StatusBlocked, VersionHash: "ignored"}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	after, _ := m.GetTemplate(ctx, "nda")
	before.Status = catalog.StatusBlocked
	if diff := cmp.Diff(before, after); diff != "" {
		t.Fatalf("blocked commit touched more than status (-want +got):\n%s", diff)
	}
}

func TestMemoryReportsNewestFirst(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := seeded(t)
	for i := 0; i < 3; i++ {
		r := catalog.VerificationReport{ID: uuid.New(), TemplateID: "nda", CreatedAt: now.Add(time.Duration(i) * time.Minute)}
		if err := m.CommitVerification(ctx, r, VerificationState{Status: catalog.StatusBlocked}); err != nil {
			t.Fatalf("commit: %v", err)
		}
	}
	reports, _ := m.ListReports(ctx, "nda")
	if len(reports) != 3 || !reports[0].CreatedAt.After(reports[2].CreatedAt) {
		t.Fatalf("expected newest first, got %v", reports)
	}
}

func TestMemoryFlagAndConfig(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := seeded(t)
	if err := m.FlagForReverification(ctx, "nda", "smoke test failed"); err != nil {
		t.Fatalf("flag: %v", err)
	}
	tpl, _ := m.GetTemplate(ctx, "nda")
	if !tpl.VerificationRequired {
		t.Fatalf("expected flag set")
	}
	if got := m.FlagReasons("nda"); !cmp.Equal(got, []string{"smoke test failed"}) {
		t.Fatalf("unexpected reasons %v", got)
	}

	cfg := flow.TemplateConfig{TemplateID: "nda"}
	if err := m.SaveConfig(ctx, cfg); err != nil {
		t.Fatalf("save config: %v", err)
	}
	got, err := m.GetConfig(ctx, "nda")
	if err != nil || got.TemplateID != "nda" {
		t.Fatalf("unexpected config %+v (%v)", got, err)
	}
}

func TestMemoryCommitRejectsStaleSnapshot(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := seeded(t)
	read, _ := m.GetTemplate(ctx, "nda")

	if _, err := m.UpdateContent(ctx, "nda", content.PlainText("Edited {{a}} [TODO]"), now.Add(time.Minute)); err != nil {
		t.Fatalf("update: %v", err)
	}

	verifiedAt := now.Add(2 * time.Minute)
	report := catalog.VerificationReport{ID: uuid.New(), TemplateID: "nda", Success: true, Status: catalog.StatusVerified}
	err := m.CommitVerification(ctx, report, VerificationState{
		Status:            catalog.StatusVerified,
		VersionHash:       "h1",
		LastVerifiedAt:    &verifiedAt,
		ClearRequired:     true,
		ExpectedUpdatedAt: read.UpdatedAt,
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	tpl, _ := m.GetTemplate(ctx, "nda")
	if !tpl.VerificationRequired || tpl.Status == catalog.StatusVerified || tpl.VersionHash != "" {
		t.Fatalf("stale commit must not apply: %+v", tpl)
	}
	if reports, _ := m.ListReports(ctx, "nda"); len(reports) != 0 {
		t.Fatalf("stale commit must not append a report: %v", reports)
	}
}
