package verification

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/goliatone/go-docforge/pkg/catalog"
	"github.com/goliatone/go-docforge/pkg/lint"
	"github.com/goliatone/go-docforge/pkg/store"
)

// Selection picks the templates a batch covers. Explicit IDs win over
// PublishedOnly.
type Selection struct {
	IDs           []string `json:"templateIds,omitempty"`
	PublishedOnly bool     `json:"publishedOnly,omitempty"`
}

// Summary is the lint verdict for one template in a batch.
type Summary struct {
	TemplateID      string   `json:"templateId"`
	Title           string   `json:"title,omitempty"`
	Status          string   `json:"status"`
	OK              bool     `json:"ok"`
	SmokeSuccess    bool     `json:"smokeSuccess"`
	SmokeError      string   `json:"smokeError,omitempty"`
	UnknownVars     []string `json:"unknownVars"`
	HasPlaceholders bool     `json:"hasPlaceholders"`
	Warnings        []string `json:"warnings"`
	Eligible        bool     `json:"eligible"`
	Error           string   `json:"error,omitempty"`
}

// Totals aggregates a batch.
type Totals struct {
	Templates        int `json:"templates"`
	OK               int `json:"ok"`
	Failed           int `json:"failed"`
	WithPlaceholders int `json:"withPlaceholders"`
	WithUnknownVars  int `json:"withUnknownVars"`
	SmokeFailures    int `json:"smokeFailures"`
	Errors           int `json:"errors"`
}

// BatchResult is the outcome of BatchLint.
type BatchResult struct {
	Summaries []Summary     `json:"summaries"`
	Totals    Totals        `json:"totals"`
	Elapsed   time.Duration `json:"-"`
	ElapsedMs int64         `json:"elapsedMs"`
}

// BatchLint lints the selected templates concurrently, bounded by the
// verifier's concurrency and rate limit. With explicit IDs, summaries follow
// the selection order and an id the store does not hold gets an error
// summary; otherwise they are ordered by id. Store failures for a single
// template are reported in its summary; only cancellation aborts the batch.
func (v *Verifier) BatchLint(ctx context.Context, sel Selection) (BatchResult, error) {
	start := v.now()

	templates, err := v.store.ListTemplates(ctx, store.ListFilter{PublishedOnly: sel.PublishedOnly && len(sel.IDs) == 0, IDs: sel.IDs})
	if err != nil {
		return BatchResult{}, fmt.Errorf("verification: batch list: %w", err)
	}

	summaries := make([]Summary, len(templates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.concurrency)

	for i, tpl := range templates {
		g.Go(func() error {
			summary, err := v.lintOne(gctx, tpl)
			if err != nil {
				return err
			}
			summaries[i] = summary
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return BatchResult{}, fmt.Errorf("verification: batch: %w", err)
	}

	var result BatchResult
	for _, s := range summaries {
		result.Totals.Templates++
		switch {
		case s.Error != "":
			result.Totals.Errors++
		case s.OK && s.SmokeSuccess:
			result.Totals.OK++
		default:
			result.Totals.Failed++
		}
		if s.HasPlaceholders {
			result.Totals.WithPlaceholders++
		}
		if len(s.UnknownVars) > 0 {
			result.Totals.WithUnknownVars++
		}
		if !s.SmokeSuccess {
			result.Totals.SmokeFailures++
		}
	}
	if len(sel.IDs) > 0 {
		summaries = inSelectionOrder(sel.IDs, summaries, &result.Totals)
	}
	result.Summaries = summaries
	result.Elapsed = v.now().Sub(start)
	result.ElapsedMs = result.Elapsed.Milliseconds()

	v.logger.Info(ctx, "batch lint finished",
		"templates", result.Totals.Templates,
		"ok", result.Totals.OK,
		"failed", result.Totals.Failed,
		"errors", result.Totals.Errors,
		"elapsed_ms", result.ElapsedMs,
	)
	return result, nil
}

// inSelectionOrder lays linted out in the order ids were requested. Duplicate
// ids collapse to their first position; unknown ids are counted as errors.
func inSelectionOrder(ids []string, linted []Summary, totals *Totals) []Summary {
	byID := make(map[string]Summary, len(linted))
	for _, s := range linted {
		byID[s.TemplateID] = s
	}

	out := make([]Summary, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if s, ok := byID[id]; ok {
			out = append(out, s)
			continue
		}
		out = append(out, Summary{
			TemplateID:  id,
			UnknownVars: []string{},
			Warnings:    []string{},
			Error:       fmt.Errorf("template %q: %w", id, store.ErrNotFound).Error(),
		})
		totals.Templates++
		totals.Errors++
	}
	return out
}

func (v *Verifier) lintOne(ctx context.Context, tpl catalog.Template) (Summary, error) {
	declared := tpl.DeclaredNames()
	result := lint.Lint(tpl.Content, declared, nil)
	smoke := lint.SmokeTest(tpl.Content, declared, lint.WithMaxContentBytes(v.maxBytes))

	summary := Summary{
		TemplateID:      tpl.ID,
		Title:           tpl.Title,
		Status:          string(tpl.Status),
		OK:              result.OK,
		SmokeSuccess:    smoke.Success,
		SmokeError:      smoke.Error,
		UnknownVars:     result.UnknownVars,
		HasPlaceholders: result.HasPlaceholders,
		Warnings:        smoke.Warnings,
		Eligible:        Eligible(tpl),
	}

	if CacheFresh(tpl) {
		return summary, nil
	}
	if err := v.limiter.Wait(ctx); err != nil {
		return Summary{}, err
	}
	if err := v.store.UpdateVariableCache(ctx, tpl.ID, result.VarsUsed, stamp(v.now)); err != nil {
		v.logger.Warn(ctx, "variable cache refresh failed", "template_id", tpl.ID, "error", err)
		summary.Error = err.Error()
	}
	return summary, nil
}
