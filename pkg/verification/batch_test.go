package verification

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-docforge/pkg/catalog"
	"github.com/goliatone/go-docforge/pkg/content"
	"github.com/goliatone/go-docforge/pkg/store"
)

func seedBatch(t *testing.T) *store.Memory {
	t.Helper()
	ctx := context.Background()
	mem := store.NewMemory()

	clean := catalog.New("clean", "Clean", content.PlainText("Dear {{name}}"), created)
	clean.RequiredVariables = []catalog.Variable{{Name: "name"}}
	clean.Published = true

	todo := catalog.New("todo", "Todo", content.PlainText("Dear {{name}} FIXME: {{extra}}"), created)
	todo.RequiredVariables = []catalog.Variable{{Name: "name"}}
	todo.Published = true

	broken := catalog.New("broken", "Broken", content.PlainText("Dear {{name"), created)

	for _, tpl := range []catalog.Template{clean, todo, broken} {
		require.NoError(t, mem.SaveTemplate(ctx, tpl))
	}
	return mem
}

func TestBatchLintAll(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mem := seedBatch(t)
	v := New(mem, WithClock(fixedClock(later)), WithBatchConcurrency(2), WithRateLimit(1000, 10))

	res, err := v.BatchLint(ctx, Selection{})
	require.NoError(t, err)
	require.Len(t, res.Summaries, 3)

	byID := map[string]Summary{}
	for _, s := range res.Summaries {
		byID[s.TemplateID] = s
	}
	assert.True(t, byID["clean"].OK)
	assert.True(t, byID["todo"].HasPlaceholders)
	assert.Equal(t, []string{"extra"}, byID["todo"].UnknownVars)
	assert.False(t, byID["broken"].SmokeSuccess)
	assert.NotEmpty(t, byID["broken"].SmokeError)

	assert.Equal(t, Totals{
		Templates:        3,
		OK:               1,
		Failed:           2,
		WithPlaceholders: 1,
		WithUnknownVars:  1,
		SmokeFailures:    1,
	}, res.Totals)

	for _, id := range []string{"clean", "todo", "broken"} {
		tpl, err := mem.GetTemplate(ctx, id)
		require.NoError(t, err)
		assert.True(t, CacheFresh(tpl), id)
	}
}

func TestBatchLintPublishedOnly(t *testing.T) {
	t.Parallel()
	v := New(seedBatch(t), WithClock(fixedClock(later)))

	res, err := v.BatchLint(context.Background(), Selection{PublishedOnly: true})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Totals.Templates)
}

func TestBatchLintExplicitIDs(t *testing.T) {
	t.Parallel()
	v := New(seedBatch(t), WithClock(fixedClock(later)))

	res, err := v.BatchLint(context.Background(), Selection{IDs: []string{"broken"}})
	require.NoError(t, err)
	require.Len(t, res.Summaries, 1)
	assert.Equal(t, "broken", res.Summaries[0].TemplateID)
}

func TestBatchLintKeepsSelectionOrderAndReportsMissing(t *testing.T) {
	t.Parallel()
	v := New(seedBatch(t), WithClock(fixedClock(later)))

	res, err := v.BatchLint(context.Background(), Selection{IDs: []string{"todo", "ghost", "clean", "todo"}})
	require.NoError(t, err)

	ids := make([]string, 0, len(res.Summaries))
	for _, s := range res.Summaries {
		ids = append(ids, s.TemplateID)
	}
	assert.Equal(t, []string{"todo", "ghost", "clean"}, ids)

	missing := res.Summaries[1]
	assert.Contains(t, missing.Error, "not found")
	assert.False(t, missing.OK)
	assert.Empty(t, missing.Status)

	assert.Equal(t, Totals{
		Templates:        3,
		OK:               1,
		Failed:           1,
		WithPlaceholders: 1,
		WithUnknownVars:  1,
		Errors:           1,
	}, res.Totals)
}

// countingStore records the peak number of concurrent cache writes.
type countingStore struct {
	*store.Memory
	active atomic.Int32
	peak   atomic.Int32
	fail   string
}

func (c *countingStore) UpdateVariableCache(ctx context.Context, id string, vars []string, at time.Time) error {
	n := c.active.Add(1)
	defer c.active.Add(-1)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	if id == c.fail {
		return errors.New("db down")
	}
	return c.Memory.UpdateVariableCache(ctx, id, vars, at)
}

func TestBatchLintBoundsConcurrency(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mem := store.NewMemory()
	for i := 0; i < 12; i++ {
		require.NoError(t, mem.SaveTemplate(ctx, catalog.New(fmt.Sprintf("t%02d", i), "T", content.PlainText("x {{a}}"), created)))
	}
	cs := &countingStore{Memory: mem, fail: "t03"}
	v := New(cs, WithClock(fixedClock(later)), WithBatchConcurrency(3))

	res, err := v.BatchLint(ctx, Selection{})
	require.NoError(t, err)
	assert.LessOrEqual(t, cs.peak.Load(), int32(3))
	assert.Equal(t, 1, res.Totals.Errors)
	assert.Equal(t, "db down", res.Summaries[3].Error)
}

func TestBatchLintHonoursCancellation(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	v := New(seedBatch(t), WithClock(fixedClock(later)), WithRateLimit(0.001, 1))
	// cache writes wait on the limiter, which rejects a cancelled context
	_, err := v.BatchLint(ctx, Selection{})
	assert.Error(t, err)
}
