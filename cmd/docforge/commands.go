package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-docforge/pkg/api"
	"github.com/goliatone/go-docforge/pkg/content"
	"github.com/goliatone/go-docforge/pkg/interview"
	"github.com/goliatone/go-docforge/pkg/verification"
)

var errUnclean = errors.New("findings reported")

func runLint(ctx context.Context, e *env, args []string) error {
	id, err := single(args, "template id")
	if err != nil {
		return err
	}
	sample, err := readData(e.flags.sample)
	if err != nil {
		return err
	}
	res, err := e.svc.Lint(ctx, id, sample)
	if err != nil {
		return err
	}
	if err := e.print(res); err != nil {
		return err
	}
	if !res.OK {
		return errUnclean
	}
	return nil
}

func runBatchLint(ctx context.Context, e *env, args []string) error {
	res, err := e.svc.BatchLint(ctx, verification.Selection{IDs: args, PublishedOnly: e.flags.published})
	if err != nil {
		return err
	}
	if err := e.print(res); err != nil {
		return err
	}
	if res.Totals.Failed > 0 || res.Totals.Errors > 0 {
		return fmt.Errorf("%w: %d failed, %d errors", errUnclean, res.Totals.Failed, res.Totals.Errors)
	}
	return nil
}

func runVerify(ctx context.Context, e *env, args []string) error {
	id, err := single(args, "template id")
	if err != nil {
		return err
	}
	out, err := e.svc.VerifyAndPublish(ctx, id, verification.Options{Force: e.flags.force, DryRun: e.flags.dryRun})
	if err != nil {
		return err
	}
	if err := e.print(out); err != nil {
		return err
	}
	return out.Err()
}

func runEdit(ctx context.Context, e *env, args []string) error {
	id, err := single(args, "template id")
	if err != nil {
		return err
	}
	if e.flags.file == "" {
		return errors.New("-file is required")
	}
	body, err := readContent(e.flags.file)
	if err != nil {
		return err
	}
	tpl, err := e.svc.UpdateContent(ctx, id, body)
	if err != nil {
		return err
	}
	return e.print(tpl)
}

func runRender(ctx context.Context, e *env, args []string) error {
	id, err := single(args, "template id")
	if err != nil {
		return err
	}
	data, err := readData(e.flags.data)
	if err != nil {
		return err
	}
	res := e.svc.RenderByID(ctx, id, data)
	if res.UsedFallback {
		e.logger.Warn(ctx, "fallback document served", "template_id", id, "reason", res.Reason, "fallbacks", e.fallbacks.Value())
	}
	_, err = fmt.Fprintln(e.stdout, res.Output)
	return err
}

func runInterview(ctx context.Context, e *env, args []string) error {
	id, err := single(args, "template id")
	if err != nil {
		return err
	}
	session, err := e.svc.NewSession(ctx, id, nil)
	if err != nil {
		return err
	}
	iv := interview.New(interview.NewSurveyDriver(e.stderr), interview.WithLogger(e.logger))
	if err := iv.Run(ctx, session); err != nil {
		return err
	}
	doc, err := session.GenerateDocument()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(e.stdout, doc.Content)
	return err
}

func runServe(ctx context.Context, e *env, _ []string) error {
	handler, err := api.NewHandler(e.svc, api.WithLogger(e.logger))
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              e.cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		e.logger.Info(ctx, "listening", "addr", e.cfg.ListenAddr, "production", e.cfg.Production)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), e.cfg.ShutdownTimeout)
	defer cancel()
	e.logger.Info(ctx, "shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (e *env) print(v any) error {
	enc := json.NewEncoder(e.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func single(args []string, what string) (string, error) {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		return "", fmt.Errorf("expected exactly one %s", what)
	}
	return args[0], nil
}

// readData decodes a JSON or YAML object. An empty path yields nil.
func readData(path string) (map[string]any, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var data map[string]any
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return data, nil
}

func readContent(path string) (content.Content, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return content.Content{}, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		var body content.Content
		if err := yaml.Unmarshal(raw, &body); err != nil {
			return content.Content{}, fmt.Errorf("decode %s: %w", path, err)
		}
		return body, nil
	default:
		return content.PlainText(string(raw)), nil
	}
}
