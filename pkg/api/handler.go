// Package api exposes docforge over JSON/HTTP. Request bodies are validated
// against the embedded OpenAPI document before they reach the service.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-docforge/pkg/assembly"
	"github.com/goliatone/go-docforge/pkg/auth"
	"github.com/goliatone/go-docforge/pkg/catalog"
	"github.com/goliatone/go-docforge/pkg/content"
	"github.com/goliatone/go-docforge/pkg/lint"
	"github.com/goliatone/go-docforge/pkg/logging"
	"github.com/goliatone/go-docforge/pkg/saferender"
	"github.com/goliatone/go-docforge/pkg/verification"
)

// Service is the subset of docforge.Service the API serves.
type Service interface {
	Lint(ctx context.Context, id string, sample map[string]any) (lint.Result, error)
	BatchLint(ctx context.Context, sel verification.Selection) (verification.BatchResult, error)
	VerifyAndPublish(ctx context.Context, id string, opts verification.Options) (verification.Outcome, error)
	RenderByID(ctx context.Context, id string, data map[string]any) saferender.Result
	UpdateContent(ctx context.Context, id string, body content.Content) (catalog.Template, error)
	GenerateDocument(ctx context.Context, templateID string, answers map[string]any) (assembly.Document, error)
	Catalog(ctx context.Context) ([]catalog.Template, error)
	Reports(ctx context.Context, id string) ([]catalog.VerificationReport, error)
}

// DefaultMaxBodyBytes caps request bodies.
const DefaultMaxBodyBytes int64 = 1 << 20

// Options configure the handler.
type Options struct {
	Logger       logging.Logger
	MaxBodyBytes int64
}

// OptionFn mutates Options.
type OptionFn func(*Options)

// WithLogger sets the request logger.
func WithLogger(l logging.Logger) OptionFn {
	return func(o *Options) { o.Logger = l }
}

// WithMaxBodyBytes caps request bodies; values <= 0 keep the default.
func WithMaxBodyBytes(n int64) OptionFn {
	return func(o *Options) { o.MaxBodyBytes = n }
}

// NewOptions applies fns over the defaults.
func NewOptions(fns ...OptionFn) Options {
	opts := Options{}
	for _, fn := range fns {
		if fn != nil {
			fn(&opts)
		}
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return opts
}

type handler struct {
	svc      Service
	contract *contract
	opts     Options
}

// NewHandler builds the HTTP handler. It fails only when the embedded
// OpenAPI document does not load.
func NewHandler(svc Service, fns ...OptionFn) (http.Handler, error) {
	if svc == nil {
		return nil, errors.New("api: service is required")
	}
	c, err := loadContract(context.Background())
	if err != nil {
		return nil, err
	}
	h := &handler{svc: svc, contract: c, opts: NewOptions(fns...)}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /openapi.json", h.openAPI)
	mux.HandleFunc("GET /v1/catalog", h.listCatalog)
	mux.HandleFunc("POST /v1/templates/{id}/lint", h.lint)
	mux.HandleFunc("POST /v1/templates/batch-lint", h.batchLint)
	mux.HandleFunc("POST /v1/templates/{id}/verify", h.verify)
	mux.HandleFunc("POST /v1/templates/{id}/render", h.render)
	mux.HandleFunc("PUT /v1/templates/{id}/content", h.updateContent)
	mux.HandleFunc("GET /v1/templates/{id}/reports", h.reports)
	mux.HandleFunc("POST /v1/flows/{id}/generate", h.generate)

	return h.withRequestContext(mux), nil
}

// withRequestContext moves the bearer token onto the request context and
// logs every request.
func (h *handler) withRequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		if token, ok := bearerToken(r.Header.Get("Authorization")); ok {
			r = r.WithContext(auth.WithToken(r.Context(), token))
		}
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		h.opts.Logger.Debug(r.Context(), "request served",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := writeError(w, err)
	if code >= http.StatusInternalServerError {
		h.opts.Logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		return
	}
	h.opts.Logger.Info(r.Context(), "request rejected", "path", r.URL.Path, "status", code, "error", err)
}

func (h *handler) decode(w http.ResponseWriter, r *http.Request, operationID string, target any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.opts.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.fail(w, r, StatusError{Code: http.StatusRequestEntityTooLarge, Err: fmt.Errorf("body exceeds %d bytes", tooLarge.Limit)})
			return false
		}
		h.fail(w, r, StatusError{Code: http.StatusBadRequest, Err: err})
		return false
	}
	if err := h.contract.decode(operationID, body, target); err != nil {
		h.fail(w, r, err)
		return false
	}
	return true
}

func (h *handler) openAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.contract.json)
}

type catalogResponse struct {
	Data []catalog.Template `json:"data"`
}

func (h *handler) listCatalog(w http.ResponseWriter, r *http.Request) {
	templates, err := h.svc.Catalog(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if templates == nil {
		templates = []catalog.Template{}
	}
	writeJSON(w, http.StatusOK, catalogResponse{Data: templates})
}

type lintRequest struct {
	Sample map[string]any `json:"sample"`
}

func (h *handler) lint(w http.ResponseWriter, r *http.Request) {
	var req lintRequest
	if !h.decode(w, r, "lintTemplate", &req) {
		return
	}
	res, err := h.svc.Lint(r.Context(), r.PathValue("id"), req.Sample)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) batchLint(w http.ResponseWriter, r *http.Request) {
	var sel verification.Selection
	if !h.decode(w, r, "batchLint", &sel) {
		return
	}
	res, err := h.svc.BatchLint(r.Context(), sel)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type verifyRequest struct {
	Force  bool `json:"force"`
	DryRun bool `json:"dryRun"`
}

func (h *handler) verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !h.decode(w, r, "verifyTemplate", &req) {
		return
	}
	out, err := h.svc.VerifyAndPublish(r.Context(), r.PathValue("id"), verification.Options{
		Force:  req.Force,
		DryRun: req.DryRun,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type renderRequest struct {
	Data map[string]any `json:"data"`
}

func (h *handler) render(w http.ResponseWriter, r *http.Request) {
	var req renderRequest
	if !h.decode(w, r, "renderTemplate", &req) {
		return
	}
	writeJSON(w, http.StatusOK, h.svc.RenderByID(r.Context(), r.PathValue("id"), req.Data))
}

type contentRequest struct {
	Content content.Content `json:"content"`
}

func (h *handler) updateContent(w http.ResponseWriter, r *http.Request) {
	var req contentRequest
	if !h.decode(w, r, "updateContent", &req) {
		return
	}
	tpl, err := h.svc.UpdateContent(r.Context(), r.PathValue("id"), req.Content)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tpl)
}

type reportsResponse struct {
	Data []catalog.VerificationReport `json:"data"`
}

func (h *handler) reports(w http.ResponseWriter, r *http.Request) {
	reports, err := h.svc.Reports(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if reports == nil {
		reports = []catalog.VerificationReport{}
	}
	writeJSON(w, http.StatusOK, reportsResponse{Data: reports})
}

type generateRequest struct {
	Answers map[string]any `json:"answers"`
}

func (h *handler) generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if !h.decode(w, r, "generateDocument", &req) {
		return
	}
	doc, err := h.svc.GenerateDocument(r.Context(), r.PathValue("id"), req.Answers)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}
