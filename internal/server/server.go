// Package server exposes the pipeline over HTTP. It parses GraphQL
// requests (single and batched), seeds the per-request context from the
// incoming request, runs the orchestrator, and writes spec-shaped JSON
// responses.
package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	eventbus "github.com/hanpama/pluggraph/internal/eventbus"
	events "github.com/hanpama/pluggraph/internal/events"
	language "github.com/hanpama/pluggraph/internal/language"
	orchestrator "github.com/hanpama/pluggraph/internal/orchestrator"
	reqid "github.com/hanpama/pluggraph/internal/reqid"
)

// ContextSeeder derives the initial execution-context values for one
// request, e.g. from auth headers. A nil seeder seeds nothing.
type ContextSeeder func(r *http.Request) map[string]any

// Handler is an http.Handler serving a GraphQL endpoint backed by the
// plugin pipeline.
type Handler struct {
	orch *orchestrator.Orchestrator
	opt  Options
}

type Options struct {
	// Timeout sets a default timeout if the incoming request context has
	// none. 0 means no default timeout.
	Timeout time.Duration

	// Pretty enables indented JSON responses (useful for dev).
	Pretty bool

	// MaxBodyBytes limits the size of the request body. 0 means unlimited.
	MaxBodyBytes int64

	// CORS configuration. If AllowedOrigins is empty, CORS is disabled.
	CORS CORSOptions

	// Seeder derives initial execution-context values per request.
	Seeder ContextSeeder
}

type Option func(*Options)

func WithTimeout(d time.Duration) Option       { return func(o *Options) { o.Timeout = d } }
func WithPretty() Option                       { return func(o *Options) { o.Pretty = true } }
func WithMaxBodyBytes(n int64) Option          { return func(o *Options) { o.MaxBodyBytes = n } }
func WithContextSeeder(s ContextSeeder) Option { return func(o *Options) { o.Seeder = s } }
func WithCORS(origins ...string) Option {
	return func(o *Options) { o.CORS.AllowedOrigins = origins }
}

// CORSOptions holds simple CORS settings.
type CORSOptions struct {
	AllowedOrigins []string
}

// New creates a GraphQL HTTP handler over the given orchestrator.
func New(orch *orchestrator.Orchestrator, opts ...Option) *Handler {
	op := Options{Timeout: 10 * time.Second}
	for _, f := range opts {
		f(&op)
	}
	return &Handler{orch: orch, opt: op}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := ctx.Deadline(); !ok && h.opt.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opt.Timeout)
		defer cancel()
	}

	ctx, _ = reqid.NewContext(ctx)
	status := http.StatusOK
	start := time.Now()
	eventbus.Publish(ctx, events.HTTPStart{Request: r})
	defer func() {
		eventbus.Publish(ctx, events.HTTPFinish{Request: r, Status: status, Duration: time.Since(start)})
	}()

	if r.Method == http.MethodOptions {
		if len(h.opt.CORS.AllowedOrigins) > 0 {
			setCORSHeaders(w, r, h.opt.CORS)
		}
		status = http.StatusNoContent
		w.WriteHeader(status)
		return
	}

	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		status = http.StatusMethodNotAllowed
		writeJSON(w, status, errorResponse("method not allowed"), h.opt.Pretty)
		return
	}

	req, batch, berr := parseRequest(r, h.opt.MaxBodyBytes)
	if berr != "" {
		status = http.StatusBadRequest
		if berr == errBodyTooLargeMessage {
			status = http.StatusRequestEntityTooLarge
		}
		writeJSON(w, status, errorResponse(berr), h.opt.Pretty)
		return
	}

	if len(h.opt.CORS.AllowedOrigins) > 0 {
		setCORSHeaders(w, r, h.opt.CORS)
	}

	seed := map[string]any{}
	if h.opt.Seeder != nil {
		seed = h.opt.Seeder(r)
	}

	if batch != nil {
		out := make([]*language.ExecutionResult, len(batch))
		for i := range batch {
			out[i] = h.orch.Run(ctx, orchestrator.Request{
				Query:          batch[i].Query,
				OperationName:  batch[i].OperationName,
				Variables:      batch[i].Variables,
				InitialContext: seed,
			})
		}
		writeJSON(w, status, out, h.opt.Pretty)
		return
	}

	res := h.orch.Run(ctx, orchestrator.Request{
		Query:          req.Query,
		OperationName:  req.OperationName,
		Variables:      req.Variables,
		InitialContext: seed,
	})
	writeJSON(w, status, res, h.opt.Pretty)
}

// ------------------ Request parsing ------------------

type GraphQLRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
	Extensions    map[string]any `json:"extensions,omitempty"`
}

func parseRequest(r *http.Request, maxBody int64) (GraphQLRequest, []GraphQLRequest, string) {
	if r.Method == http.MethodGet {
		q := r.URL.Query().Get("query")
		if q == "" {
			return GraphQLRequest{}, nil, "missing 'query'"
		}
		vars := map[string]any{}
		if v := r.URL.Query().Get("variables"); v != "" {
			if err := json.Unmarshal([]byte(v), &vars); err != nil {
				return GraphQLRequest{}, nil, "invalid 'variables' JSON"
			}
		}
		op := r.URL.Query().Get("operationName")
		return GraphQLRequest{Query: q, Variables: vars, OperationName: op}, nil, ""
	}

	// POST
	ct := r.Header.Get("Content-Type")
	if ct != "" && ct != "application/json" && !strings.HasPrefix(ct, "application/json;") {
		return GraphQLRequest{}, nil, "unsupported Content-Type"
	}
	reader := io.Reader(r.Body)
	if maxBody > 0 {
		reader = io.LimitReader(r.Body, maxBody+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return GraphQLRequest{}, nil, "failed to read body"
	}
	defer r.Body.Close()
	if maxBody > 0 && int64(len(body)) > maxBody {
		return GraphQLRequest{}, nil, errBodyTooLargeMessage
	}

	// Try array (batch)
	if len(body) > 0 && body[0] == '[' {
		var arr []GraphQLRequest
		if err := json.Unmarshal(body, &arr); err != nil {
			return GraphQLRequest{}, nil, "invalid JSON"
		}
		if len(arr) == 0 {
			return GraphQLRequest{}, nil, "empty batch"
		}
		return GraphQLRequest{}, arr, ""
	}
	// Single
	var req GraphQLRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return GraphQLRequest{}, nil, "invalid JSON"
	}
	if req.Query == "" {
		return GraphQLRequest{}, nil, "missing 'query'"
	}
	if req.Variables == nil {
		req.Variables = map[string]any{}
	}
	return req, nil, ""
}

// ------------------ Response formatting ------------------

func errorResponse(message string) *language.ExecutionResult {
	return &language.ExecutionResult{
		Errors: language.ErrorList{&language.Error{Message: message}},
	}
}

func writeJSON(w http.ResponseWriter, status int, v any, pretty bool) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	_ = enc.Encode(v)
}

const errBodyTooLargeMessage = "body too large"

func setCORSHeaders(w http.ResponseWriter, r *http.Request, opts CORSOptions) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	allowed := false
	wildcard := false
	for _, o := range opts.AllowedOrigins {
		if o == "*" {
			allowed = true
			wildcard = true
		}
		if o == origin {
			allowed = true
		}
	}
	if !allowed {
		return
	}
	if wildcard {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	} else {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Add("Vary", "Origin")
	}
	if r.Method == http.MethodOptions {
		if hdr := r.Header.Get("Access-Control-Request-Headers"); hdr != "" {
			w.Header().Set("Access-Control-Allow-Headers", hdr)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	}
}
