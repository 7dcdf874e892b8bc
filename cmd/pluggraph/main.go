package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hanpama/pluggraph/internal/engine"
	"github.com/hanpama/pluggraph/internal/eventbus"
	"github.com/hanpama/pluggraph/internal/hooks"
	"github.com/hanpama/pluggraph/internal/language"
	"github.com/hanpama/pluggraph/internal/orchestrator"
	"github.com/hanpama/pluggraph/internal/otel"
	"github.com/hanpama/pluggraph/internal/pipeline"
	"github.com/hanpama/pluggraph/internal/server"
	"github.com/hanpama/pluggraph/plugins/depthlimit"
	"github.com/hanpama/pluggraph/plugins/maskerrors"
	"github.com/hanpama/pluggraph/plugins/maxtokens"
)

const rootUsage = `pluggraph — plugin-driven GraphQL request pipeline

USAGE:
  pluggraph <command> [flags]

COMMANDS:
  serve            Run an HTTP GraphQL endpoint over a static data document
  check            Parse and validate a query document against a schema
  help             Show help for any command
`

const serveUsage = `serve FLAGS:
  -schema.file <file>          GraphQL SDL schema file (required)
  -schema.data <file>          JSON document backing the Query root fields
  -server.addr <addr>          HTTP listen address (default: :8080)
  -server.pretty               Pretty-print JSON responses
  -server.timeout <duration>   Per-request timeout, e.g. 10s (default: 10s)
  -server.cors <origin>        Allowed CORS origin. Repeatable
  -limits.max-depth <n>        Reject operations deeper than n (0 disables)
  -limits.max-tokens <n>       Reject documents with more than n tokens (0 disables)
  -mask.errors <bool>          Mask unexpected error messages (default: true)
  -otel.endpoint <addr>        OTLP collector endpoint
  -otel.service <name>         OpenTelemetry service name (default: pluggraph)
`

const checkUsage = `check FLAGS:
  -schema.file <file>  GraphQL SDL schema file (required)
  -query.file <file>   Query document to check (required)
  (Exits non-zero and prints each error when validation fails)
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

func run(args []string) error {
	global := flag.NewFlagSet("pluggraph", flag.ContinueOnError)
	global.SetOutput(new(bytes.Buffer)) // silence automatic output
	if err := global.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, rootUsage)
		return err
	}
	remaining := global.Args()
	if len(remaining) == 0 {
		fmt.Fprint(os.Stderr, rootUsage)
		return fmt.Errorf("missing command")
	}

	cmd := remaining[0]
	cmdArgs := remaining[1:]
	switch cmd {
	case "serve":
		return cmdServe(cmdArgs)
	case "check":
		return cmdCheck(cmdArgs)
	case "help":
		return cmdHelp(cmdArgs)
	default:
		fmt.Fprint(os.Stderr, rootUsage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdHelp(args []string) error {
	if len(args) == 0 {
		fmt.Print(rootUsage)
		return nil
	}
	switch args[0] {
	case "serve":
		fmt.Print(serveUsage)
	case "check":
		fmt.Print(checkUsage)
	default:
		return fmt.Errorf("unknown help topic %q", args[0])
	}
	return nil
}

type stringListFlag []string

func (s *stringListFlag) String() string { return "" }

func (s *stringListFlag) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func loadSchemaFile(path string) (*language.Schema, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return language.LoadSchema(&language.Source{Name: path, Input: string(b)})
}

func cmdServe(args []string) error {
	schemaFile := ""
	dataFile := ""
	addr := ":8080"
	pretty := false
	timeout := 10 * time.Second
	maxDepth := 0
	maxTokens := 0
	maskErrors := true
	otelEndpoint := ""
	otelService := "pluggraph"
	var corsOrigins stringListFlag

	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&schemaFile, "schema.file", schemaFile, "GraphQL SDL schema file")
	fs.StringVar(&dataFile, "schema.data", dataFile, "JSON document backing the Query root fields")
	fs.StringVar(&addr, "server.addr", addr, "HTTP listen address")
	fs.BoolVar(&pretty, "server.pretty", pretty, "Pretty-print JSON responses")
	fs.DurationVar(&timeout, "server.timeout", timeout, "Per-request timeout")
	fs.Var(&corsOrigins, "server.cors", "Allowed CORS origin")
	fs.IntVar(&maxDepth, "limits.max-depth", maxDepth, "Reject operations deeper than n")
	fs.IntVar(&maxTokens, "limits.max-tokens", maxTokens, "Reject documents with more than n tokens")
	fs.BoolVar(&maskErrors, "mask.errors", maskErrors, "Mask unexpected error messages")
	fs.StringVar(&otelEndpoint, "otel.endpoint", otelEndpoint, "OTLP collector endpoint")
	fs.StringVar(&otelService, "otel.service", otelService, "OpenTelemetry service name")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, serveUsage)
		return err
	}
	if schemaFile == "" {
		fmt.Fprint(os.Stderr, serveUsage)
		return fmt.Errorf("-schema.file is required")
	}

	schema, err := loadSchemaFile(schemaFile)
	if err != nil {
		return fmt.Errorf("load schema: %w", err)
	}

	data := map[string]any{}
	if dataFile != "" {
		b, err := os.ReadFile(dataFile)
		if err != nil {
			return fmt.Errorf("load data: %w", err)
		}
		if err := json.Unmarshal(b, &data); err != nil {
			return fmt.Errorf("parse data: %w", err)
		}
	}

	resolvers := rootResolvers(schema, data)

	var plugins []hooks.Plugin
	if maxTokens > 0 {
		plugins = append(plugins, maxtokens.New(maxtokens.WithLimit(maxTokens)))
	}
	if maxDepth > 0 {
		plugins = append(plugins, depthlimit.New(depthlimit.WithMaxDepth(maxDepth)))
	}
	if maskErrors {
		plugins = append(plugins, maskerrors.New())
	}

	eventbus.Use(eventbus.New())
	shutdown, err := otel.Setup(otelEndpoint, otelService)
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	holder, err := pipeline.NewHolder(context.Background(), schema, plugins...)
	if err != nil {
		return fmt.Errorf("compose pipeline: %w", err)
	}
	orch := orchestrator.New(engine.New(resolvers), holder)

	var sopts []server.Option
	if pretty {
		sopts = append(sopts, server.WithPretty())
	}
	if timeout > 0 {
		sopts = append(sopts, server.WithTimeout(timeout))
	}
	if len(corsOrigins) > 0 {
		sopts = append(sopts, server.WithCORS(corsOrigins...))
	}
	h := server.New(orch, sopts...)

	mux := http.NewServeMux()
	mux.Handle("/graphql", h)

	srv := &http.Server{Addr: addr, Handler: mux}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	log.Printf("GraphQL server listening on %s", addr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// rootResolvers serves each Query root field from the loaded JSON
// document; nested selections walk the document with the default
// map-lookup resolver.
func rootResolvers(schema *language.Schema, data map[string]any) *engine.Resolvers {
	resolvers := engine.NewResolvers()
	if schema.Query == nil {
		return resolvers
	}
	for _, fieldDef := range schema.Query.Fields {
		name := fieldDef.Name
		if strings.HasPrefix(name, "__") {
			continue
		}
		resolvers.Field(schema.Query.Name, name,
			func(ctx context.Context, info *hooks.ResolveInfo) (any, error) {
				return data[name], nil
			})
	}
	return resolvers
}

func cmdCheck(args []string) error {
	schemaFile := ""
	queryFile := ""
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&schemaFile, "schema.file", schemaFile, "GraphQL SDL schema file")
	fs.StringVar(&queryFile, "query.file", queryFile, "Query document to check")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, checkUsage)
		return err
	}
	if schemaFile == "" || queryFile == "" {
		fmt.Fprint(os.Stderr, checkUsage)
		return fmt.Errorf("-schema.file and -query.file are required")
	}

	schema, err := loadSchemaFile(schemaFile)
	if err != nil {
		return fmt.Errorf("load schema: %w", err)
	}
	qb, err := os.ReadFile(queryFile)
	if err != nil {
		return fmt.Errorf("load query: %w", err)
	}
	doc, err := language.ParseQuery(string(qb))
	if err != nil {
		return fmt.Errorf("parse query: %w", err)
	}
	if errs := language.Validate(schema, doc); len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintln(os.Stderr, e.Error())
		}
		return fmt.Errorf("%d validation error(s)", len(errs))
	}
	fmt.Println("ok")
	return nil
}
