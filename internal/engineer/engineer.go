// Package engineer turns an analytical request into a validated warehouse
// query: a drafting model proposes SQL in the business naming domain, the
// remapper translates it to physical identifiers, and a dry-run against the
// warehouse either accepts it or feeds the engine diagnostic back into a
// dedicated correction thread.
package engineer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/crmlens/engine/internal/catalog"
	errx "github.com/crmlens/engine/internal/core/error"
	"github.com/crmlens/engine/internal/loop"
	"github.com/crmlens/engine/internal/oracle"
	"github.com/crmlens/engine/internal/warehouse"
	logx "github.com/crmlens/engine/pkg/logger"
)

// SQLResult is the structured artifact the models produce. Error is set by
// the model itself when the request cannot be answered from the catalog.
type SQLResult struct {
	SQLCode string `json:"sql_code"`
	Error   string `json:"error,omitempty"`
}

// Config tunes the query correction loop. The attempt budget is generous
// because dry runs are cheap and most failures are superficial.
type Config struct {
	DraftModel  string        `envconfig:"ENGINEER_MODEL" default:"gemini-2.5-pro"`
	FixModel    string        `envconfig:"ENGINEER_FIX_MODEL" default:"gemini-2.5-pro"`
	MaxAttempts int           `envconfig:"ENGINEER_MAX_ATTEMPTS" default:"32"`
	Deadline    time.Duration `envconfig:"ENGINEER_DEADLINE" default:"10m"`
}

// Engineer owns the shared dependencies; one Generate call spawns one
// correction loop with its own sessions.
type Engineer struct {
	gen    oracle.Generator
	cat    *catalog.Catalog
	engine warehouse.Engine
	cfg    Config
	audit  loop.AuditSink
}

func New(gen oracle.Generator, cat *catalog.Catalog, engine warehouse.Engine, cfg Config, audit loop.AuditSink) *Engineer {
	return &Engineer{gen: gen, cat: cat, engine: engine, cfg: cfg, audit: audit}
}

// Generate runs the correction loop for one request. An accepted result
// carries the query in physical identifiers, ready for execution.
func (e *Engineer) Generate(ctx context.Context, request string) (loop.Result[SQLResult], error) {
	p := &pipeline{eng: e, request: request}
	return loop.Run(ctx, loop.Config{
		LoopID:      "query-" + uuid.NewString(),
		MaxAttempts: e.cfg.MaxAttempts,
		Deadline:    e.cfg.Deadline,
		Audit:       e.audit,
	}, p)
}

// pipeline is the per-loop state: the drafting session plus the lazily
// forked fix session.
type pipeline struct {
	eng     *Engineer
	request string
	draft   *oracle.Session
	fix     *oracle.Session
}

func (p *pipeline) Draft(ctx context.Context) (SQLResult, error) {
	e := p.eng
	p.draft = oracle.NewSession(e.gen, e.cfg.DraftModel,
		oracle.StructuredConfig(draftInstruction, sqlResultSchema(), 0, 1, 0))

	prompt := draftPrompt(p.request, e.cat)
	text, err := p.draft.SendText(ctx, prompt)
	if err != nil {
		return SQLResult{}, err
	}

	res, err := oracle.Decode[SQLResult](text)
	if err != nil {
		return SQLResult{}, err
	}
	if res.SQLCode == "" {
		if res.Error != "" {
			// The model decided the question is unanswerable with this
			// catalog; retrying the same request cannot change that.
			return SQLResult{}, errx.Fatal(res.Error)
		}
		return SQLResult{}, errx.Parse("model returned neither sql_code nor error")
	}
	logx.Debug().Str("sql", res.SQLCode).Msg("query candidate drafted")
	return res, nil
}

// Validate remaps the candidate into physical identifiers and dry-runs it.
// The normalized artifact carries the physical form so the caller can
// execute it directly.
func (p *pipeline) Validate(ctx context.Context, candidate SQLResult) (SQLResult, error) {
	e := p.eng
	if e.cat.Len() == 0 {
		return SQLResult{}, errx.Fatal("schema catalog is empty")
	}

	physical := e.cat.RemapSQL(candidate.SQLCode, catalog.LogicalToPhysical)
	if err := e.engine.DryRun(ctx, physical); err != nil {
		if ctx.Err() != nil {
			return SQLResult{}, ctx.Err()
		}
		detail := warehouse.Diagnostic(err)
		if fatalDiagnostic(detail) {
			return SQLResult{}, errx.Fatal(detail)
		}
		return SQLResult{}, errx.Structural(detail)
	}
	return SQLResult{SQLCode: physical}, nil
}

func (p *pipeline) Fix(ctx context.Context, candidate SQLResult, detail string) (SQLResult, error) {
	e := p.eng
	if p.fix == nil {
		// The fix thread inherits the drafting history once and then
		// diverges; the drafting session is never touched again.
		p.fix = p.draft.Fork(e.cfg.FixModel,
			oracle.StructuredConfig(correctionInstruction(e.cat), sqlResultSchema(), 0, 0, 0))
	}

	text, err := p.fix.SendText(ctx, correctionPrompt(candidate.SQLCode, detail))
	if err != nil {
		return SQLResult{}, err
	}

	res, err := oracle.Decode[SQLResult](text)
	if err != nil {
		return SQLResult{}, err
	}
	if res.SQLCode == "" {
		return SQLResult{}, errx.Parse("fix reply carried no sql_code")
	}
	return res, nil
}

// fatalDiagnostic classifies dry-run diagnostics that no amount of query
// rewriting can repair. Everything else is retryable with the diagnostic fed
// back verbatim.
func fatalDiagnostic(detail string) bool {
	lower := strings.ToLower(detail)
	for _, marker := range []string{
		"not found: dataset",
		"not found: project",
		"access denied",
		"does not have permission",
	} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func sqlResultSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"sql_code": {Type: genai.TypeString},
			"error":    {Type: genai.TypeString},
		},
		Required: []string{"sql_code"},
	}
}

var _ loop.Pipeline[SQLResult] = (*pipeline)(nil)

// Markdown renders an accepted query for artifact storage.
func (r SQLResult) Markdown() string {
	return fmt.Sprintf("```sql\n%s\n```", r.SQLCode)
}
