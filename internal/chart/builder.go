package chart

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"

	errx "github.com/crmlens/engine/internal/core/error"
	"github.com/crmlens/engine/internal/loop"
	"github.com/crmlens/engine/internal/oracle"
	"github.com/crmlens/engine/internal/warehouse"
	logx "github.com/crmlens/engine/pkg/logger"
)

// Renderer rasterizes a Vega-Lite document to PNG. The production
// implementation lives in the render subpackage.
type Renderer interface {
	Render(ctx context.Context, specJSON string) ([]byte, error)
}

// Chart is an accepted visualization: the enhanced document with the data
// block stripped, plus its rendering against the real result frame.
type Chart struct {
	VegaLiteJSON string `json:"vega_lite_json"`
	PNG          []byte `json:"-"`
}

// Request carries everything the drafting model needs to design a chart.
type Request struct {
	Question         string
	SpecificQuestion string
	SQLCode          string
	Notes            string
	Frame            *warehouse.Frame
}

// Config tunes the nested chart loops. The outer budget is small because
// every outer attempt costs a render plus a vision-model call; the inner
// budget is larger because structural repairs are cheap.
type Config struct {
	Model              string        `envconfig:"CHART_MODEL" default:"gemini-2.5-pro"`
	FixModel           string        `envconfig:"CHART_FIX_MODEL" default:"gemini-2.5-pro"`
	JudgeModel         string        `envconfig:"JUDGE_MODEL" default:"gemini-2.0-flash"`
	JudgeAttempts      int           `envconfig:"CHART_JUDGE_ATTEMPTS" default:"5"`
	StructuralAttempts int           `envconfig:"CHART_STRUCTURAL_ATTEMPTS" default:"10"`
	Deadline           time.Duration `envconfig:"CHART_DEADLINE" default:"10m"`
}

// Builder owns the shared dependencies; one Generate call spawns one outer
// judge loop with nested structural loops.
type Builder struct {
	gen      oracle.Generator
	renderer Renderer
	judge    Judge
	cfg      Config
	audit    loop.AuditSink
}

func New(gen oracle.Generator, renderer Renderer, judge Judge, cfg Config, audit loop.AuditSink) *Builder {
	return &Builder{gen: gen, renderer: renderer, judge: judge, cfg: cfg, audit: audit}
}

// Generate runs the outer judge loop for one request.
func (b *Builder) Generate(ctx context.Context, req Request) (loop.Result[Chart], error) {
	p := &judgePipeline{b: b, req: req, loopID: "chart-" + uuid.NewString()}
	return loop.Run(ctx, loop.Config{
		LoopID:      p.loopID,
		MaxAttempts: b.cfg.JudgeAttempts,
		Deadline:    b.cfg.Deadline,
		Audit:       b.audit,
	}, p)
}

// vegaReply is the structured artifact both chart sessions produce.
type vegaReply struct {
	VegaLiteJSON string `json:"vega_lite_json"`
}

// judgePipeline is the outer loop: each candidate has already survived the
// structural loop, and the judge decides whether it ships.
type judgePipeline struct {
	b      *Builder
	req    Request
	loopID string
	// draft is the outer design thread; judge feedback always continues
	// from here, never from a structural-fix thread.
	draft *oracle.Session
	inner int
}

func (p *judgePipeline) Draft(ctx context.Context) (Chart, error) {
	b := p.b
	p.draft = oracle.NewSession(b.gen, b.cfg.Model,
		oracle.StructuredConfig(chartInstruction, chartSchema(), 0.1, 256, 0))

	text, err := p.draft.SendText(ctx, chartPrompt(p.req))
	if err != nil {
		return Chart{}, err
	}
	reply, err := oracle.Decode[vegaReply](text)
	if err != nil {
		return Chart{}, err
	}
	return p.structural(ctx, reply.VegaLiteJSON)
}

// Validate sends the rendering to the judge. A rejected chart re-enters the
// loop as a judgment failure carrying the literal rationale.
func (p *judgePipeline) Validate(ctx context.Context, candidate Chart) (Chart, error) {
	verdict, err := p.b.judge.Evaluate(ctx, candidate.PNG, candidate.VegaLiteJSON,
		p.req.SpecificQuestion, p.req.Frame.Len())
	if err != nil {
		if ctx.Err() != nil {
			return Chart{}, ctx.Err()
		}
		// The judge is advisory; a structurally valid chart ships when the
		// judge cannot be reached.
		logx.Warn().Err(err).Msg("chart judge unavailable, accepting chart")
		return candidate, nil
	}
	if !verdict.IsGood {
		return Chart{}, errx.Judgment(verdict.Reason)
	}
	return candidate, nil
}

// Fix forks the outer design thread, feeds the rejection detail back (a judge
// rationale, or the last renderer error when the structural loop ran out), and
// runs the fresh draft through the structural loop again.
func (p *judgePipeline) Fix(ctx context.Context, candidate Chart, detail string) (Chart, error) {
	b := p.b
	p.draft = p.draft.Fork(b.cfg.Model,
		oracle.StructuredConfig(chartInstruction, chartSchema(), 0.1, 256, 0))

	text, err := p.draft.SendText(ctx, feedbackPrompt(detail, candidate.VegaLiteJSON))
	if err != nil {
		return Chart{}, err
	}
	reply, err := oracle.Decode[vegaReply](text)
	if err != nil {
		return Chart{}, err
	}
	return p.structural(ctx, reply.VegaLiteJSON)
}

// structural runs the inner loop on a freshly drafted document. When the
// inner budget runs out, the last renderer detail becomes feedback for the
// outer loop, which spends a remaining attempt redesigning from a fresh fork
// of the design thread. Fatal inner outcomes still escalate.
func (p *judgePipeline) structural(ctx context.Context, seed string) (Chart, error) {
	p.inner++
	sp := &structuralPipeline{b: p.b, req: p.req, seed: seed, draft: p.draft}
	res, err := loop.Run(ctx, loop.Config{
		LoopID:      fmt.Sprintf("%s-structural-%d", p.loopID, p.inner),
		MaxAttempts: p.b.cfg.StructuralAttempts,
		Audit:       p.b.audit,
	}, sp)
	if err != nil {
		return Chart{}, err
	}
	if !res.Accepted() {
		if res.LastKind == errx.KindFatal {
			return Chart{}, errx.Fatal(res.LastDetail)
		}
		return Chart{}, errx.Structural("the design never rendered after structural repairs, last error: " + res.LastDetail)
	}
	return res.Artifact, nil
}

// structuralPipeline is the inner loop: parse, enhance, and render until the
// document stops erroring. The fix thread forks lazily from the outer design
// thread and runs with an extended thinking budget.
type structuralPipeline struct {
	b     *Builder
	req   Request
	seed  string
	draft *oracle.Session
	fix   *oracle.Session
}

func (sp *structuralPipeline) Draft(ctx context.Context) (Chart, error) {
	return Chart{VegaLiteJSON: sp.seed}, nil
}

// Validate normalizes the raw document: strip data, grammar-check by
// rendering empty, bind selection parameters, then render with the real
// frame. Any renderer complaint is a structural failure fed back verbatim.
func (sp *structuralPipeline) Validate(ctx context.Context, candidate Chart) (Chart, error) {
	spec, err := ParseSpec(candidate.VegaLiteJSON)
	if err != nil {
		return Chart{}, err
	}

	stripped := spec.WithoutData()
	if _, err := sp.b.renderer.Render(ctx, stripped.JSON()); err != nil {
		if ctx.Err() != nil {
			return Chart{}, ctx.Err()
		}
		return Chart{}, errx.Structural(err.Error())
	}

	enhanced := EnhanceParameters(stripped, sp.req.Frame)
	png, err := sp.b.renderer.Render(ctx, enhanced.WithData(sp.req.Frame).JSON())
	if err != nil {
		if ctx.Err() != nil {
			return Chart{}, ctx.Err()
		}
		return Chart{}, errx.Structural(err.Error())
	}
	return Chart{VegaLiteJSON: enhanced.JSON(), PNG: png}, nil
}

func (sp *structuralPipeline) Fix(ctx context.Context, candidate Chart, detail string) (Chart, error) {
	b := sp.b
	if sp.fix == nil {
		sp.fix = sp.draft.Fork(b.cfg.FixModel,
			oracle.StructuredConfig(chartInstruction, chartSchema(), 0.1, 256, 32768))
	}

	text, err := sp.fix.SendText(ctx, structuralFixPrompt(detail))
	if err != nil {
		return Chart{}, err
	}
	reply, err := oracle.Decode[vegaReply](text)
	if err != nil {
		return Chart{}, err
	}
	return Chart{VegaLiteJSON: reply.VegaLiteJSON}, nil
}

func chartSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"vega_lite_json": {Type: genai.TypeString},
		},
		Required: []string{"vega_lite_json"},
	}
}

var (
	_ loop.Pipeline[Chart] = (*judgePipeline)(nil)
	_ loop.Pipeline[Chart] = (*structuralPipeline)(nil)
)
