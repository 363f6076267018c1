// Package agent composes the end-to-end analysis pipeline: generate a
// validated query for the question, execute it, build a judged chart from
// the result, and publish the artifacts.
package agent

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/crmlens/engine/internal/agent/model"
	"github.com/crmlens/engine/internal/artifact"
	"github.com/crmlens/engine/internal/chart"
	"github.com/crmlens/engine/internal/engineer"
	"github.com/crmlens/engine/internal/loop"
	"github.com/crmlens/engine/internal/warehouse"
	logx "github.com/crmlens/engine/pkg/logger"
)

// Node keys of the analysis graph.
const (
	NodeQueryEngineer = "query_engineer"
	NodeExecuteQuery  = "execute_query"
	NodeChartBuilder  = "chart_builder"
	NodePublisher     = "publisher"
)

// Analyst is a thin wrapper to execute the compiled graph with the public
// AnalysisInput.
type Analyst interface {
	Analyze(ctx context.Context, in model.AnalysisInput) (string, error)
}

// AuditTrail reads back the attempt trail a correction loop persisted.
type AuditTrail interface {
	LoadAttempts(ctx context.Context, loopID string) ([]loop.Attempt, error)
}

// GraphConfig holds everything needed to compose the analysis graph.
type GraphConfig struct {
	Engineer         *engineer.Engineer
	Builder          *chart.Builder
	Engine           warehouse.Engine
	Store            *artifact.Store
	ConversationRepo model.ConversationRepository
	Conversation     model.ConversationConfig
	Trail            AuditTrail
}

type graphRunner struct {
	runnable compose.Runnable[model.AnalysisInput, *schema.Message]
	repo     model.ConversationRepository
	messages *MessagesManager
}

func (r *graphRunner) Analyze(ctx context.Context, in model.AnalysisInput) (string, error) {
	if r.repo != nil && in.ConversationID != "" {
		if in.Reset {
			if err := r.repo.ClearHistory(ctx, in.ConversationID); err != nil {
				return "", err
			}
		}
		history, err := r.messages.BuildContext(ctx, in.ConversationID)
		if err != nil {
			logx.Warn().Err(err).Msg("failed to load conversation context")
		} else {
			in.History = history
		}
	}

	out, err := r.runnable.Invoke(ctx, in)
	if err != nil {
		return "", err
	}
	if out == nil {
		return "", nil
	}

	if r.repo != nil && in.ConversationID != "" {
		if err := r.repo.AddMessage(ctx, in.ConversationID, schema.UserMessage(in.Question)); err != nil {
			logx.Warn().Err(err).Msg("failed to persist user turn")
		}
		if err := r.repo.AddMessage(ctx, in.ConversationID, out); err != nil {
			logx.Warn().Err(err).Msg("failed to persist assistant turn")
		}
	}
	return out.Content, nil
}

// BuildAnalysisGraph constructs and compiles the analysis graph.
func BuildAnalysisGraph(ctx context.Context, cfg GraphConfig) (Analyst, error) {
	if cfg.Engineer == nil || cfg.Builder == nil || cfg.Engine == nil || cfg.Store == nil {
		return nil, fmt.Errorf("analysis graph config is incomplete")
	}

	b := &graphBuilder{cfg: cfg}
	g := compose.NewGraph[model.AnalysisInput, *schema.Message](
		compose.WithGenLocalState(func(ctx context.Context) *model.AppState {
			return &model.AppState{}
		}),
	)

	_ = g.AddLambdaNode(NodeQueryEngineer, compose.InvokableLambda(b.runEngineer))
	_ = g.AddLambdaNode(NodeExecuteQuery, compose.InvokableLambda(b.runExecute))
	_ = g.AddLambdaNode(NodeChartBuilder, compose.InvokableLambda(b.runChart))
	_ = g.AddLambdaNode(NodePublisher, compose.InvokableLambda(b.runPublish))

	edges := [][2]string{
		{compose.START, NodeQueryEngineer},
		{NodeQueryEngineer, NodeExecuteQuery},
		{NodeExecuteQuery, NodeChartBuilder},
		{NodeChartBuilder, NodePublisher},
		{NodePublisher, compose.END},
	}
	for _, edge := range edges {
		if err := g.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add edge %s -> %s: %w", edge[0], edge[1], err)
		}
	}

	runnable, err := g.Compile(ctx, compose.WithMaxRunSteps(10))
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling analysis graph")
		return nil, fmt.Errorf("error compiling analysis graph: %w", err)
	}

	logx.Debug().Msg("Analysis graph built successfully")
	return &graphRunner{
		runnable: runnable,
		repo:     cfg.ConversationRepo,
		messages: NewMessagesManager(cfg.ConversationRepo, cfg.Conversation),
	}, nil
}

type graphBuilder struct {
	cfg GraphConfig
}

// reportExhaustedTrail reads the persisted attempt trail of an exhausted loop
// and logs every rejection, so failures stay diagnosable without debug
// logging enabled.
func (b *graphBuilder) reportExhaustedTrail(ctx context.Context, loopID string) {
	if b.cfg.Trail == nil || loopID == "" {
		return
	}
	attempts, err := b.cfg.Trail.LoadAttempts(ctx, loopID)
	if err != nil {
		logx.Warn().Err(err).Str("loop", loopID).Msg("failed to load attempt trail")
		return
	}
	for _, a := range attempts {
		logx.Warn().
			Str("loop", loopID).
			Int("attempt", a.Seq).
			Str("kind", string(a.Kind)).
			Str("detail", a.Detail).
			Msg("rejected attempt")
	}
}

func (b *graphBuilder) runEngineer(ctx context.Context, in model.AnalysisInput) (engineer.SQLResult, error) {
	err := compose.ProcessState(ctx, func(ctx context.Context, s *model.AppState) error {
		s.Input = in
		s.InvocationID = uuid.NewString()
		return nil
	})
	if err != nil {
		return engineer.SQLResult{}, err
	}

	request := in.Question
	if in.History != "" {
		request = in.History + "\n\n" + in.Question
	}

	res, err := b.cfg.Engineer.Generate(ctx, request)
	if err != nil {
		return engineer.SQLResult{}, err
	}
	if !res.Accepted() {
		b.reportExhaustedTrail(ctx, res.LoopID)
		return engineer.SQLResult{}, res.ExhaustionError()
	}

	err = compose.ProcessState(ctx, func(ctx context.Context, s *model.AppState) error {
		s.SQLCode = res.Artifact.SQLCode
		return nil
	})
	return res.Artifact, err
}

func (b *graphBuilder) runExecute(ctx context.Context, sql engineer.SQLResult) (*warehouse.Frame, error) {
	frame, err := b.cfg.Engine.Query(ctx, sql.SQLCode)
	if err != nil {
		return nil, fmt.Errorf("execute accepted query: %s", warehouse.Diagnostic(err))
	}
	logx.Debug().Int("rows", frame.Len()).Msg("query executed")

	err = compose.ProcessState(ctx, func(ctx context.Context, s *model.AppState) error {
		s.Frame = frame
		return nil
	})
	return frame, err
}

func (b *graphBuilder) runChart(ctx context.Context, frame *warehouse.Frame) (chart.Chart, error) {
	var in model.AnalysisInput
	var sqlCode string
	err := compose.ProcessState(ctx, func(ctx context.Context, s *model.AppState) error {
		in = s.Input
		sqlCode = s.SQLCode
		return nil
	})
	if err != nil {
		return chart.Chart{}, err
	}

	res, err := b.cfg.Builder.Generate(ctx, chart.Request{
		Question:         in.Question,
		SpecificQuestion: in.Question,
		SQLCode:          sqlCode,
		Notes:            in.Notes,
		Frame:            frame,
	})
	if err != nil {
		return chart.Chart{}, err
	}
	if !res.Accepted() {
		b.reportExhaustedTrail(ctx, res.LoopID)
		return chart.Chart{}, res.ExhaustionError()
	}

	err = compose.ProcessState(ctx, func(ctx context.Context, s *model.AppState) error {
		c := res.Artifact
		s.Chart = &c
		return nil
	})
	return res.Artifact, err
}

func (b *graphBuilder) runPublish(ctx context.Context, c chart.Chart) (*schema.Message, error) {
	var s model.AppState
	err := compose.ProcessState(ctx, func(ctx context.Context, st *model.AppState) error {
		s = *st
		return nil
	})
	if err != nil {
		return nil, err
	}

	queryFile, err := b.cfg.Store.SaveQuery(engineer.SQLResult{SQLCode: s.SQLCode}.Markdown())
	if err != nil {
		return nil, err
	}
	if _, err := b.cfg.Store.SaveChart(s.InvocationID, c.VegaLiteJSON); err != nil {
		return nil, err
	}
	imageFile, err := b.cfg.Store.SaveImage(s.InvocationID, c.PNG)
	if err != nil {
		return nil, err
	}

	fullCSV, err := s.Frame.CSV(0)
	if err != nil {
		return nil, fmt.Errorf("render result csv: %w", err)
	}
	if _, err := b.cfg.Store.SaveData(s.InvocationID, fullCSV); err != nil {
		return nil, err
	}

	maxRows := b.cfg.Conversation.MaxDisplayRows
	headCSV, err := s.Frame.CSV(maxRows)
	if err != nil {
		return nil, fmt.Errorf("render result preview: %w", err)
	}
	csvHeader := "**DATA**:"
	if s.Frame.Len() > maxRows {
		csvHeader = fmt.Sprintf("**FIRST %d OF %d ROWS OF DATA**:", maxRows, s.Frame.Len())
	}

	text := fmt.Sprintf("chart_image_id: `%s`\nquery_id: `%s`\n\n%s\n\n```csv\n%s```\n",
		imageFile, queryFile, csvHeader, headCSV)
	logx.Debug().Str("invocation", s.InvocationID).Msg("analysis published")
	return schema.AssistantMessage(text, nil), nil
}
