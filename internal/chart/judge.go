package chart

import (
	"context"

	"google.golang.org/genai"

	"github.com/crmlens/engine/internal/oracle"
	logx "github.com/crmlens/engine/pkg/logger"
)

// Judgment is the structured verdict of the quality judge.
type Judgment struct {
	IsGood bool   `json:"is_good"`
	Reason string `json:"reason"`
}

// Judge decides whether a rendered chart is good enough to ship. Tests
// substitute fakes.
type Judge interface {
	Evaluate(ctx context.Context, png []byte, specJSON, question string, rowCount int) (Judgment, error)
}

// OracleJudge asks a vision model to grade the rendered image against a
// fixed readability rubric. Each Evaluate call is a single stateless turn.
type OracleJudge struct {
	gen   oracle.Generator
	model string
}

func NewOracleJudge(gen oracle.Generator, model string) *OracleJudge {
	return &OracleJudge{gen: gen, model: model}
}

func (j *OracleJudge) Evaluate(ctx context.Context, png []byte, specJSON, question string, rowCount int) (Judgment, error) {
	cfg := oracle.StructuredConfig(judgeInstruction, judgmentSchema(), 0, 0, 0)

	contents := []*genai.Content{{
		Role: genai.RoleUser,
		Parts: []*genai.Part{
			genai.NewPartFromBytes(png, "image/png"),
			genai.NewPartFromText(judgePrompt(specJSON, question, rowCount)),
		},
	}}
	resp, err := j.gen.GenerateContent(ctx, j.model, contents, cfg)
	if err != nil {
		return Judgment{}, err
	}

	verdict, err := oracle.DecodeResponse[Judgment](resp)
	if err != nil {
		return Judgment{}, err
	}
	logx.Debug().Bool("is_good", verdict.IsGood).Str("reason", verdict.Reason).
		Msg("chart judged")
	return verdict, nil
}

func judgmentSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"is_good": {Type: genai.TypeBoolean},
			"reason":  {Type: genai.TypeString},
		},
		Required: []string{"is_good", "reason"},
	}
}

var _ Judge = (*OracleJudge)(nil)
