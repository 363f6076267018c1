package loop

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errx "github.com/crmlens/engine/internal/core/error"
)

// scriptedPipeline plays back canned outcomes: one entry per obtained
// candidate, nil meaning the validator accepts it.
type scriptedPipeline struct {
	verdicts  []error
	draftErr  error
	fixErrs   []error
	drafts    int
	fixes     int
	validates int
}

func (p *scriptedPipeline) Draft(ctx context.Context) (string, error) {
	p.drafts++
	if p.draftErr != nil {
		return "", p.draftErr
	}
	return "candidate-1", nil
}

func (p *scriptedPipeline) Validate(ctx context.Context, candidate string) (string, error) {
	idx := p.validates
	p.validates++
	if idx < len(p.verdicts) && p.verdicts[idx] != nil {
		return "", p.verdicts[idx]
	}
	return "normalized:" + candidate, nil
}

func (p *scriptedPipeline) Fix(ctx context.Context, candidate string, detail string) (string, error) {
	p.fixes++
	if p.fixes <= len(p.fixErrs) && p.fixErrs[p.fixes-1] != nil {
		return "", p.fixErrs[p.fixes-1]
	}
	return "candidate-fixed", nil
}

type memorySink struct {
	loopIDs  []string
	attempts []Attempt
}

func (m *memorySink) RecordAttempt(ctx context.Context, loopID string, a Attempt) error {
	m.loopIDs = append(m.loopIDs, loopID)
	m.attempts = append(m.attempts, a)
	return nil
}

func TestRunAcceptsFirstValidCandidate(t *testing.T) {
	p := &scriptedPipeline{}
	res, err := Run(context.Background(), Config{LoopID: "t", MaxAttempts: 3}, p)
	require.NoError(t, err)

	assert.True(t, res.Accepted())
	assert.Equal(t, "normalized:candidate-1", res.Artifact)
	assert.Equal(t, 1, p.drafts)
	assert.Equal(t, 0, p.fixes)
	require.Len(t, res.Attempts, 1)
	assert.True(t, res.Attempts[0].OK)
}

func TestRunSpendsExactBudgetWhenAlwaysFailing(t *testing.T) {
	p := &scriptedPipeline{verdicts: []error{
		errx.Structural("bad 1"),
		errx.Structural("bad 2"),
		errx.Structural("bad 3"),
	}}
	res, err := Run(context.Background(), Config{LoopID: "t", MaxAttempts: 3}, p)
	require.NoError(t, err)

	assert.Equal(t, StateExhausted, res.State)
	assert.Equal(t, 3, p.validates)
	assert.Equal(t, 1, p.drafts)
	assert.Equal(t, 2, p.fixes)
	assert.Equal(t, errx.KindStructural, res.LastKind)
	assert.Equal(t, "bad 3", res.LastDetail)
	require.Error(t, res.ExhaustionError())
	assert.Contains(t, res.ExhaustionError().Error(), "3 attempts")
}

func TestRunRecoversAfterRejection(t *testing.T) {
	p := &scriptedPipeline{verdicts: []error{errx.Structural("typo"), nil}}
	res, err := Run(context.Background(), Config{LoopID: "t", MaxAttempts: 5}, p)
	require.NoError(t, err)

	assert.True(t, res.Accepted())
	assert.Equal(t, "normalized:candidate-fixed", res.Artifact)
	assert.Equal(t, 1, p.fixes)
	require.Len(t, res.Attempts, 2)
	assert.False(t, res.Attempts[0].OK)
	assert.True(t, res.Attempts[1].OK)
}

func TestRunParseFailureConsumesAttemptWithoutValidation(t *testing.T) {
	p := &scriptedPipeline{
		fixErrs:  []error{errx.Parse("not json")},
		verdicts: []error{errx.Structural("first"), nil},
	}
	res, err := Run(context.Background(), Config{LoopID: "t", MaxAttempts: 5}, p)
	require.NoError(t, err)

	// attempt 1: draft + rejected, attempt 2: fix parse failure (no
	// validator call), attempt 3: fix + accepted
	assert.True(t, res.Accepted())
	assert.Equal(t, 2, p.validates)
	require.Len(t, res.Attempts, 3)
	assert.Equal(t, errx.KindParse, res.Attempts[1].Kind)
}

func TestRunFatalEscalatesImmediately(t *testing.T) {
	p := &scriptedPipeline{verdicts: []error{errx.Fatal("dataset is gone")}}
	res, err := Run(context.Background(), Config{LoopID: "t", MaxAttempts: 10}, p)
	require.NoError(t, err)

	assert.Equal(t, StateExhausted, res.State)
	assert.Equal(t, errx.KindFatal, res.LastKind)
	assert.Equal(t, 1, p.validates)
	assert.Equal(t, 0, p.fixes)
}

func TestRunFatalDraftError(t *testing.T) {
	p := &scriptedPipeline{draftErr: errx.Fatal("question is unanswerable")}
	res, err := Run(context.Background(), Config{LoopID: "t", MaxAttempts: 10}, p)
	require.NoError(t, err)

	assert.Equal(t, StateExhausted, res.State)
	assert.Equal(t, "question is unanswerable", res.LastDetail)
	assert.Equal(t, 0, p.validates)
}

func TestRunUnknownErrorIsFatal(t *testing.T) {
	p := &scriptedPipeline{draftErr: errors.New("connection reset")}
	res, err := Run(context.Background(), Config{LoopID: "t", MaxAttempts: 10}, p)
	require.NoError(t, err)

	assert.Equal(t, StateExhausted, res.State)
	assert.Equal(t, errx.KindFatal, res.LastKind)
}

func TestRunCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := &scriptedPipeline{}
	res, err := Run(ctx, Config{LoopID: "t", MaxAttempts: 3}, p)
	require.NoError(t, err)

	assert.Equal(t, StateExhausted, res.State)
	assert.Equal(t, errx.KindFatal, res.LastKind)
	assert.Contains(t, res.LastDetail, "canceled")
	assert.Equal(t, 0, p.drafts)
}

func TestRunDeadlineExpires(t *testing.T) {
	slow := &slowPipeline{delay: 50 * time.Millisecond}
	res, err := Run(context.Background(), Config{
		LoopID: "t", MaxAttempts: 100, Deadline: 10 * time.Millisecond,
	}, slow)
	require.NoError(t, err)

	assert.Equal(t, StateExhausted, res.State)
	assert.Equal(t, errx.KindFatal, res.LastKind)
}

type slowPipeline struct {
	delay time.Duration
}

func (p *slowPipeline) Draft(ctx context.Context) (string, error) {
	select {
	case <-time.After(p.delay):
	case <-ctx.Done():
	}
	return "", errx.Structural("still failing")
}

func (p *slowPipeline) Validate(ctx context.Context, candidate string) (string, error) {
	return "", errx.Structural("still failing")
}

func (p *slowPipeline) Fix(ctx context.Context, candidate string, detail string) (string, error) {
	return p.Draft(ctx)
}

func TestRunRecordsAuditTrail(t *testing.T) {
	sink := &memorySink{}
	p := &scriptedPipeline{verdicts: []error{errx.Structural("nope"), nil}}
	res, err := Run(context.Background(), Config{
		LoopID: "loop-42", MaxAttempts: 5, Audit: sink,
	}, p)
	require.NoError(t, err)
	require.True(t, res.Accepted())
	assert.Equal(t, "loop-42", res.LoopID)

	require.Len(t, sink.attempts, 2)
	assert.Equal(t, []string{"loop-42", "loop-42"}, sink.loopIDs)
	assert.Equal(t, 1, sink.attempts[0].Seq)
	assert.Equal(t, 2, sink.attempts[1].Seq)
	assert.False(t, sink.attempts[0].Timestamp.IsZero())
}

func TestRunRejectsBadConfig(t *testing.T) {
	_, err := Run(context.Background(), Config{MaxAttempts: 0}, &scriptedPipeline{})
	require.Error(t, err)

	_, err = Run[string](context.Background(), Config{MaxAttempts: 1}, nil)
	require.Error(t, err)
}
