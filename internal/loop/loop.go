// Package loop implements the bounded self-correcting generation loop shared
// by the query and chart pipelines: draft an artifact, validate it against an
// authoritative checker, and feed failures back into the generative thread
// until the artifact is accepted or the attempt budget runs out.
package loop

import (
	"context"
	"fmt"
	"time"

	errx "github.com/crmlens/engine/internal/core/error"
	logx "github.com/crmlens/engine/pkg/logger"
)

// State names a position in the loop's state machine. Terminal states are
// StateAccepted and StateExhausted.
type State string

const (
	StateDrafting   State = "drafting"
	StateValidating State = "validating"
	StateCorrecting State = "correcting"
	StateAccepted   State = "accepted"
	StateExhausted  State = "exhausted"
)

// Pipeline supplies the three capabilities a loop drives. Draft produces the
// first candidate; Validate normalizes and checks a candidate, returning a
// *errx.ValidationError on rejection; Fix obtains a repaired candidate from
// the failed one and the literal failure detail.
//
// A Pipeline instance is owned by a single Run call and may keep per-loop
// state such as lazily forked fix sessions.
type Pipeline[A any] interface {
	Draft(ctx context.Context) (A, error)
	Validate(ctx context.Context, candidate A) (A, error)
	Fix(ctx context.Context, candidate A, detail string) (A, error)
}

// Attempt is one audit record of the loop: the candidate that was tried and
// the verdict it received.
type Attempt struct {
	Seq       int       `json:"seq"`
	Candidate any       `json:"candidate"`
	OK        bool      `json:"ok"`
	Kind      errx.Kind `json:"kind,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// AuditSink receives attempt records as they happen. Sinks must not fail the
// loop; errors are logged and dropped.
type AuditSink interface {
	RecordAttempt(ctx context.Context, loopID string, attempt Attempt) error
}

// Config bounds one loop run.
type Config struct {
	// LoopID tags audit records; empty disables audit even with a sink set.
	LoopID string
	// MaxAttempts is the attempt budget, the primary backpressure mechanism.
	MaxAttempts int
	// Deadline is an optional wall-clock safety net wrapping the whole run.
	Deadline time.Duration
	// Audit optionally persists the attempt trail.
	Audit AuditSink
}

// Result is the typed terminal outcome of a run. Exactly one of the two
// terminal states is set; an exhausted result never carries an artifact.
// LoopID identifies the run's persisted audit trail.
type Result[A any] struct {
	State      State
	LoopID     string
	Artifact   A
	LastKind   errx.Kind
	LastDetail string
	Attempts   []Attempt
}

// Accepted reports whether the loop converged on a valid artifact.
func (r *Result[A]) Accepted() bool {
	return r.State == StateAccepted
}

// ExhaustionError renders the terminal failure of an exhausted result.
func (r *Result[A]) ExhaustionError() error {
	if r.State != StateExhausted {
		return nil
	}
	return fmt.Errorf("could not produce a valid artifact in %d attempts: %s",
		len(r.Attempts), r.LastDetail)
}

// Run drives the state machine to a terminal state. Every cycle obtains a
// candidate (Draft on the first cycle, Fix afterwards) and validates it; a
// candidate that cannot even be obtained (parse failure) consumes an attempt
// without a validator call. Fatal failures and cancellation escalate
// immediately. The accepted artifact is always the normalized value returned
// by the final successful Validate call.
func Run[A any](ctx context.Context, cfg Config, p Pipeline[A]) (Result[A], error) {
	if p == nil {
		return Result[A]{}, fmt.Errorf("loop: pipeline is nil")
	}
	if cfg.MaxAttempts < 1 {
		return Result[A]{}, fmt.Errorf("loop: max attempts must be positive, got %d", cfg.MaxAttempts)
	}

	if cfg.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Deadline)
		defer cancel()
	}

	res := Result[A]{State: StateDrafting, LoopID: cfg.LoopID}
	var candidate A
	detail := ""
	lastKind := errx.KindStructural

	for seq := 1; seq <= cfg.MaxAttempts; seq++ {
		if err := ctx.Err(); err != nil {
			return exhaust(res, errx.KindFatal, "canceled: "+err.Error()), nil
		}

		var next A
		var err error
		if seq == 1 {
			res.State = StateDrafting
			next, err = p.Draft(ctx)
		} else {
			res.State = StateCorrecting
			next, err = p.Fix(ctx, candidate, detail)
		}
		if err != nil {
			kind, d := classify(ctx, err)
			res.Attempts = append(res.Attempts, record(ctx, cfg, Attempt{
				Seq: seq, OK: false, Kind: kind, Detail: d,
			}))
			if kind == errx.KindFatal {
				return exhaust(res, kind, d), nil
			}
			logx.Debug().
				Str("loop", cfg.LoopID).
				Int("attempt", seq).
				Str("kind", string(kind)).
				Msg("candidate could not be obtained")
			detail, lastKind = d, kind
			continue
		}
		candidate = next

		res.State = StateValidating
		normalized, verr := p.Validate(ctx, candidate)
		if verr == nil {
			res.Attempts = append(res.Attempts, record(ctx, cfg, Attempt{
				Seq: seq, Candidate: candidate, OK: true,
			}))
			res.State = StateAccepted
			res.Artifact = normalized
			logx.Debug().
				Str("loop", cfg.LoopID).
				Int("attempts", seq).
				Msg("artifact accepted")
			return res, nil
		}

		kind, d := classify(ctx, verr)
		res.Attempts = append(res.Attempts, record(ctx, cfg, Attempt{
			Seq: seq, Candidate: candidate, OK: false, Kind: kind, Detail: d,
		}))
		if kind == errx.KindFatal {
			return exhaust(res, kind, d), nil
		}
		logx.Debug().
			Str("loop", cfg.LoopID).
			Int("attempt", seq).
			Str("kind", string(kind)).
			Str("detail", d).
			Msg("candidate rejected")
		detail, lastKind = d, kind
	}

	return exhaust(res, lastKind, detail), nil
}

// classify maps an error to its failure kind. Cancellation and unknown
// errors are fatal: retrying cannot help a dead context or a broken backend.
func classify(ctx context.Context, err error) (errx.Kind, string) {
	if ctx.Err() != nil {
		return errx.KindFatal, "canceled: " + ctx.Err().Error()
	}
	if ve, ok := errx.AsValidation(err); ok {
		return ve.Kind, ve.Detail
	}
	return errx.KindFatal, err.Error()
}

func exhaust[A any](res Result[A], kind errx.Kind, detail string) Result[A] {
	res.State = StateExhausted
	res.LastKind = kind
	res.LastDetail = detail
	logx.Warn().
		Int("attempts", len(res.Attempts)).
		Str("kind", string(kind)).
		Str("detail", detail).
		Msg("correction loop exhausted")
	return res
}

func record(ctx context.Context, cfg Config, a Attempt) Attempt {
	a.Timestamp = time.Now().UTC()
	if cfg.Audit != nil && cfg.LoopID != "" {
		if err := cfg.Audit.RecordAttempt(ctx, cfg.LoopID, a); err != nil {
			logx.Warn().Err(err).Str("loop", cfg.LoopID).Msg("audit sink failed")
		}
	}
	return a
}
