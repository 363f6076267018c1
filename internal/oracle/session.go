package oracle

import (
	"context"
	"strings"

	"google.golang.org/genai"

	errx "github.com/crmlens/engine/internal/core/error"
)

// Session is a stateful conversation with the generative backend. A session
// is owned by exactly one correction loop; concurrent use is not supported.
// Forking yields an independent session whose history is a snapshot copy, so
// a repair thread can continue from a checkpoint without mutating the
// original thread.
type Session struct {
	gen     Generator
	model   string
	cfg     *genai.GenerateContentConfig
	history []*genai.Content
}

func NewSession(gen Generator, model string, cfg *genai.GenerateContentConfig) *Session {
	return &Session{gen: gen, model: model, cfg: cfg}
}

// Send appends a user turn, calls the backend with the full accumulated
// history, appends the model turn, and returns the reply text. An empty
// reply is a parse failure: the structured-output contract promised a JSON
// body.
func (s *Session) Send(ctx context.Context, parts ...*genai.Part) (string, error) {
	userTurn := &genai.Content{Role: genai.RoleUser, Parts: parts}

	contents := make([]*genai.Content, 0, len(s.history)+1)
	contents = append(contents, s.history...)
	contents = append(contents, userTurn)

	resp, err := s.gen.GenerateContent(ctx, s.model, contents, s.cfg)
	if err != nil {
		return "", err
	}

	reply := replyContent(resp)
	if reply == nil {
		return "", errx.Parse("model returned no candidates")
	}

	s.history = append(s.history, userTurn, reply)
	return contentText(reply), nil
}

// SendText is Send for a single text part.
func (s *Session) SendText(ctx context.Context, text string) (string, error) {
	return s.Send(ctx, genai.NewPartFromText(text))
}

// Fork snapshots the conversation into a new session that may use a
// different model and generation config. The histories never share backing
// storage, so the two threads cannot interleave.
func (s *Session) Fork(model string, cfg *genai.GenerateContentConfig) *Session {
	history := make([]*genai.Content, len(s.history))
	copy(history, s.history)
	return &Session{gen: s.gen, model: model, cfg: cfg, history: history}
}

// History returns a copy of the accumulated turns.
func (s *Session) History() []*genai.Content {
	out := make([]*genai.Content, len(s.history))
	copy(out, s.history)
	return out
}

// Turns returns the number of accumulated turns.
func (s *Session) Turns() int {
	return len(s.history)
}

func replyContent(resp *genai.GenerateContentResponse) *genai.Content {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil
	}
	content := resp.Candidates[0].Content
	if content == nil || len(content.Parts) == 0 {
		return nil
	}
	return content
}

func contentText(content *genai.Content) string {
	var sb strings.Builder
	for _, p := range content.Parts {
		if p != nil {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}
