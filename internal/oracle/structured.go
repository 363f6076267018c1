package oracle

import (
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	errx "github.com/crmlens/engine/internal/core/error"
)

// DecodeResponse extracts the reply text of a one-shot generation and parses
// it into T.
func DecodeResponse[T any](resp *genai.GenerateContentResponse) (T, error) {
	reply := replyContent(resp)
	if reply == nil {
		var v T
		return v, errx.Parse("model returned no candidates")
	}
	return Decode[T](contentText(reply))
}

// Decode parses a structured model reply into T. Markdown code fences are
// tolerated even though the output contract forbids them; anything else that
// fails to decode is a parse failure carrying the decoder diagnostic.
func Decode[T any](text string) (T, error) {
	var v T
	cleaned := stripFences(strings.TrimSpace(text))
	if cleaned == "" {
		return v, errx.Parse("model reply is empty")
	}
	if err := json.Unmarshal([]byte(cleaned), &v); err != nil {
		return v, errx.Parse(fmt.Sprintf("model reply is not valid %T JSON: %v", v, err))
	}
	return v, nil
}

func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
