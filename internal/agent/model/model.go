package model

import (
	"github.com/crmlens/engine/internal/chart"
	"github.com/crmlens/engine/internal/warehouse"
)

// AnalysisInput is the public input of the analysis graph.
type AnalysisInput struct {
	ConversationID string `json:"conversation_id"`
	Question       string `json:"question"`
	// Notes carries chart directions the user stated explicitly; usually empty.
	Notes string `json:"notes,omitempty"`
	// Reset discards the stored conversation before this question runs.
	Reset bool `json:"reset,omitempty"`
	// History is the rendered context of earlier turns, filled in from the
	// conversation repository before the graph runs.
	History string `json:"-"`
}

// AppState stores per-invocation state for the Eino graph.
// Concurrency model:
//   - This struct is registered as Graph Local State via compose.WithGenLocalState.
//   - All reads/writes happen only inside compose.ProcessState handlers, which
//     Eino serializes, so no mutex is required.
type AppState struct {
	Input        AnalysisInput
	InvocationID string
	SQLCode      string // physical form accepted by the query loop
	Frame        *warehouse.Frame
	Chart        *chart.Chart
}

// ConversationConfig tunes history persistence and result display.
type ConversationConfig struct {
	TTL             string `envconfig:"CONVERSATION_TTL" default:"24h"`
	MaxDisplayRows  int    `envconfig:"MAX_DISPLAY_ROWS" default:"50"`
	MaxContextTurns int    `envconfig:"MAX_CONTEXT_TURNS" default:"10"`
}
