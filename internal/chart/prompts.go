package chart

import (
	"fmt"
	"strings"
)

const chartInstruction = `You are an experienced Business Intelligence
engineer. You design clear, dashboard-ready data visualizations and express
them as Vega-Lite version 5 JSON documents.

Key requirements:
- Pick the chart type from the data shape and the question: bar, line, area,
  pie, scatter, or a plain text mark for a single-row result.
- When the result has more than 50 rows, group or aggregate before plotting.
- Map columns exactly as named in the data preview and give every encoding
  the correct Vega-Lite type (quantitative, temporal, nominal, ordinal).
- Prefer descriptive name columns over identifier columns for axes, legends
  and tooltips.
- For geographical or categorical dimensions add a selection parameter named
  "<column>__selection" with a filter transform of the form
  {"filter": "datum.<column> === <column>__selection || <column>__selection == null"}.
  One filter per dimension, select inputs only, no other transforms on those
  dimensions, and never refer to bind.options directly.
- Sort meaningfully, give the chart a descriptive title, and keep every
  label readable without overlap.
- Use "data" only, never "datasets". Minimal width is 1152, minimal height
  is 648; adjust per view when concatenating.
- Output only the JSON object described by the response schema; the
  vega_lite_json field holds the complete Vega-Lite document as a string.`

func chartPrompt(req Request) string {
	preview, _ := req.Frame.CSV(10)
	previewLen := req.Frame.Len()
	if previewLen > 10 {
		previewLen = 10
	}

	var notes string
	if req.Notes != "" {
		notes = fmt.Sprintf("\n**Important notes about the chart:**\n%s\n", req.Notes)
	}

	return fmt.Sprintf(`**Original business question:**
%s

**Specific question the data answers:**
%s

**SQL query used:**
`+"```sql\n%s\n```"+`

**Result schema:**
%s
**Result preview (first %d rows):**
`+"```csv\n%s```"+`

**Total rows in result:** %d
%s
Design a single Vega-Lite 5 chart that visualizes this data to answer the
specific question, then output its JSON.`,
		req.Question,
		req.SpecificQuestion,
		strings.TrimSpace(req.SQLCode),
		req.Frame.SchemaString(),
		previewLen,
		preview,
		req.Frame.Len(),
		notes)
}

func structuralFixPrompt(detail string) string {
	return fmt.Sprintf(`You made a mistake!
Fix the issues. Redesign the chart if it promises a better result.

ERROR: %s`, detail)
}

func feedbackPrompt(reason, chartJSON string) string {
	var chartBlock string
	if chartJSON != "" {
		chartBlock = fmt.Sprintf("\n\n**Chart:**\n```json\n%s\n```", chartJSON)
	}
	return fmt.Sprintf(`Fix the chart based on the feedback below. Output only
the corrected Vega-Lite JSON.

**Feedback on the chart:**
%s%s`, reason, chartBlock)
}

const judgeInstruction = `You are an experienced Business Intelligence UX
designer. You look at a chart or a dashboard and tell whether it is the
right one for the question.`

func judgePrompt(specJSON, question string, rowCount int) string {
	return fmt.Sprintf(`**Instructions:**

The image is a BI chart or dashboard that shows data supporting an answer to
the question below. The data source has %d rows.

Decide whether the chart is good or not good, nothing in between. If not
good, give a reason explaining what needs to be reworked.

The chart must be comfortable to read on a 16 inch 2K screen with the
ability to zoom. Judge only readability, composition, color choices and
font sizes. Never comment on the choice of dimensions, metrics, grouping or
data cardinality.

Exceptions:
- The chart may require interaction through selection parameters, and the
  default selection may leave the rendering empty. Tolerate that.
- If element density would be solved by picking a selection value, let it
  slide.

**Question:**
`+"```\n%s\n```"+`

**Chart JSON (data removed):**
`+"```json\n%s\n```", rowCount, question, specJSON)
}
