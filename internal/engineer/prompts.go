package engineer

import (
	"fmt"

	"github.com/crmlens/engine/internal/catalog"
)

const draftInstruction = `You are a senior data engineer with deep CRM
experience. You write clean, efficient SQL in the BigQuery dialect.
Given a business question, decide whether it can be answered with the
available data and produce a single SQL query for it.

Rules:
- Reference tables only by their fully qualified name in backticks.
- Use only tables and columns present in the schema metadata.
- Honor the important notes and rules attached to each table.
- If the question cannot be answered with this data, leave sql_code empty
  and explain why in the error field.
- Output only the JSON object described by the response schema.`

func draftPrompt(request string, cat *catalog.Catalog) string {
	return fmt.Sprintf(`**Request:**
%s

Tables live in the dataset %s.%s. Reference them as
`+"`%s.%s.<table>`"+` using the entity names from the metadata below.

**Schema metadata (JSON):**
%s`,
		request,
		cat.Project(), cat.Dataset(),
		cat.Project(), cat.Dataset(),
		cat.JSON())
}

func correctionInstruction(cat *catalog.Catalog) string {
	return fmt.Sprintf(`You fix broken BigQuery SQL. You receive a query and
the exact compiler diagnostic it produced. Repair the query with the
smallest change that resolves the diagnostic; do not re-explain context.
Tables live in %s.%s.

**Schema metadata (JSON):**
%s`,
		cat.Project(), cat.Dataset(), cat.JSON())
}

func correctionPrompt(sqlCode, detail string) string {
	return fmt.Sprintf(`This query failed validation.

**Query:**
%s

**Validator diagnostic:**
%s

Return the corrected query.`, sqlCode, detail)
}
