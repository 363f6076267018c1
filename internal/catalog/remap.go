package catalog

import "strings"

// Direction selects which naming domain a remap rewrites into.
type Direction int

const (
	// LogicalToPhysical rewrites business-facing entity names into warehouse
	// table names.
	LogicalToPhysical Direction = iota
	// PhysicalToLogical is the inverse rewrite.
	PhysicalToLogical
)

// RemapSQL deterministically rewrites entity identifiers between the logical
// and physical naming domains. Only whole, delimited identifier tokens are
// rewritten; the scanner tracks string literals and comments so their content
// is never touched. Backtick-quoted identifiers are remapped per dotted
// segment, which covers fully qualified `project.dataset.table` names.
//
// Because the catalog guarantees a bijection between logical and physical
// names, logical-to-physical followed by physical-to-logical restores every
// identifier token.
func (c *Catalog) RemapSQL(sqlText string, dir Direction) string {
	mapping := c.mappingFor(dir)
	if len(mapping) == 0 {
		return sqlText
	}

	var out strings.Builder
	out.Grow(len(sqlText))

	i := 0
	n := len(sqlText)
	for i < n {
		ch := sqlText[i]
		switch {
		case ch == '\'' || ch == '"':
			i = copyQuoted(&out, sqlText, i, ch)
		case ch == '`':
			i = remapBackticked(&out, sqlText, i, mapping)
		case ch == '-' && i+1 < n && sqlText[i+1] == '-':
			i = copyLineComment(&out, sqlText, i)
		case ch == '/' && i+1 < n && sqlText[i+1] == '*':
			i = copyBlockComment(&out, sqlText, i)
		case isIdentStart(ch):
			i = remapBareIdent(&out, sqlText, i, mapping)
		default:
			out.WriteByte(ch)
			i++
		}
	}
	return out.String()
}

func (c *Catalog) mappingFor(dir Direction) map[string]string {
	m := make(map[string]string, len(c.entities))
	if dir == LogicalToPhysical {
		for logical, ent := range c.entities {
			m[logical] = ent.TableName
		}
		return m
	}
	for physical, logical := range c.logicalByPhysical {
		m[physical] = logical
	}
	return m
}

// copyQuoted copies a quoted literal verbatim, honoring doubled-quote and
// backslash escapes.
func copyQuoted(out *strings.Builder, s string, start int, quote byte) int {
	i := start
	out.WriteByte(s[i])
	i++
	for i < len(s) {
		out.WriteByte(s[i])
		switch {
		case s[i] == '\\' && i+1 < len(s):
			out.WriteByte(s[i+1])
			i += 2
		case s[i] == quote:
			if i+1 < len(s) && s[i+1] == quote {
				out.WriteByte(s[i+1])
				i += 2
				continue
			}
			return i + 1
		default:
			i++
		}
	}
	return i
}

func copyLineComment(out *strings.Builder, s string, start int) int {
	i := start
	for i < len(s) && s[i] != '\n' {
		out.WriteByte(s[i])
		i++
	}
	return i
}

func copyBlockComment(out *strings.Builder, s string, start int) int {
	i := start
	for i < len(s) {
		out.WriteByte(s[i])
		// the closing star must not be the opener's own star
		if s[i] == '/' && i >= start+3 && s[i-1] == '*' {
			return i + 1
		}
		i++
	}
	return i
}

// remapBackticked rewrites each dotted segment of a backtick-quoted
// identifier that matches the mapping exactly.
func remapBackticked(out *strings.Builder, s string, start int, mapping map[string]string) int {
	end := strings.IndexByte(s[start+1:], '`')
	if end < 0 {
		out.WriteString(s[start:])
		return len(s)
	}
	inner := s[start+1 : start+1+end]

	segments := strings.Split(inner, ".")
	for k, seg := range segments {
		if repl, ok := mapping[seg]; ok {
			segments[k] = repl
		}
	}
	out.WriteByte('`')
	out.WriteString(strings.Join(segments, "."))
	out.WriteByte('`')
	return start + end + 2
}

func remapBareIdent(out *strings.Builder, s string, start int, mapping map[string]string) int {
	i := start
	for i < len(s) && isIdentPart(s[i]) {
		i++
	}
	token := s[start:i]
	if repl, ok := mapping[token]; ok {
		out.WriteString(repl)
	} else {
		out.WriteString(token)
	}
	return i
}

func isIdentStart(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || (ch >= '0' && ch <= '9')
}
