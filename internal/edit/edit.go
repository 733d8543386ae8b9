// Package edit applies sparse range-replace operations to a full
// document text. Operations arrive from editor clients whose view of the
// document may be ahead of or behind the authoritative copy, so every
// coordinate is clamped into range rather than rejected: a stale
// operation degrades to a best-effort edit instead of corrupting the
// room or being dropped.
package edit

import "strings"

// Operation replaces the content spanning (StartLine, StartColumn)
// inclusive to (EndLine, EndColumn) exclusive with Text. Lines and
// columns are 1-based, matching editor coordinates.
type Operation struct {
	Text        string `json:"text"`
	StartLine   int    `json:"startLine"`
	StartColumn int    `json:"startColumn"`
	EndLine     int    `json:"endLine"`
	EndColumn   int    `json:"endColumn"`
}

// Apply splices op into current and returns the new document text.
// It is total: any combination of coordinates, including inverted or
// out-of-range ones, produces a defined result. There is no conflict
// detection; whichever operation arrives second re-splices against
// whatever the first produced.
func Apply(current string, op Operation) string {
	lines := strings.Split(current, "\n")

	// A client can reference lines the server has not materialized yet.
	for len(lines) < op.StartLine {
		lines = append(lines, "")
	}

	start := op.StartLine - 1
	if start < 0 {
		start = 0
	}

	// Empty text from column 1 to column 1 across lines means the lines
	// themselves are being deleted; no splicing needed.
	if op.Text == "" && op.StartLine < op.EndLine && op.StartColumn == 1 && op.EndColumn == 1 {
		cut := op.EndLine - 1
		if cut > len(lines) {
			cut = len(lines)
		}
		if cut > start {
			lines = append(lines[:start], lines[cut:]...)
		}
		return strings.Join(lines, "\n")
	}

	if op.StartLine == op.EndLine {
		applySingleLine(lines, start, op)
		return strings.Join(lines, "\n")
	}

	return strings.Join(applyMultiLine(lines, start, op), "\n")
}

func applySingleLine(lines []string, idx int, op Operation) {
	line := []rune(lines[idx])
	from := clamp(op.StartColumn-1, 0, len(line))
	to := clamp(op.EndColumn-1, 0, len(line))

	switch {
	case from == to && op.Text == "":
		// Nothing removed, nothing inserted.
	case from == 0 && to == len(line):
		lines[idx] = op.Text
	default:
		lines[idx] = string(line[:from]) + op.Text + string(line[to:])
	}
}

func applyMultiLine(lines []string, start int, op Operation) []string {
	end := clamp(op.EndLine-1, start, len(lines)-1)
	removed := end - start + 1

	startLine := []rune(lines[start])
	endLine := []rune(lines[end])
	prefix := string(startLine[:clamp(op.StartColumn-1, 0, len(startLine))])
	suffix := string(endLine[clamp(op.EndColumn-1, 0, len(endLine)):])

	textLines := strings.Split(op.Text, "\n")

	// Replacement spanning exactly one newline overwrites the first two
	// removed lines in place; any further removed lines are redundant.
	if len(textLines) == 2 && removed >= 2 {
		lines[start] = prefix + textLines[0]
		lines[start+1] = textLines[1] + suffix
		if removed > 2 {
			lines = append(lines[:start+2], lines[start+removed:]...)
		}
		return lines
	}

	var block []string
	if len(textLines) == 1 {
		// Single-line replacement collapses the whole span to one line.
		block = []string{prefix + op.Text + suffix}
	} else {
		block = make([]string, 0, len(textLines))
		block = append(block, prefix+textLines[0])
		block = append(block, textLines[1:len(textLines)-1]...)
		block = append(block, textLines[len(textLines)-1]+suffix)
	}

	out := make([]string, 0, len(lines)-removed+len(block))
	out = append(out, lines[:start]...)
	out = append(out, block...)
	out = append(out, lines[start+removed:]...)
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
