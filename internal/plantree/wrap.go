package plantree

import "strings"

// DefaultWrapWidth is the column width used for table and condition text in
// tree renderings.
const DefaultWrapWidth = 30

// WrapText breaks s into lines no wider than width, splitting on spaces
// where possible and hard-breaking tokens longer than a full line. The
// original string is never modified; wrapping is display-only.
func WrapText(s string, width int) []string {
	if width <= 0 {
		width = DefaultWrapWidth
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	var lines []string
	var line strings.Builder
	for _, word := range strings.Fields(s) {
		for len(word) > width {
			if line.Len() > 0 {
				lines = append(lines, line.String())
				line.Reset()
			}
			lines = append(lines, word[:width])
			word = word[width:]
		}
		switch {
		case line.Len() == 0:
			line.WriteString(word)
		case line.Len()+1+len(word) <= width:
			line.WriteByte(' ')
			line.WriteString(word)
		default:
			lines = append(lines, line.String())
			line.Reset()
			line.WriteString(word)
		}
	}
	if line.Len() > 0 {
		lines = append(lines, line.String())
	}
	return lines
}

// WrapList joins items with commas and wraps the result
func WrapList(items []string, width int) []string {
	return WrapText(strings.Join(items, ", "), width)
}
