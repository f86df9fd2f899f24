package docload

import "strings"

// stripMarkdown reduces markdown to plain text: heading markers, emphasis,
// inline code, links and list bullets are removed, structure is kept as
// line breaks. Tables pass through untouched since their pipe layout is
// useful to the chunker and lexical search.
func stripMarkdown(md string) string {
	var out []string
	inCodeFence := false

	for _, line := range strings.Split(md, "\n") {
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "```") {
			inCodeFence = !inCodeFence
			continue
		}
		if inCodeFence {
			out = append(out, line)
			continue
		}

		// heading markers
		for strings.HasPrefix(trimmed, "#") {
			trimmed = strings.TrimPrefix(trimmed, "#")
		}
		trimmed = strings.TrimSpace(trimmed)

		// list bullets
		for _, bullet := range []string{"- ", "* ", "+ "} {
			if strings.HasPrefix(trimmed, bullet) {
				trimmed = strings.TrimPrefix(trimmed, bullet)
				break
			}
		}

		trimmed = stripInline(trimmed)
		out = append(out, trimmed)
	}

	return strings.Join(out, "\n")
}

// stripInline removes emphasis and code spans and rewrites links to their
// text.
func stripInline(s string) string {
	for _, marker := range []string{"**", "__", "*", "_", "`"} {
		s = strings.ReplaceAll(s, marker, "")
	}

	// [text](url) -> text
	for {
		open := strings.Index(s, "[")
		if open < 0 {
			break
		}
		mid := strings.Index(s[open:], "](")
		if mid < 0 {
			break
		}
		end := strings.Index(s[open+mid:], ")")
		if end < 0 {
			break
		}
		s = s[:open] + s[open+1:open+mid] + s[open+mid+end+1:]
	}
	return s
}
