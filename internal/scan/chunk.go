package scan

import (
	"strings"

	"syllabuscal/internal/source"
)

// Chunk splits plain text (rendered innerText, .txt files) into blocks of
// at most maxLen characters: paragraphs first, then lines of oversized
// paragraphs regrouped greedily. A single line longer than maxLen is kept
// whole and left for the guard to reject.
func Chunk(text string, maxLen int) []string {
	if maxLen <= 0 {
		maxLen = source.DefaultMaxTextLen
	}
	text = source.Normalize(text)

	out := make([]string, 0)
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if len([]rune(para)) <= maxLen {
			out = append(out, para)
			continue
		}

		var (
			cur  strings.Builder
			size int
		)
		for _, line := range strings.Split(para, "\n") {
			n := len([]rune(line))
			if size > 0 && size+1+n > maxLen {
				out = append(out, cur.String())
				cur.Reset()
				size = 0
			}
			if size > 0 {
				cur.WriteByte('\n')
				size++
			}
			cur.WriteString(line)
			size += n
		}
		if size > 0 {
			out = append(out, cur.String())
		}
	}
	return out
}
