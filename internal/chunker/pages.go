package chunker

import (
	"regexp"
	"strconv"
)

// pageMarker matches the page markers text extractors emit:
// "[Page 3]", "--- Page 3 ---" and "Page 3:".
var pageMarker = regexp.MustCompile(`\[Page\s+(\d+)\]|--- Page (\d+) ---|Page (\d+):`)

type pageMark struct {
	offset int
	page   int
}

// findPages returns page markers in offset order.
func findPages(text string) []pageMark {
	var marks []pageMark
	for _, m := range pageMarker.FindAllStringSubmatchIndex(text, -1) {
		for g := 1; g <= 3; g++ {
			lo, hi := m[2*g], m[2*g+1]
			if lo < 0 {
				continue
			}
			if n, err := strconv.Atoi(text[lo:hi]); err == nil {
				marks = append(marks, pageMark{offset: m[0], page: n})
			}
			break
		}
	}
	return marks
}

// pageFor returns the page a span [start, end) belongs to: the last marker
// at or before start, else the first marker inside the span, else 0.
func pageFor(marks []pageMark, start, end int) int {
	page := 0
	for _, m := range marks {
		if m.offset > start {
			if page == 0 && m.offset < end {
				return m.page
			}
			break
		}
		page = m.page
	}
	return page
}
