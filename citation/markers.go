package citation

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Citation ties a span of generated text to the sources grounding it.
// Offsets are byte offsets into the text, as returned by grounding metadata.
type Citation struct {
	StartIndex int
	EndIndex   int
	Segments   []Source
}

// Marker renders the inline marker for a source.
func Marker(s Source) string {
	return fmt.Sprintf("[%s](%s)", s.Label, s.ShortURL)
}

// InsertAtOffsets inserts markers at the end offset of every citation.
// Citations are applied from the end of the text backwards so earlier offsets stay valid.
func InsertAtOffsets(text string, citations []Citation) string {
	sorted := make([]Citation, len(citations))
	copy(sorted, citations)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].EndIndex != sorted[j].EndIndex {
			return sorted[i].EndIndex > sorted[j].EndIndex
		}
		return sorted[i].StartIndex > sorted[j].StartIndex
	})

	out := text
	for _, c := range sorted {
		if len(c.Segments) == 0 {
			continue
		}
		end := clampToRuneBoundary(out, c.EndIndex)
		var marker strings.Builder
		for _, s := range c.Segments {
			marker.WriteString(" ")
			marker.WriteString(Marker(s))
		}
		out = out[:end] + marker.String() + out[end:]
	}
	return out
}

func clampToRuneBoundary(s string, i int) int {
	if i < 0 {
		return 0
	}
	if i >= len(s) {
		return len(s)
	}
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return i
}

var numericMarker = regexp.MustCompile(`\[(\d+(?:\s*,\s*\d+)*)\]`)

// InsertHeuristic replaces numbered markers like [0] or [1, 2] that refer to positions in
// sources with inline source markers. When the text carries no usable numbers, sources are
// attached after the first sentence that mentions their label or host. It reports how many
// markers were placed.
func InsertHeuristic(text string, sources []Source) (string, int) {
	if len(sources) == 0 || text == "" {
		return text, 0
	}

	placed := 0
	var b strings.Builder
	last := 0
	for _, loc := range numericMarker.FindAllStringSubmatchIndex(text, -1) {
		start, end := loc[0], loc[1]
		// [1](...) is already a link.
		if end < len(text) && text[end] == '(' {
			continue
		}
		var markers []string
		for _, part := range strings.Split(text[loc[2]:loc[3]], ",") {
			n, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil || n < 0 || n >= len(sources) {
				markers = nil
				break
			}
			markers = append(markers, Marker(sources[n]))
		}
		if len(markers) == 0 {
			continue
		}
		b.WriteString(text[last:start])
		b.WriteString(strings.Join(markers, " "))
		last = end
		placed += len(markers)
	}
	if placed > 0 {
		b.WriteString(text[last:])
		return b.String(), placed
	}

	return insertByMention(text, sources)
}

func insertByMention(text string, sources []Source) (string, int) {
	lower := strings.ToLower(text)
	type insertion struct {
		at     int
		marker string
	}
	var inserts []insertion
	for _, s := range sources {
		idx := -1
		for _, needle := range mentionNeedles(s) {
			if i := strings.Index(lower, needle); i >= 0 {
				idx = i
				break
			}
		}
		if idx < 0 {
			continue
		}
		inserts = append(inserts, insertion{at: sentenceEnd(text, idx), marker: " " + Marker(s)})
	}
	if len(inserts) == 0 {
		return text, 0
	}
	sort.SliceStable(inserts, func(i, j int) bool { return inserts[i].at > inserts[j].at })
	out := text
	for _, ins := range inserts {
		out = out[:ins.at] + ins.marker + out[ins.at:]
	}
	return out, len(inserts)
}

func mentionNeedles(s Source) []string {
	var needles []string
	if l := strings.ToLower(strings.TrimSpace(s.Label)); len(l) >= 4 {
		needles = append(needles, l)
	}
	if u, err := url.Parse(s.URL); err == nil && u.Host != "" {
		needles = append(needles, strings.ToLower(strings.TrimPrefix(u.Host, "www.")))
	}
	return needles
}

// sentenceEnd returns the byte offset just after the punctuation ending the sentence at i,
// or the end of the line/text.
func sentenceEnd(text string, i int) int {
	for j := i; j < len(text); j++ {
		switch text[j] {
		case '.', '!', '?':
			if j+1 == len(text) || text[j+1] == ' ' || text[j+1] == '\n' {
				return j + 1
			}
		case '\n':
			return j
		}
	}
	return len(text)
}
