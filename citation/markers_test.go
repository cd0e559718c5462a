package citation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInsertAtOffsets(t *testing.T) {
	a := Source{Label: "a", ShortURL: "s/0"}
	b := Source{Label: "b", ShortURL: "s/1"}
	text := "First fact. Second fact."

	got := InsertAtOffsets(text, []Citation{
		{StartIndex: 0, EndIndex: 11, Segments: []Source{a}},
		{StartIndex: 12, EndIndex: 24, Segments: []Source{a, b}},
	})
	assert.Equal(t, "First fact. [a](s/0) Second fact. [a](s/0) [b](s/1)", got)
}

func TestInsertAtOffsetsClampsAndSkipsEmpty(t *testing.T) {
	a := Source{Label: "a", ShortURL: "s/0"}
	got := InsertAtOffsets("short", []Citation{
		{StartIndex: 0, EndIndex: 99, Segments: []Source{a}},
		{StartIndex: 0, EndIndex: 2},
	})
	assert.Equal(t, "short [a](s/0)", got)
}

func TestInsertAtOffsetsRespectsRuneBoundaries(t *testing.T) {
	a := Source{Label: "a", ShortURL: "s/0"}
	// "시장" is 6 bytes; offset 4 lands inside the second rune.
	got := InsertAtOffsets("시장 동향", []Citation{{EndIndex: 4, Segments: []Source{a}}})
	assert.Equal(t, "시장 [a](s/0) 동향", got)
}

func TestInsertHeuristicNumbered(t *testing.T) {
	sources := []Source{
		{Label: "AIMultiple", ShortURL: "s/0", URL: "https://research.aimultiple.com/x"},
		{Label: "Collabnix", ShortURL: "s/1", URL: "https://collabnix.com/y"},
	}
	text := "Agents grow [0]. Retail gains [0, 1]. Unknown [7]. Link [1](http://x)."

	got, n := InsertHeuristic(text, sources)
	assert.Equal(t, 3, n)
	assert.Equal(t,
		"Agents grow [AIMultiple](s/0). Retail gains [AIMultiple](s/0) [Collabnix](s/1). Unknown [7]. Link [1](http://x).",
		got)
}

func TestInsertHeuristicByMention(t *testing.T) {
	sources := []Source{
		{Label: "Analytics Insight", ShortURL: "s/0", URL: "https://www.analyticsinsight.net/a"},
		{Label: "Nowhere", ShortURL: "s/1", URL: "https://nowhere.example/b"},
	}
	text := "According to Analytics Insight, agents grow. Other text"

	got, n := InsertHeuristic(text, sources)
	assert.Equal(t, 1, n)
	assert.Equal(t, "According to Analytics Insight, agents grow. [Analytics Insight](s/0) Other text", got)
}

func TestInsertHeuristicNoSources(t *testing.T) {
	got, n := InsertHeuristic("nothing [0]", nil)
	assert.Equal(t, 0, n)
	assert.Equal(t, "nothing [0]", got)
}
