// Package analysis computes the statistics behind the chat analysis commands.
package analysis

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"unicode"

	"github.com/stellarlinkco/chatscribe/internal/reduce"
	"github.com/stellarlinkco/chatscribe/internal/store"
)

// Count is a ranked entry. Key holds a word, or the decimal author id for TopUsers.
type Count struct {
	Key   string
	ID    int64
	Count int
}

// TopUsers ranks authors by message count. Ties keep first-seen order.
func TopUsers(records []store.Record, n int) []Count {
	index := make(map[int64]int)
	var counts []Count
	for _, rec := range records {
		i, ok := index[rec.AuthorID]
		if !ok {
			i = len(counts)
			index[rec.AuthorID] = i
			counts = append(counts, Count{Key: fmt.Sprint(rec.AuthorID), ID: rec.AuthorID})
		}
		counts[i].Count++
	}
	return top(counts, n)
}

// WordFrequency ranks words made only of letters, folded to lower case.
func WordFrequency(records []store.Record, n int) []Count {
	index := make(map[string]int)
	var counts []Count
	for _, rec := range records {
		for _, word := range Words(rec.Text) {
			i, ok := index[word]
			if !ok {
				i = len(counts)
				index[word] = i
				counts = append(counts, Count{Key: word})
			}
			counts[i].Count++
		}
	}
	return top(counts, n)
}

// Words splits text on anything that is not a letter or apostrophe and drops
// tokens that contain no letters.
func Words(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
	out := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, "'")
		if f == "" {
			continue
		}
		out = append(out, strings.ToLower(f))
	}
	return out
}

func top(counts []Count, n int) []Count {
	slices.SortStableFunc(counts, func(a, b Count) int {
		return cmp.Compare(b.Count, a.Count)
	})
	if n > 0 && len(counts) > n {
		counts = counts[:n]
	}
	return counts
}

// Pages joins formatted lines into messages of at most size characters. A line
// longer than size becomes its own page.
func Pages(lines []reduce.Fragment, size int) []string {
	var pages []string
	for chunk := range reduce.Chunk(lines, size) {
		pages = append(pages, reduce.Join(chunk))
	}
	return pages
}

// Bars renders counts as a plain-text bar chart scaled to width cells.
func Bars(counts []Count, width int) string {
	if len(counts) == 0 {
		return ""
	}
	maxCount, pad := 0, 0
	for _, c := range counts {
		maxCount = max(maxCount, c.Count)
		pad = max(pad, len([]rune(c.Key)))
	}
	var b strings.Builder
	for _, c := range counts {
		cells := 0
		if maxCount > 0 {
			cells = max(1, c.Count*width/maxCount)
		}
		fmt.Fprintf(&b, "%-*s %s %d\n", pad, c.Key, strings.Repeat("█", cells), c.Count)
	}
	return b.String()
}
