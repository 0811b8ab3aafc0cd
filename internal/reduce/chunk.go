// Package reduce folds an ordered sequence of text fragments into a single result by
// summarizing budget-sized chunks level by level.
package reduce

import (
	"iter"
	"strings"
	"unicode/utf8"
)

// Fragment is an opaque unit of text taking part in a reduction.
type Fragment = string

// Measure returns the size of a fragment in budget units.
type Measure func(string) int

// Runes counts Unicode code points. It is the default Measure.
func Runes(s string) int {
	return utf8.RuneCountInString(s)
}

// Chunker groups consecutive fragments greedily so that each group fits in
// MaxSize - Reserved. A fragment that is larger than that on its own is emitted as a
// single-fragment chunk rather than truncated.
type Chunker struct {
	MaxSize  int
	Reserved int
	Measure  Measure
}

// Capacity is the room left for fragment content in each chunk.
func (c Chunker) Capacity() int {
	return c.MaxSize - c.Reserved
}

func (c Chunker) measure(s string) int {
	if c.Measure == nil {
		return Runes(s)
	}
	return c.Measure(s)
}

// Chunks lazily yields chunks of fragments in their original order.
func (c Chunker) Chunks(fragments []Fragment) iter.Seq[[]Fragment] {
	return func(yield func([]Fragment) bool) {
		capacity := c.Capacity()
		start, size := 0, 0
		for i, frag := range fragments {
			n := c.measure(frag)
			if i > start && size+n > capacity {
				if !yield(fragments[start:i:i]) {
					return
				}
				start, size = i, 0
			}
			size += n
		}
		if start < len(fragments) {
			yield(fragments[start:len(fragments):len(fragments)])
		}
	}
}

// Chunk splits fragments into chunks whose measured length is at most maxSize.
func Chunk(fragments []Fragment, maxSize int) iter.Seq[[]Fragment] {
	return Chunker{MaxSize: maxSize}.Chunks(fragments)
}

// Join concatenates the fragments of a chunk.
func Join(chunk []Fragment) string {
	return strings.Join(chunk, "")
}
