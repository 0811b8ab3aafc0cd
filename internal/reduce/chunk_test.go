package reduce

import (
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(c Chunker, fragments []Fragment) [][]Fragment {
	return slices.Collect(c.Chunks(fragments))
}

func TestChunk_Empty(t *testing.T) {
	chunks := slices.Collect(Chunk(nil, 10))
	assert.Empty(t, chunks)
}

func TestChunk_Greedy(t *testing.T) {
	chunks := slices.Collect(Chunk([]Fragment{"A", "B", "C"}, 2))
	assert.Equal(t, [][]Fragment{{"A", "B"}, {"C"}}, chunks)
}

func TestChunk_ExactFitStaysTogether(t *testing.T) {
	chunks := slices.Collect(Chunk([]Fragment{"ab", "cd", "ef"}, 4))
	assert.Equal(t, [][]Fragment{{"ab", "cd"}, {"ef"}}, chunks)
}

func TestChunk_OversizedFragmentIsAlone(t *testing.T) {
	big := strings.Repeat("x", 10)
	chunks := slices.Collect(Chunk([]Fragment{"a", big, "b", "c"}, 3))
	assert.Equal(t, [][]Fragment{{"a"}, {big}, {"b", "c"}}, chunks)
}

func TestChunk_ReservedOffset(t *testing.T) {
	c := Chunker{MaxSize: 5, Reserved: 3}
	assert.Equal(t, 2, c.Capacity())
	assert.Equal(t, [][]Fragment{{"a", "b"}, {"c", "d"}}, collect(c, []Fragment{"a", "b", "c", "d"}))
}

func TestChunk_CountsRunesNotBytes(t *testing.T) {
	// Each fragment is 2 runes but 4 bytes.
	chunks := slices.Collect(Chunk([]Fragment{"éé", "üü"}, 4))
	assert.Equal(t, [][]Fragment{{"éé", "üü"}}, chunks)
}

func TestChunk_CustomMeasure(t *testing.T) {
	words := func(s string) int { return len(strings.Fields(s)) }
	c := Chunker{MaxSize: 3, Measure: words}
	chunks := collect(c, []Fragment{"one two ", "three ", "four five six ", "seven"})
	assert.Equal(t, [][]Fragment{{"one two ", "three "}, {"four five six "}, {"seven"}}, chunks)
}

func TestChunk_EarlyStop(t *testing.T) {
	var seen int
	for range Chunk([]Fragment{"a", "b", "c", "d"}, 1) {
		seen++
		if seen == 2 {
			break
		}
	}
	assert.Equal(t, 2, seen)
}

func TestChunk_PreservesContentAndBudget(t *testing.T) {
	fragments := []Fragment{
		"Alice (Guild): hi\n",
		"Bob (Guild): yo\n",
		strings.Repeat("long ", 20),
		"x",
		"Carol (Guild): how is everyone doing today?\n",
		"",
		"Dave (Guild): fine\n",
	}
	for _, max := range []int{1, 5, 16, 20, 40, 200} {
		var joined strings.Builder
		var count int
		for chunk := range Chunk(fragments, max) {
			require.NotEmpty(t, chunk)
			count += len(chunk)
			content := Join(chunk)
			joined.WriteString(content)
			if len(chunk) > 1 {
				assert.LessOrEqual(t, Runes(content), max, "max=%d chunk=%q", max, chunk)
			}
		}
		assert.Equal(t, len(fragments), count, "max=%d", max)
		assert.Equal(t, strings.Join(fragments, ""), joined.String(), "max=%d", max)
	}
}

func TestQueue_FIFOAcrossGrowth(t *testing.T) {
	q := NewQueue([]int{1, 2, 3})
	v, ok := q.PopFront()
	require.True(t, ok)
	assert.Equal(t, 1, v)

	for i := 4; i <= 20; i++ {
		q.PushBack(i)
	}
	assert.Equal(t, 19, q.Len())

	got := q.PopN(100)
	want := make([]int, 0, 19)
	for i := 2; i <= 20; i++ {
		want = append(want, i)
	}
	assert.Equal(t, want, got)

	_, ok = q.PopFront()
	assert.False(t, ok)
}

func TestQueue_ZeroValue(t *testing.T) {
	var q Queue[string]
	q.PushBack("a")
	q.PushBack("b")
	assert.Equal(t, []string{"a", "b"}, q.PopN(2))
	assert.Equal(t, 0, q.Len())
}
