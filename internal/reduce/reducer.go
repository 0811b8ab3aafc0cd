package reduce

import (
	"context"
	"errors"
	"fmt"

	"github.com/stellarlinkco/chatscribe/internal/llm"
)

var (
	// ErrUnderflow means the queue emptied before a single result remained. With
	// non-empty input it indicates a defect in the reducer.
	ErrUnderflow = errors.New("reduce: queue underflow")

	// ErrInvalidBudget means the chunk budget leaves no room next to the instruction.
	ErrInvalidBudget = errors.New("reduce: chunk budget does not exceed instruction size")
)

// Budget bounds the size of every prompt sent to the model.
type Budget struct {
	MaxChunkSize int
	// Measure sizes fragments and the instruction. Nil counts runes.
	Measure Measure
}

// RoundStats describes one completed reduction round.
type RoundStats struct {
	Round     int
	Fragments int
	Chunks    int
	Calls     int
	Remaining int
	// Forced is set when the round paired neighbours regardless of budget because
	// no two of them fit together.
	Forced bool
}

// Reducer summarizes fragments breadth-first: every fragment queued at the start of a
// round is chunked and summarized before any summary from that round is chunked
// again. Rounds repeat until one fragment remains.
type Reducer struct {
	Client  llm.Client
	Budget  Budget
	Options llm.GenerationOptions
	// Observe, when set, is called after every round.
	Observe func(RoundStats)
}

// Reduce returns the single fragment left after repeatedly summarizing fragments
// with instruction prepended to every chunk. It performs no model calls for a single
// fragment. Any client failure aborts the reduction with an *llm.GenerationError.
func (r *Reducer) Reduce(ctx context.Context, instruction string, fragments []Fragment) (Fragment, error) {
	measure := r.Budget.Measure
	if measure == nil {
		measure = Runes
	}
	chunker := Chunker{
		MaxSize:  r.Budget.MaxChunkSize,
		Reserved: measure(instruction),
		Measure:  measure,
	}
	if chunker.Capacity() <= 0 {
		return "", fmt.Errorf("%w: max %d, instruction %d", ErrInvalidBudget, chunker.MaxSize, chunker.Reserved)
	}

	queue := NewQueue(fragments)
	for round := 1; queue.Len() > 1; round++ {
		stats, err := r.reduceRound(ctx, round, instruction, chunker, queue)
		if err != nil {
			return "", err
		}
		if r.Observe != nil {
			r.Observe(stats)
		}
	}

	result, ok := queue.PopFront()
	if !ok {
		return "", ErrUnderflow
	}
	return result, nil
}

// reduceRound summarizes every fragment currently queued. When no two neighbours
// fit together, greedy chunking would yield only single-fragment chunks and the
// queue could not shrink, so the round pairs neighbours regardless of budget.
func (r *Reducer) reduceRound(ctx context.Context, round int, instruction string, chunker Chunker, queue *Queue[Fragment]) (RoundStats, error) {
	level := queue.PopN(queue.Len())
	stats := RoundStats{Round: round, Fragments: len(level)}

	chunks := make([][]Fragment, 0, len(level))
	for chunk := range chunker.Chunks(level) {
		chunks = append(chunks, chunk)
	}
	if len(chunks) == len(level) {
		chunks = pairs(level)
		stats.Forced = true
	}
	stats.Chunks = len(chunks)

	for i, chunk := range chunks {
		if len(chunk) == 1 && chunker.measure(chunk[0]) <= chunker.Capacity() {
			queue.PushBack(chunk[0])
			continue
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		summary, err := r.Client.Generate(ctx, instruction+Join(chunk), r.Options)
		if err != nil {
			var genErr *llm.GenerationError
			if !errors.As(err, &genErr) {
				err = &llm.GenerationError{Err: err}
			}
			return stats, fmt.Errorf("reduce round %d chunk %d: %w", round, i+1, err)
		}
		stats.Calls++
		queue.PushBack(summary)
	}

	stats.Remaining = queue.Len()
	if stats.Remaining == 0 {
		return stats, ErrUnderflow
	}
	return stats, nil
}

// pairs groups neighbours two at a time; an odd trailing fragment stays alone.
func pairs(level []Fragment) [][]Fragment {
	out := make([][]Fragment, 0, (len(level)+1)/2)
	for i := 0; i < len(level); i += 2 {
		end := min(i+2, len(level))
		out = append(out, level[i:end:end])
	}
	return out
}
