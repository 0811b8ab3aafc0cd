package reduce

// Queue is a FIFO backed by a growable ring buffer. The zero value is ready to use.
// It is not safe for concurrent use.
type Queue[T any] struct {
	buf  []T
	head int
	n    int
}

// NewQueue returns a queue holding items in order.
func NewQueue[T any](items []T) *Queue[T] {
	q := &Queue[T]{buf: make([]T, max(len(items), 4))}
	for _, item := range items {
		q.PushBack(item)
	}
	return q
}

func (q *Queue[T]) Len() int {
	return q.n
}

func (q *Queue[T]) PushBack(item T) {
	if q.n == len(q.buf) {
		q.grow()
	}
	q.buf[(q.head+q.n)%len(q.buf)] = item
	q.n++
}

// PopFront removes and returns the oldest item. ok is false when the queue is empty.
func (q *Queue[T]) PopFront() (item T, ok bool) {
	if q.n == 0 {
		return item, false
	}
	var zero T
	item = q.buf[q.head]
	q.buf[q.head] = zero
	q.head = (q.head + 1) % len(q.buf)
	q.n--
	return item, true
}

// PopN removes up to n items from the front, oldest first.
func (q *Queue[T]) PopN(n int) []T {
	n = min(n, q.n)
	out := make([]T, 0, n)
	for range n {
		item, _ := q.PopFront()
		out = append(out, item)
	}
	return out
}

func (q *Queue[T]) grow() {
	size := len(q.buf) * 2
	if size == 0 {
		size = 4
	}
	buf := make([]T, size)
	for i := 0; i < q.n; i++ {
		buf[i] = q.buf[(q.head+i)%len(q.buf)]
	}
	q.buf = buf
	q.head = 0
}
