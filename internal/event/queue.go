package event

// Sequence numbers insertions so equal-time, equal-priority events keep FIFO
// order. Queues that share a Sequence are FIFO relative to each other.
type Sequence struct {
	n uint64
}

func (s *Sequence) next() uint64 {
	s.n++
	return s.n
}

// Queue is a binary min-heap of events ordered by Before. It stores values,
// so pushes within capacity do not allocate.
type Queue struct {
	items []Event
	seq   *Sequence
}

func NewQueue(capacity int, seq *Sequence) *Queue {
	if seq == nil {
		seq = &Sequence{}
	}
	return &Queue{items: make([]Event, 0, capacity), seq: seq}
}

func (q *Queue) Len() int { return len(q.items) }

func (q *Queue) Push(e Event) {
	e.seq = q.seq.next()
	q.items = append(q.items, e)
	q.up(len(q.items) - 1)
}

// Peek returns the head without removing it.
func (q *Queue) Peek() (*Event, bool) {
	if len(q.items) == 0 {
		return nil, false
	}
	return &q.items[0], true
}

func (q *Queue) Pop() (Event, bool) {
	n := len(q.items)
	if n == 0 {
		return Event{}, false
	}
	head := q.items[0]
	q.items[0] = q.items[n-1]
	q.items[n-1] = Event{}
	q.items = q.items[:n-1]
	if n > 1 {
		q.down(0)
	}
	return head, true
}

// Reset drops every event, keeping the backing storage.
func (q *Queue) Reset() {
	clear(q.items)
	q.items = q.items[:0]
}

func (q *Queue) up(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !Before(&q.items[i], &q.items[parent]) {
			return
		}
		q.items[i], q.items[parent] = q.items[parent], q.items[i]
		i = parent
	}
}

func (q *Queue) down(i int) {
	n := len(q.items)
	for {
		smallest := i
		if l := 2*i + 1; l < n && Before(&q.items[l], &q.items[smallest]) {
			smallest = l
		}
		if r := 2*i + 2; r < n && Before(&q.items[r], &q.items[smallest]) {
			smallest = r
		}
		if smallest == i {
			return
		}
		q.items[i], q.items[smallest] = q.items[smallest], q.items[i]
		i = smallest
	}
}
