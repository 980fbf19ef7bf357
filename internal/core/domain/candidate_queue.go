package domain

// CandidateQueue holds candidate payloads for one direction of a pair until
// the receiving side can apply them. Order of arrival is preserved.
type CandidateQueue struct {
	items [][]byte
	limit int
}

// NewCandidateQueue returns a queue holding at most limit payloads.
// A limit <= 0 means unbounded.
func NewCandidateQueue(limit int) *CandidateQueue {
	return &CandidateQueue{limit: limit}
}

func (q *CandidateQueue) Push(payload []byte) error {
	if q.limit > 0 && len(q.items) >= q.limit {
		return ErrCandidateBufferFull
	}
	q.items = append(q.items, payload)
	return nil
}

// Drain empties the queue and returns its contents in arrival order.
func (q *CandidateQueue) Drain() [][]byte {
	items := q.items
	q.items = nil
	return items
}

func (q *CandidateQueue) Len() int {
	return len(q.items)
}
