package stmt

// detailQueue is the FIFO of pending DetailInfo items owned by one plan.
//
// The queue is unbounded: draining one item may enqueue the next index of
// the same array and the nested arrays of the element just written.
//
// Not safe for concurrent use; a plan has a single owner.
type detailQueue struct {
	items []*DetailInfo
}

// push adds an item to the back of the queue.
func (q *detailQueue) push(d *DetailInfo) {
	q.items = append(q.items, d)
}

// pop removes and returns the front item.
// Returns (nil, false) if the queue is empty.
func (q *detailQueue) pop() (*DetailInfo, bool) {
	if len(q.items) == 0 {
		return nil, false
	}
	d := q.items[0]

	// Nil out the slot so the drained DetailInfo (and its array) can be
	// collected before the backing array is reallocated.
	q.items[0] = nil
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	return d, true
}

// len returns the current queue length.
func (q *detailQueue) len() int {
	return len(q.items)
}
