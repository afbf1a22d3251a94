package core

import "math/big"

// queueNode is an arena-style list node. Neighbors are referenced by
// proposal ID rather than pointers; 0 means no neighbor.
type queueNode struct {
	id     uint64
	weight *big.Int
	prev   uint64 // heavier neighbor
	next   uint64 // lighter neighbor
}

// Queue ranks queued proposal IDs by upvote weight, heaviest first. Entries
// with equal weight sit in the order placed by caller-supplied hints.
type Queue struct {
	nodes map[uint64]*queueNode
	head  uint64
	tail  uint64
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{nodes: make(map[uint64]*queueNode)}
}

// Size returns the number of queued proposals.
func (q *Queue) Size() int {
	return len(q.nodes)
}

// Contains reports whether the proposal is queued.
func (q *Queue) Contains(id uint64) bool {
	_, ok := q.nodes[id]
	return ok
}

// ValueOf returns a copy of the proposal's upvote weight, or nil when the
// proposal is not queued.
func (q *Queue) ValueOf(id uint64) *big.Int {
	n, ok := q.nodes[id]
	if !ok {
		return nil
	}
	return new(big.Int).Set(n.weight)
}

// Insert adds a proposal with the given starting weight, scanning from the
// head for its position. New entries rank below existing equal weights.
func (q *Queue) Insert(id uint64, weight *big.Int) error {
	if id == 0 {
		return ErrQueueEntryMissing
	}
	if q.Contains(id) {
		return ErrQueueEntryExists
	}
	n := &queueNode{id: id, weight: new(big.Int).Set(weight)}
	q.nodes[id] = n
	prev, next := q.scan(n.weight)
	q.link(n, prev, next)
	return nil
}

// Increase raises a proposal's weight by delta and repositions it. The
// hints name the expected heavier and lighter neighbors after the move; a
// hint pair that is not adjacent to the correct position fails without
// reordering anything. Zero hints fall back to a scan from the head.
func (q *Queue) Increase(id uint64, delta *big.Int, greaterHint, lesserHint uint64) error {
	return q.reposition(id, delta, false, greaterHint, lesserHint)
}

// Decrease lowers a proposal's weight by delta and repositions it, with the
// same hint contract as Increase.
func (q *Queue) Decrease(id uint64, delta *big.Int, greaterHint, lesserHint uint64) error {
	return q.reposition(id, delta, true, greaterHint, lesserHint)
}

func (q *Queue) reposition(id uint64, delta *big.Int, negate bool, greaterHint, lesserHint uint64) error {
	n, ok := q.nodes[id]
	if !ok {
		return ErrQueueEntryMissing
	}
	weight := new(big.Int).Set(n.weight)
	if negate {
		weight.Sub(weight, delta)
		if weight.Sign() < 0 {
			return ErrWeightUnderflow
		}
	} else {
		weight.Add(weight, delta)
	}

	oldPrev, oldNext := n.prev, n.next
	q.unlink(n)
	prev, next, err := q.position(weight, greaterHint, lesserHint)
	if err != nil {
		// restore the exact original position before reporting the bad hint
		q.link(n, oldPrev, oldNext)
		return err
	}
	n.weight = weight
	q.link(n, prev, next)
	return nil
}

// Remove drops a proposal from the queue.
func (q *Queue) Remove(id uint64) error {
	n, ok := q.nodes[id]
	if !ok {
		return ErrQueueEntryMissing
	}
	q.unlink(n)
	delete(q.nodes, id)
	return nil
}

// PopTopN removes and returns up to n proposal IDs in descending weight
// order, heaviest first. Callers rely on this ordering for dequeue fairness.
func (q *Queue) PopTopN(n int) []uint64 {
	var ids []uint64
	for i := 0; i < n && q.head != 0; i++ {
		top := q.nodes[q.head]
		q.unlink(top)
		delete(q.nodes, top.id)
		ids = append(ids, top.id)
	}
	return ids
}

// Snapshot returns all queued IDs and weight copies in descending order.
func (q *Queue) Snapshot() ([]uint64, []*big.Int) {
	ids := make([]uint64, 0, len(q.nodes))
	weights := make([]*big.Int, 0, len(q.nodes))
	for id := q.head; id != 0; id = q.nodes[id].next {
		ids = append(ids, id)
		weights = append(weights, new(big.Int).Set(q.nodes[id].weight))
	}
	return ids, weights
}

// position resolves the neighbors for a weight, either validating the
// supplied hints or scanning when no hints are given. The moving node must
// already be unlinked.
func (q *Queue) position(weight *big.Int, greaterHint, lesserHint uint64) (uint64, uint64, error) {
	if greaterHint == 0 && lesserHint == 0 {
		if len(q.nodes) > 1 && q.head != 0 {
			// no hints: scan is acceptable only because it yields the same
			// position the hints would have named
			prev, next := q.scan(weight)
			return prev, next, nil
		}
		return 0, 0, nil
	}

	if greaterHint != 0 {
		g, ok := q.nodes[greaterHint]
		if !ok || g.weight.Cmp(weight) < 0 || g.next != lesserHint {
			return 0, 0, ErrInvalidHint
		}
	} else if q.head != lesserHint {
		return 0, 0, ErrInvalidHint
	}
	if lesserHint != 0 {
		l, ok := q.nodes[lesserHint]
		if !ok || l.weight.Cmp(weight) > 0 || l.prev != greaterHint {
			return 0, 0, ErrInvalidHint
		}
	} else if q.tail != greaterHint {
		return 0, 0, ErrInvalidHint
	}
	return greaterHint, lesserHint, nil
}

// scan walks from the head looking for the first node lighter than weight.
func (q *Queue) scan(weight *big.Int) (prev, next uint64) {
	for id := q.head; id != 0; id = q.nodes[id].next {
		if q.nodes[id].weight.Cmp(weight) < 0 {
			return q.nodes[id].prev, id
		}
	}
	return q.tail, 0
}

func (q *Queue) link(n *queueNode, prev, next uint64) {
	n.prev, n.next = prev, next
	if prev != 0 {
		q.nodes[prev].next = n.id
	} else {
		q.head = n.id
	}
	if next != 0 {
		q.nodes[next].prev = n.id
	} else {
		q.tail = n.id
	}
}

func (q *Queue) unlink(n *queueNode) {
	if n.prev != 0 {
		q.nodes[n.prev].next = n.next
	} else if q.head == n.id {
		q.head = n.next
	}
	if n.next != 0 {
		q.nodes[n.next].prev = n.prev
	} else if q.tail == n.id {
		q.tail = n.prev
	}
	n.prev, n.next = 0, 0
}
