package bus

import "github.com/evocrew/evocrew/internal/domain"

// pitem is one entry in a crew's priority queue: higher priority first,
// and among equal priorities, lower seq (earlier submission) first.
type pitem struct {
	instr    *domain.Instruction
	priority int
	seq      int64
}

// pqueue implements container/heap.Interface as a max-heap on priority
// with seq as the tiebreaker, per spec §4.3 "priority-desc, FIFO on ties".
type pqueue []*pitem

func (pq pqueue) Len() int { return len(pq) }

func (pq pqueue) Less(i, j int) bool {
	if pq[i].priority != pq[j].priority {
		return pq[i].priority > pq[j].priority
	}
	return pq[i].seq < pq[j].seq
}

func (pq pqueue) Swap(i, j int) { pq[i], pq[j] = pq[j], pq[i] }

func (pq *pqueue) Push(x any) {
	*pq = append(*pq, x.(*pitem))
}

func (pq *pqueue) Pop() any {
	old := *pq
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*pq = old[:n-1]
	return it
}
