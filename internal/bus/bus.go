// Package bus implements the per-crew priority Instruction Bus: a
// container/heap-ordered queue (priority descending, FIFO on ties) with
// bypass routing for emergency_stop instructions (spec §4.3).
package bus

import (
	"container/heap"
	"sync"
	"time"

	"github.com/evocrew/evocrew/internal/domain"
)

// EmergencyStopFunc is invoked synchronously, after the bus lock is
// released, the instant an emergency_stop instruction is submitted — it
// must not block.
type EmergencyStopFunc func(i *domain.Instruction)

// Bus holds one priority queue per crew plus an optional emergency-stop
// hook wired by the Workflow SM when it starts watching a crew.
type Bus struct {
	mu    sync.Mutex
	qs    map[domain.CrewID]*crewQueue
	onESC map[domain.CrewID]EmergencyStopFunc
}

type crewQueue struct {
	items  pqueue
	seqNum int64
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{
		qs:    make(map[domain.CrewID]*crewQueue),
		onESC: make(map[domain.CrewID]EmergencyStopFunc),
	}
}

func (b *Bus) queueFor(crewID domain.CrewID) *crewQueue {
	q, ok := b.qs[crewID]
	if !ok {
		q = &crewQueue{}
		heap.Init(&q.items)
		b.qs[crewID] = q
	}
	return q
}

// OnEmergencyStop registers the callback invoked when an emergency_stop
// instruction is submitted for crewID. Only one callback per crew is kept
// (the Workflow SM re-registers it per workflow); submitting nil clears it.
func (b *Bus) OnEmergencyStop(crewID domain.CrewID, fn EmergencyStopFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if fn == nil {
		delete(b.onESC, crewID)
		return
	}
	b.onESC[crewID] = fn
}

// Submit enqueues an instruction. Emergency stops are not placed in the
// queue at all — they fire their callback immediately and bypass ordering
// entirely, since the whole point of priority 5 is that it never waits
// behind anything (spec §4.3 "bypass routing").
func (b *Bus) Submit(i *domain.Instruction) {
	b.mu.Lock()
	if i.IsEmergencyStop() {
		fn := b.onESC[i.CrewID]
		b.mu.Unlock()
		if fn != nil {
			fn(i)
		}
		return
	}

	q := b.queueFor(i.CrewID)
	q.seqNum++
	heap.Push(&q.items, &pitem{instr: i, priority: i.Priority, seq: q.seqNum})
	b.mu.Unlock()
}

// DrainFor pops every currently-queued instruction for crewID in
// priority-desc, submit-time-asc order. Called by the Workflow SM's
// intake loop (spec §4.4's Executing-state polling).
func (b *Bus) DrainFor(crewID domain.CrewID) []*domain.Instruction {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.qs[crewID]
	if !ok || q.items.Len() == 0 {
		return nil
	}
	out := make([]*domain.Instruction, 0, q.items.Len())
	for q.items.Len() > 0 {
		it := heap.Pop(&q.items).(*pitem)
		out = append(out, it.instr)
	}
	return out
}

// Peek returns a copy of crewID's queued instructions without removing
// them, in heap order rather than delivery order.
func (b *Bus) Peek(crewID domain.CrewID) []*domain.Instruction {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.qs[crewID]
	if !ok {
		return nil
	}
	out := make([]*domain.Instruction, len(q.items))
	copy(out, instrsOf(q.items))
	return out
}

func instrsOf(pq pqueue) []*domain.Instruction {
	out := make([]*domain.Instruction, len(pq))
	for i, it := range pq {
		out[i] = it.instr
	}
	return out
}

// ExpireOlderThan removes (without delivering) any queued instruction
// whose CreatedAt predates the cutoff, returning the expired ones so the
// caller can mark them InstructionExpired in the Store. Emergency stops
// are never queued, so they are never subject to expiry (spec §4.3 "never
// allowed to expire").
func (b *Bus) ExpireOlderThan(crewID domain.CrewID, cutoff time.Time) []*domain.Instruction {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.qs[crewID]
	if !ok {
		return nil
	}
	var kept pqueue
	var expired []*domain.Instruction
	for _, it := range q.items {
		if it.instr.CreatedAt.Before(cutoff) {
			expired = append(expired, it.instr)
			continue
		}
		kept = append(kept, it)
	}
	q.items = kept
	heap.Init(&q.items)
	return expired
}
