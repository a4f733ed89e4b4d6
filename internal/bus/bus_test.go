package bus

import (
	"testing"
	"time"

	"github.com/evocrew/evocrew/internal/domain"
)

func newInstr(crewID domain.CrewID, priority int) *domain.Instruction {
	return &domain.Instruction{
		ID:        domain.NewInstructionID(),
		CrewID:    crewID,
		Kind:      domain.InstructionGuidance,
		Priority:  priority,
		Content:   "do the thing",
		Status:    domain.InstructionPending,
		CreatedAt: time.Now(),
	}
}

func TestBus_DrainOrdersByPriorityThenFIFO(t *testing.T) {
	b := New()
	crew := domain.CrewID("crew-1")

	low1 := newInstr(crew, 1)
	high := newInstr(crew, 4)
	low2 := newInstr(crew, 1)

	b.Submit(low1)
	b.Submit(high)
	b.Submit(low2)

	got := b.DrainFor(crew)
	if len(got) != 3 {
		t.Fatalf("expected 3 instructions, got %d", len(got))
	}
	if got[0].ID != high.ID {
		t.Errorf("expected highest priority first, got %v", got[0].ID)
	}
	if got[1].ID != low1.ID || got[2].ID != low2.ID {
		t.Errorf("expected FIFO tiebreak among equal priority, got order %v %v", got[1].ID, got[2].ID)
	}
}

func TestBus_DrainEmptiesQueue(t *testing.T) {
	b := New()
	crew := domain.CrewID("crew-1")
	b.Submit(newInstr(crew, 2))

	first := b.DrainFor(crew)
	if len(first) != 1 {
		t.Fatalf("expected 1 instruction, got %d", len(first))
	}
	second := b.DrainFor(crew)
	if len(second) != 0 {
		t.Fatalf("expected drained queue to stay empty, got %d", len(second))
	}
}

func TestBus_EmergencyStopBypassesQueueAndFiresCallback(t *testing.T) {
	b := New()
	crew := domain.CrewID("crew-1")

	var fired *domain.Instruction
	b.OnEmergencyStop(crew, func(i *domain.Instruction) { fired = i })

	b.Submit(newInstr(crew, 3))
	esc := newInstr(crew, domain.EmergencyStopPriority)
	esc.Kind = domain.InstructionEmergencyStop
	b.Submit(esc)

	if fired == nil || fired.ID != esc.ID {
		t.Fatalf("expected emergency_stop callback to fire with esc instruction")
	}

	drained := b.DrainFor(crew)
	if len(drained) != 1 {
		t.Fatalf("expected emergency_stop to bypass the queue, got %d queued", len(drained))
	}
	if drained[0].ID == esc.ID {
		t.Fatalf("emergency_stop instruction must not also land in the queue")
	}
}

func TestBus_ExpireOlderThanRemovesOnlyStaleEntries(t *testing.T) {
	b := New()
	crew := domain.CrewID("crew-1")

	stale := newInstr(crew, 2)
	stale.CreatedAt = time.Now().Add(-time.Hour)
	fresh := newInstr(crew, 2)

	b.Submit(stale)
	b.Submit(fresh)

	expired := b.ExpireOlderThan(crew, time.Now().Add(-time.Minute))
	if len(expired) != 1 || expired[0].ID != stale.ID {
		t.Fatalf("expected only the stale instruction to expire, got %d", len(expired))
	}

	remaining := b.DrainFor(crew)
	if len(remaining) != 1 || remaining[0].ID != fresh.ID {
		t.Fatalf("expected fresh instruction to remain queued")
	}
}
