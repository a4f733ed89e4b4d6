package domain

import "time"

// InstructionKind is the typed directive category from spec §3.
type InstructionKind string

const (
	InstructionGuidance      InstructionKind = "guidance"
	InstructionConstraint    InstructionKind = "constraint"
	InstructionResource      InstructionKind = "resource"
	InstructionFeedback      InstructionKind = "feedback"
	InstructionEmergencyStop InstructionKind = "emergency_stop"
	InstructionPivot         InstructionKind = "pivot"
	InstructionSkillBoost    InstructionKind = "skill_boost"
)

// InstructionStatus tracks delivery/application lifecycle.
type InstructionStatus string

const (
	InstructionPending   InstructionStatus = "pending"
	InstructionDelivered InstructionStatus = "delivered"
	InstructionApplied   InstructionStatus = "applied"
	InstructionFailed    InstructionStatus = "failed"
	InstructionExpired   InstructionStatus = "expired"
)

// EmergencyStopPriority is the one priority value that bypass-routes
// straight to cancellation and is never allowed to expire (spec §3, §4.3).
const EmergencyStopPriority = 5

// MaxInstructionContentLen bounds Instruction.Content (spec §5, §6.2's
// "bounded text").
const MaxInstructionContentLen = 10_000

// Instruction is a typed, prioritized directive sent to a running (or
// about-to-run) crew.
type Instruction struct {
	ID          InstructionID
	CrewID      CrewID
	WorkflowID  *WorkflowID
	Kind        InstructionKind
	Priority    int // 1..5
	Content     string
	Status      InstructionStatus
	CreatedAt   time.Time
	ProcessedAt *time.Time
	Error       string
}

// IsEmergencyStop reports whether this instruction unconditionally cancels
// its workflow once delivered.
func (i *Instruction) IsEmergencyStop() bool {
	return i.Priority == EmergencyStopPriority || i.Kind == InstructionEmergencyStop
}
