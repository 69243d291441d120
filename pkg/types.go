package pkg

import "time"

// SessionState is the lifecycle stage of a triage session. States form a
// closed set; all mutation goes through the transition functions in
// internal/core, which re-check the persisted state before writing.
type SessionState string

const (
	// StateIntake: the assistant is walking the beneficiary through the
	// scripted questionnaire.
	StateIntake SessionState = "intake"
	// StateWaitingForNurse: intake is complete and the session sits in the
	// nurse queue.
	StateWaitingForNurse SessionState = "waiting_for_nurse"
	// StateNurseActive: a nurse has joined and is chatting.
	StateNurseActive SessionState = "nurse_active"
	// StateUrgent: escalated by keyword detection or manual SOS. Exempt from
	// timeout sweeps; only a nurse action moves it elsewhere.
	StateUrgent SessionState = "urgent"
	// StateInactive: soft-timed-out but still reactivatable within the grace
	// window.
	StateInactive SessionState = "inactive"
	// StateClosed: ended by a participant or by the hard timeout. Terminal.
	StateClosed SessionState = "closed"
	// StateCompleted: finalized by a nurse with a clinical note. Terminal.
	StateCompleted SessionState = "completed"
)

// Terminal reports whether no further transition is defined out of s.
func (s SessionState) Terminal() bool {
	return s == StateClosed || s == StateCompleted
}

// Sweepable reports whether the soft-timeout pass may demote s to inactive.
// Urgent sessions are exempt unconditionally.
func (s SessionState) Sweepable() bool {
	switch s {
	case StateIntake, StateWaitingForNurse, StateNurseActive:
		return true
	}
	return false
}

// MessageRole identifies the author of a transcript entry.
type MessageRole string

const (
	RoleBeneficiary MessageRole = "beneficiary"
	RoleNurse       MessageRole = "nurse"
	RoleAssistant   MessageRole = "assistant"
)

// MessagePhase tags the context a message was produced in. Phases drive
// render-time visibility only; no message is ever deleted.
type MessagePhase string

const (
	PhaseIntake     MessagePhase = "intake"
	PhaseChat       MessagePhase = "chat"
	PhaseSystem     MessagePhase = "system"
	PhaseSummary    MessagePhase = "summary"
	PhaseCompletion MessagePhase = "completion"
)

// IntakeProgress tracks the beneficiary's position in the fixed question
// schema. Completed is set exactly once and never reverted.
type IntakeProgress struct {
	CurrentIndex int               `json:"current_index"`
	Answers      map[string]string `json:"answers"`
	Completed    bool              `json:"completed"`
}

// Session is one beneficiary-initiated consultation. WasUrgent and
// NurseJoined are historical flags retained for reporting even after the
// state moves on.
type Session struct {
	ID           string         `json:"id"`
	Owner        string         `json:"owner"`
	State        SessionState   `json:"state"`
	Summary      *string        `json:"summary,omitempty"`
	IsRead       bool           `json:"is_read"`
	NurseJoined  bool           `json:"nurse_joined"`
	WasUrgent    bool           `json:"was_urgent"`
	Intake       IntakeProgress `json:"intake"`
	CreatedAt    time.Time      `json:"created_at"`
	LastActivity time.Time      `json:"last_activity"`
}

// Message is an append-only transcript entry. Entries are immutable once
// written and ordered by (timestamp, id) within a session.
type Message struct {
	ID        int64        `json:"id"`
	SessionID string       `json:"session_id"`
	Role      MessageRole  `json:"role"`
	Content   string       `json:"content"`
	Timestamp time.Time    `json:"timestamp"`
	Phase     MessagePhase `json:"phase"`
}

// VisibleTo reports whether a viewer with the given role may see this
// message. Summary-phase entries are nurse-only.
func (m Message) VisibleTo(role MessageRole) bool {
	if m.Phase == PhaseSummary {
		return role == RoleNurse
	}
	return true
}
