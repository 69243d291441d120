package core

// prompts.go holds the fixed texts the engine appends to transcripts.
// Keeping them in one file makes them easy to tweak without touching the
// transition logic.

const (
	// intakeCompleteNotice is appended when the questionnaire finishes and
	// the session enters the nurse queue.
	intakeCompleteNotice = "Thank you. Your intake is complete. A nurse will review your case shortly."

	// keywordUrgentNotice documents an automatic keyword escalation.
	keywordUrgentNotice = "Your message suggests a potentially urgent condition. A nurse has been notified immediately."

	// manualUrgentNotice documents a beneficiary-initiated SOS escalation.
	manualUrgentNotice = "Emergency button pressed. A nurse has been notified immediately."

	// nurseJoinedNotice documents a nurse taking over the conversation.
	nurseJoinedNotice = "A nurse has joined your case."

	// closedNotice documents an explicit close by either party.
	closedNotice = "This session has been closed."

	// softTimeoutNotice documents the idle demotion to inactive.
	softTimeoutNotice = "This session was marked inactive after a period of no activity. Send a message to resume."

	// hardTimeoutNotice documents the permanent closure of a dormant session.
	hardTimeoutNotice = "This session was permanently closed after a prolonged period of inactivity."

	// resumedNotice documents a successful reactivation.
	resumedNotice = "Welcome back. Your session has been resumed."

	// summaryPlaceholder stands in when every summarization attempt failed.
	summaryPlaceholder = "System note: the automated summary could not be generated. Please review the intake answers manually."
)
