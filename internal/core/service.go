package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"medtriage/internal/logger"
	"medtriage/internal/metrics"
	"medtriage/pkg"
)

const (
	// DefaultSoftTimeout is the idle duration after which an active session
	// is demoted to inactive.
	DefaultSoftTimeout = 20 * time.Minute
	// DefaultGraceWindow is the additional idle duration an inactive
	// session survives before permanent closure.
	DefaultGraceWindow = 60 * time.Minute

	// minCompletionNote is the minimum trimmed length of a nurse's
	// finalization note.
	minCompletionNote = 20
)

// Service is the triage session lifecycle engine. It owns every state
// transition; preconditions are re-checked against the persisted row inside
// Store.Mutate, so concurrent requests for the same session cannot
// double-escalate or double-complete.
type Service struct {
	store Store
	llm   Summarizer
	soft  time.Duration
	grace time.Duration
	now   func() time.Time
}

// Summarizer is the external collaborator that turns intake answers into
// clinical-style prose. Failures degrade to a placeholder and never block
// the intake-completion transition.
type Summarizer interface {
	Summarize(ctx context.Context, prompt string) (string, error)
}

// NewService constructs the engine. Zero durations select the defaults.
func NewService(store Store, summarizer Summarizer, soft, grace time.Duration) *Service {
	if soft <= 0 {
		soft = DefaultSoftTimeout
	}
	if grace <= 0 {
		grace = DefaultGraceWindow
	}
	return &Service{
		store: store,
		llm:   summarizer,
		soft:  soft,
		grace: grace,
		now:   time.Now,
	}
}

// SetClock overrides the service's time source. Tests use it to drive
// timeout behavior deterministically.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// StartSession creates a consultation for owner in the intake state, with
// the first questionnaire prompt as the opening transcript entry.
func (s *Service) StartSession(ctx context.Context, owner string) (*pkg.Session, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return nil, fmt.Errorf("%w: owner is required", ErrValidation)
	}
	now := s.now()
	sess := &pkg.Session{
		ID:           uuid.NewString(),
		Owner:        owner,
		State:        pkg.StateIntake,
		Intake:       pkg.IntakeProgress{Answers: map[string]string{}},
		CreatedAt:    now,
		LastActivity: now,
	}
	first := pkg.Message{
		SessionID: sess.ID,
		Role:      pkg.RoleAssistant,
		Content:   IntakeSchema[0].Prompt,
		Timestamp: now,
		Phase:     pkg.PhaseIntake,
	}
	if err := s.store.CreateSession(ctx, sess, first); err != nil {
		return nil, err
	}
	metrics.SessionsStarted.Inc()
	logger.Info("session started", "session", sess.ID, "owner", owner)
	return sess, nil
}

// SubmitBeneficiaryMessage handles one inbound beneficiary message: it
// reactivates inactive sessions still inside the grace window, persists the
// message, applies the escalation policy, and advances the intake workflow.
// Whitespace-only input is rejected before anything is persisted.
func (s *Service) SubmitBeneficiaryMessage(ctx context.Context, id, owner, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("%w: message is empty", ErrValidation)
	}
	var (
		completed bool
		answers   map[string]string
		escalated bool
	)
	err := s.store.Mutate(ctx, id, func(sess *pkg.Session) ([]pkg.Message, error) {
		if sess.Owner != owner {
			return nil, ErrNotFound
		}
		if sess.State.Terminal() {
			return nil, fmt.Errorf("%w: session is %s", ErrInvalidTransition, sess.State)
		}
		now := s.now()
		var msgs []pkg.Message

		// Reactivation must be decided before the message is treated as a
		// normal chat/intake message.
		if sess.State == pkg.StateInactive {
			if now.After(sess.LastActivity.Add(s.soft + s.grace)) {
				return nil, fmt.Errorf("%w: inactive past the grace window", ErrExpired)
			}
			if sess.Intake.Completed {
				sess.State = pkg.StateWaitingForNurse
			} else {
				sess.State = pkg.StateIntake
			}
			msgs = append(msgs, systemMessage(id, now, resumedNotice))
		}

		phase := pkg.PhaseIntake
		if sess.Intake.Completed {
			phase = pkg.PhaseChat
		}
		msgs = append(msgs, pkg.Message{
			SessionID: id,
			Role:      pkg.RoleBeneficiary,
			Content:   text,
			Timestamp: now,
			Phase:     phase,
		})
		sess.LastActivity = now
		sess.IsRead = false

		// Escalation short-circuits the workflow: the current question is
		// not recorded as answered.
		if sess.State != pkg.StateUrgent && IsUrgent(text) {
			applyUrgent(sess)
			escalated = true
			msgs = append(msgs, systemMessage(id, now, keywordUrgentNotice))
			return msgs, nil
		}

		if sess.State == pkg.StateIntake && !sess.Intake.Completed {
			q := IntakeSchema[sess.Intake.CurrentIndex]
			if sess.Intake.Answers == nil {
				sess.Intake.Answers = map[string]string{}
			}
			sess.Intake.Answers[q.ID] = text
			sess.Intake.CurrentIndex++
			if sess.Intake.CurrentIndex >= len(IntakeSchema) {
				sess.Intake.Completed = true
				sess.State = pkg.StateWaitingForNurse
				completed = true
				answers = make(map[string]string, len(sess.Intake.Answers))
				for k, v := range sess.Intake.Answers {
					answers[k] = v
				}
			} else {
				msgs = append(msgs, pkg.Message{
					SessionID: id,
					Role:      pkg.RoleAssistant,
					Content:   IntakeSchema[sess.Intake.CurrentIndex].Prompt,
					Timestamp: now,
					Phase:     pkg.PhaseIntake,
				})
			}
		}
		return msgs, nil
	})
	if err != nil {
		return s.squelch("submit_message", id, err)
	}
	if escalated {
		metrics.Escalations.WithLabelValues("keyword").Inc()
		logger.Info("keyword escalation", "session", id)
	}
	if completed {
		s.attachSummary(ctx, id, answers)
	}
	return nil
}

// ManualEscalation is the beneficiary SOS action. It is valid from any
// non-terminal state regardless of intake progress, and a no-op when the
// session is already urgent.
func (s *Service) ManualEscalation(ctx context.Context, id, owner string) error {
	var escalated bool
	err := s.store.Mutate(ctx, id, func(sess *pkg.Session) ([]pkg.Message, error) {
		if sess.Owner != owner {
			return nil, ErrNotFound
		}
		if sess.State.Terminal() {
			return nil, fmt.Errorf("%w: session is %s", ErrInvalidTransition, sess.State)
		}
		if sess.State == pkg.StateUrgent {
			return nil, nil
		}
		now := s.now()
		applyUrgent(sess)
		sess.LastActivity = now
		sess.IsRead = false
		escalated = true
		return []pkg.Message{systemMessage(id, now, manualUrgentNotice)}, nil
	})
	if err != nil {
		return s.squelch("manual_escalation", id, err)
	}
	if escalated {
		metrics.Escalations.WithLabelValues("manual").Inc()
		logger.Info("manual escalation", "session", id)
	}
	return nil
}

// CloseSession ends a session on request of either party. Attempts against
// terminal sessions are no-ops.
func (s *Service) CloseSession(ctx context.Context, id string, by pkg.MessageRole, actor string) error {
	err := s.store.Mutate(ctx, id, func(sess *pkg.Session) ([]pkg.Message, error) {
		if by == pkg.RoleBeneficiary && sess.Owner != actor {
			return nil, ErrNotFound
		}
		if sess.State.Terminal() {
			return nil, fmt.Errorf("%w: session is %s", ErrInvalidTransition, sess.State)
		}
		sess.State = pkg.StateClosed
		return []pkg.Message{systemMessage(id, s.now(), closedNotice)}, nil
	})
	return s.squelch("close", id, err)
}

// NurseJoin moves a queued session to the active nurse chat. Valid only
// from waiting-for-nurse or urgent; a repeated join while already active is
// a no-op so poll races are harmless.
func (s *Service) NurseJoin(ctx context.Context, id, nurseID string) error {
	err := s.store.Mutate(ctx, id, func(sess *pkg.Session) ([]pkg.Message, error) {
		switch sess.State {
		case pkg.StateNurseActive:
			return nil, nil
		case pkg.StateWaitingForNurse, pkg.StateUrgent:
		default:
			return nil, fmt.Errorf("%w: nurse join from %s", ErrInvalidTransition, sess.State)
		}
		now := s.now()
		sess.State = pkg.StateNurseActive
		sess.NurseJoined = true
		sess.IsRead = true
		sess.LastActivity = now
		return []pkg.Message{systemMessage(id, now, nurseJoinedNotice)}, nil
	})
	if err == nil {
		logger.Info("nurse joined", "session", id, "nurse", nurseID)
	}
	return s.squelch("nurse_join", id, err)
}

// NurseReply appends a nurse chat message. Accepted while the session is
// waiting, active, or urgent.
func (s *Service) NurseReply(ctx context.Context, id, nurseID, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("%w: message is empty", ErrValidation)
	}
	err := s.store.Mutate(ctx, id, func(sess *pkg.Session) ([]pkg.Message, error) {
		switch sess.State {
		case pkg.StateWaitingForNurse, pkg.StateNurseActive, pkg.StateUrgent:
		default:
			return nil, fmt.Errorf("%w: nurse reply from %s", ErrInvalidTransition, sess.State)
		}
		now := s.now()
		sess.LastActivity = now
		sess.IsRead = true
		return []pkg.Message{{
			SessionID: id,
			Role:      pkg.RoleNurse,
			Content:   text,
			Timestamp: now,
			Phase:     pkg.PhaseChat,
		}}, nil
	})
	return s.squelch("nurse_reply", id, err)
}

// CompleteCase finalizes a session with the nurse's clinical note. The note
// must be at least 20 characters after trimming; a short note is a
// validation error and mutates nothing.
func (s *Service) CompleteCase(ctx context.Context, id, nurseID, note string) error {
	note = strings.TrimSpace(note)
	if len(note) < minCompletionNote {
		return fmt.Errorf("%w: completion note must be at least %d characters", ErrValidation, minCompletionNote)
	}
	err := s.store.Mutate(ctx, id, func(sess *pkg.Session) ([]pkg.Message, error) {
		switch sess.State {
		case pkg.StateWaitingForNurse, pkg.StateNurseActive, pkg.StateUrgent, pkg.StateInactive:
		default:
			return nil, fmt.Errorf("%w: complete from %s", ErrInvalidTransition, sess.State)
		}
		sess.State = pkg.StateCompleted
		sess.IsRead = true
		return []pkg.Message{{
			SessionID: id,
			Role:      pkg.RoleNurse,
			Content:   fmt.Sprintf("Case completed by %s. Note: %s", nurseID, note),
			Timestamp: s.now(),
			Phase:     pkg.PhaseCompletion,
		}}, nil
	})
	if err == nil {
		logger.Info("case completed", "session", id, "nurse", nurseID)
	}
	return s.squelch("complete_case", id, err)
}

// ListNurseQueue runs the timeout sweep, then returns every actionable
// session ordered urgent-first with most recent activity on top, along with
// the count of sessions currently urgent. Sessions still in intake are
// excluded.
func (s *Service) ListNurseQueue(ctx context.Context) ([]pkg.Session, int, error) {
	s.sweep(ctx)
	list, err := s.store.ListActionable(ctx)
	if err != nil {
		return nil, 0, err
	}
	sort.SliceStable(list, func(i, j int) bool {
		ui := list[i].State == pkg.StateUrgent
		uj := list[j].State == pkg.StateUrgent
		if ui != uj {
			return ui
		}
		return list[i].LastActivity.After(list[j].LastActivity)
	})
	urgent := 0
	for _, sess := range list {
		if sess.State == pkg.StateUrgent {
			urgent++
		}
	}
	metrics.UrgentCases.Set(float64(urgent))
	return list, urgent, nil
}

// Transcript runs the timeout sweep, then returns the session and its
// messages filtered for the viewer (summary-phase entries are nurse-only).
// A nurse opening an unread session marks it read.
func (s *Service) Transcript(ctx context.Context, id string, viewer pkg.MessageRole, viewerID string) (*pkg.Session, []pkg.Message, error) {
	s.sweep(ctx)
	sess, err := s.store.Session(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if viewer == pkg.RoleBeneficiary && sess.Owner != viewerID {
		return nil, nil, ErrNotFound
	}
	if viewer == pkg.RoleNurse && !sess.IsRead {
		err := s.store.Mutate(ctx, id, func(cur *pkg.Session) ([]pkg.Message, error) {
			cur.IsRead = true
			return nil, nil
		})
		if err != nil {
			logger.Warn("mark read failed", "session", id, "err", err)
		} else {
			sess.IsRead = true
		}
	}
	all, err := s.store.Messages(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	visible := make([]pkg.Message, 0, len(all))
	for _, m := range all {
		if m.VisibleTo(viewer) {
			visible = append(visible, m)
		}
	}
	return sess, visible, nil
}

// OwnerSessions returns the consultation history for a beneficiary, newest
// first.
func (s *Service) OwnerSessions(ctx context.Context, owner string) ([]pkg.Session, error) {
	return s.store.OwnerSessions(ctx, owner)
}

// sweep is the two-pass idle-timeout maintenance run executed at the start
// of every queue listing and transcript poll. The hard pass runs first so a
// freshly demoted session always spends at least one sweep interval in the
// inactive state. Both passes are conditional on the current state, so
// redundant sweeps skip already-transitioned sessions.
func (s *Service) sweep(ctx context.Context) {
	now := s.now()
	hardCut := now.Add(-(s.soft + s.grace))
	if n, err := s.store.ExpireDormant(ctx, hardCut, hardTimeoutNotice, now); err != nil {
		logger.Error("hard sweep failed", "err", err)
	} else if n > 0 {
		metrics.SweepTransitions.WithLabelValues("hard").Add(float64(n))
		logger.Info("hard sweep closed sessions", "count", n)
	}
	softCut := now.Add(-s.soft)
	if n, err := s.store.DemoteIdle(ctx, softCut, softTimeoutNotice, now); err != nil {
		logger.Error("soft sweep failed", "err", err)
	} else if n > 0 {
		metrics.SweepTransitions.WithLabelValues("soft").Add(float64(n))
		logger.Info("soft sweep demoted sessions", "count", n)
	}
}

// applyUrgent is the single entry point into the urgent state. Intake is
// frozen: remaining questions are skipped and the completion flag is set so
// later messages are treated as free chat.
func applyUrgent(sess *pkg.Session) {
	sess.State = pkg.StateUrgent
	sess.WasUrgent = true
	sess.Intake.Completed = true
}

// squelch downgrades precondition failures to logged no-ops, per the
// transition contract. Every other error propagates.
func (s *Service) squelch(op, id string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrInvalidTransition) {
		logger.Warn("transition skipped", "op", op, "session", id, "reason", err)
		return nil
	}
	return err
}

func systemMessage(id string, at time.Time, content string) pkg.Message {
	return pkg.Message{
		SessionID: id,
		Role:      pkg.RoleAssistant,
		Content:   content,
		Timestamp: at,
		Phase:     pkg.PhaseSystem,
	}
}
