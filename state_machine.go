package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

const (
	textCodeInvalidTransition = "INVALID_INVITATION_TRANSITION"
)

// ErrInvalidTransition is returned when a requested status change is not allowed.
var ErrInvalidTransition = goerrors.New("invalid invitation state transition", goerrors.CategoryValidation).
	WithTextCode(textCodeInvalidTransition).
	WithCode(goerrors.CodeBadRequest)

// TransitionMetadata captures extra context for a transition.
type TransitionMetadata struct {
	Reason   string
	Metadata map[string]any
}

// TransitionContext is passed into hooks for additional processing.
type TransitionContext struct {
	Actor      ActorRef
	Invitation *Invitation
	From       InvitationStatus
	To         InvitationStatus
	Meta       TransitionMetadata
}

// TransitionHook is executed before or after a transition.
type TransitionHook func(ctx context.Context, tc TransitionContext) error

// TransitionOption customizes a single transition.
type TransitionOption func(*transitionOptions)

// InvitationStateMachine moves invitations through their lifecycle. The
// terminal statuses (accepted, declined) can never be left: re-resolving a
// resolved invitation fails with ErrAlreadyResolved.
type InvitationStateMachine interface {
	Transition(ctx context.Context, tx bun.IDB, actor ActorRef, invitation *Invitation, target InvitationStatus, opts ...TransitionOption) error
	CanTransition(from, to InvitationStatus) bool
}

// StateMachineOption customizes state machine construction.
type StateMachineOption func(*invitationStateMachine)

// WithStateMachineClock injects a custom clock (useful for tests).
func WithStateMachineClock(clock func() time.Time) StateMachineOption {
	return func(sm *invitationStateMachine) {
		if clock != nil {
			sm.now = clock
		}
	}
}

// WithStateMachineActivitySink sets the ActivitySink used to publish lifecycle events.
func WithStateMachineActivitySink(sink ActivitySink) StateMachineOption {
	return func(sm *invitationStateMachine) {
		sm.activitySink = normalizeActivitySink(sink)
	}
}

// WithStateMachineLogger overrides the logger used for sink failures.
func WithStateMachineLogger(logger Logger) StateMachineOption {
	return func(sm *invitationStateMachine) {
		if logger != nil {
			sm.logger = logger
		}
	}
}

// WithTransitionReason sets the human-readable reason for the transition.
func WithTransitionReason(reason string) TransitionOption {
	return func(opts *transitionOptions) {
		opts.metadata.Reason = reason
	}
}

// WithTransitionMetadata merges metadata into the transition context.
func WithTransitionMetadata(metadata map[string]any) TransitionOption {
	return func(opts *transitionOptions) {
		if len(metadata) == 0 {
			return
		}
		if opts.metadata.Metadata == nil {
			opts.metadata.Metadata = make(map[string]any, len(metadata))
		}
		for k, v := range metadata {
			opts.metadata.Metadata[k] = v
		}
	}
}

// WithBeforeTransitionHook adds a hook executed before the status update.
func WithBeforeTransitionHook(h TransitionHook) TransitionOption {
	return func(opts *transitionOptions) {
		if h != nil {
			opts.beforeHooks = append(opts.beforeHooks, h)
		}
	}
}

// WithAfterTransitionHook adds a hook executed after the status update succeeds.
func WithAfterTransitionHook(h TransitionHook) TransitionOption {
	return func(opts *transitionOptions) {
		if h != nil {
			opts.afterHooks = append(opts.afterHooks, h)
		}
	}
}

// NewInvitationStateMachine returns the default implementation backed by the
// provided repository.
func NewInvitationStateMachine(invitations Invitations, opts ...StateMachineOption) InvitationStateMachine {
	sm := &invitationStateMachine{
		invitations: invitations,
		transitions: map[InvitationStatus]map[InvitationStatus]struct{}{
			InvitationPending: {
				InvitationAccepted: {},
				InvitationDeclined: {},
			},
		},
		now:          time.Now,
		activitySink: noopActivitySink{},
		logger:       defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sm)
		}
	}

	return sm
}

type invitationStateMachine struct {
	invitations  Invitations
	transitions  map[InvitationStatus]map[InvitationStatus]struct{}
	now          func() time.Time
	activitySink ActivitySink
	logger       Logger
}

type transitionOptions struct {
	metadata    TransitionMetadata
	beforeHooks []TransitionHook
	afterHooks  []TransitionHook
}

func (o *transitionOptions) cloneMetadata() TransitionMetadata {
	var cloned map[string]any
	if len(o.metadata.Metadata) > 0 {
		cloned = make(map[string]any, len(o.metadata.Metadata))
		for k, v := range o.metadata.Metadata {
			cloned[k] = v
		}
	}

	return TransitionMetadata{
		Reason:   o.metadata.Reason,
		Metadata: cloned,
	}
}

func (sm *invitationStateMachine) CanTransition(from, to InvitationStatus) bool {
	targets, ok := sm.transitions[from]
	if !ok {
		return false
	}
	_, ok = targets[to]
	return ok
}

func (sm *invitationStateMachine) Transition(ctx context.Context, tx bun.IDB, actor ActorRef, invitation *Invitation, target InvitationStatus, opts ...TransitionOption) error {
	if invitation == nil {
		return ErrInvalidTransition.WithMetadata(map[string]any{
			"target": target,
			"reason": "invitation is nil",
		})
	}

	from := invitation.Status
	if from == "" {
		from = InvitationPending
	}

	if target == "" {
		return ErrInvalidTransition.WithMetadata(map[string]any{
			"reason": "target status is empty",
		})
	}

	if from != InvitationPending {
		return ErrAlreadyResolved
	}

	if !sm.CanTransition(from, target) {
		return ErrInvalidTransition.WithMetadata(map[string]any{
			"from": from,
			"to":   target,
		})
	}

	options := &transitionOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}

	ctxData := TransitionContext{
		Actor:      actor,
		Invitation: invitation,
		From:       from,
		To:         target,
		Meta:       options.cloneMetadata(),
	}

	for _, hook := range options.beforeHooks {
		if err := hook(ctx, ctxData); err != nil {
			return err
		}
	}

	flipped, err := sm.invitations.ResolvePendingTx(ctx, tx, invitation.ID, target)
	if err != nil {
		return err
	}

	// A concurrent resolver won the flip; the in-memory status was stale.
	if !flipped {
		return ErrAlreadyResolved
	}

	invitation.Status = target

	for _, hook := range options.afterHooks {
		if err := hook(ctx, ctxData); err != nil {
			return err
		}
	}

	sm.recordActivity(ctx, ActivityEvent{
		EventType:  eventForStatus(target),
		Actor:      actor,
		AccountID:  invitation.AccountID.String(),
		FromStatus: from,
		ToStatus:   target,
		Metadata:   sm.transitionMetadata(ctxData.Meta),
		OccurredAt: sm.now(),
	})

	return nil
}

func (sm *invitationStateMachine) recordActivity(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = sm.now()
	}
	if err := sm.activitySink.Record(ctx, event); err != nil {
		sm.logger.Error("activity sink record failed: %v", err)
	}
}

func (sm *invitationStateMachine) transitionMetadata(meta TransitionMetadata) map[string]any {
	if meta.Reason == "" && len(meta.Metadata) == 0 {
		return nil
	}

	out := make(map[string]any, len(meta.Metadata)+1)
	for k, v := range meta.Metadata {
		out[k] = v
	}
	if meta.Reason != "" {
		out["reason"] = meta.Reason
	}
	return out
}

func eventForStatus(status InvitationStatus) ActivityEventType {
	if status == InvitationAccepted {
		return ActivityEventInvitationAccepted
	}
	return ActivityEventInvitationDeclined
}
