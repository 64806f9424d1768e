package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "expo-engine/backend/pkg/errors"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func detected(priority int) Lifecycle {
	deadline := now.Add(72 * time.Hour)
	return Lifecycle{Status: StatusDetected, Priority: priority, Deadline: &deadline}
}

func TestMachine_FullResolution(t *testing.T) {
	m := NewMachine(2)

	l, err := m.Apply(detected(4), ActionAssign, TransitionPayload{ReviewerID: "rev-1"}, now)
	require.NoError(t, err)
	assert.Equal(t, StatusInReview, l.Status)
	require.NotNil(t, l.ReviewStartedAt)

	later := now.Add(90 * time.Minute)
	l, err = m.Apply(l, ActionResolve, TransitionPayload{
		ActorID:          "coord-1",
		ResolutionAction: "reprogramar",
		Description:      "活动 B 推迟一小时",
	}, later)
	require.NoError(t, err)
	assert.Equal(t, StatusResolved, l.Status)
	require.NotNil(t, l.ResolutionHours)
	assert.InDelta(t, 1.5, *l.ResolutionHours, 0.001)
	assert.Len(t, l.Notifications, 2)
	assert.Equal(t, "rev-1", l.Notifications[0].Recipient)
	assert.Equal(t, DefaultChannel, l.Notifications[1].Channel)
}

func TestMachine_ApprovalFlow(t *testing.T) {
	m := NewMachine(2)
	start := detected(2)
	start.RequiresApproval = true

	l, err := m.Apply(start, ActionAssign, TransitionPayload{ReviewerID: "rev-1"}, now)
	require.NoError(t, err)
	l, err = m.Apply(l, ActionResolve, TransitionPayload{ActorID: "rev-1", ResolutionAction: "mover", Description: "换到 Hall 2"}, now)
	require.NoError(t, err)
	assert.Equal(t, StatusResolving, l.Status)
	assert.Nil(t, l.ResolvedAt)

	_, err = m.Apply(l, ActionApprove, TransitionPayload{}, now)
	assert.True(t, errors.Is(err, pkgerrors.ErrConstraintViolation))

	l, err = m.Apply(l, ActionApprove, TransitionPayload{ActorID: "boss"}, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, StatusResolved, l.Status)
	require.NotNil(t, l.ApprovedBy)
	assert.Equal(t, "boss", *l.ApprovedBy)
}

func TestMachine_TerminalStatesRejectEverything(t *testing.T) {
	m := NewMachine(2)
	actions := []Action{ActionAssign, ActionResolve, ActionApprove, ActionEscalate, ActionIgnore, ActionCancel}
	payload := TransitionPayload{
		ActorID: "x", ReviewerID: "x", ResolutionAction: "x", Description: "x",
		EscalateTo: "x", Reason: "x", Justification: "x",
	}

	for _, status := range []string{StatusResolved, StatusIgnored, StatusCancelled} {
		cur := Lifecycle{Status: status, Priority: 5, Notifications: []Notification{{Type: "t"}}}
		for _, a := range actions {
			got, err := m.Apply(cur, a, payload, now)
			require.Error(t, err, "%s/%s", status, a)
			assert.True(t, errors.Is(err, pkgerrors.ErrInvalidTransition))
			assert.Equal(t, cur, got)
		}
	}
}

func TestMachine_IllegalSourceState(t *testing.T) {
	m := NewMachine(2)

	_, err := m.Apply(detected(5), ActionResolve, TransitionPayload{ActorID: "a", ResolutionAction: "a", Description: "a"}, now)
	assert.True(t, errors.Is(err, pkgerrors.ErrInvalidTransition))

	_, err = m.Apply(detected(5), ActionEscalate, TransitionPayload{EscalateTo: "c", Reason: "r"}, now)
	assert.True(t, errors.Is(err, pkgerrors.ErrInvalidTransition))

	_, err = m.Apply(detected(5), Action("borrar"), TransitionPayload{}, now)
	assert.True(t, errors.Is(err, pkgerrors.ErrInvalidTransition))
}

func TestMachine_EscalationFloor(t *testing.T) {
	m := NewMachine(3)
	l, err := m.Apply(detected(2), ActionAssign, TransitionPayload{ReviewerID: "r"}, now)
	require.NoError(t, err)

	l, err = m.Apply(l, ActionEscalate, TransitionPayload{EscalateTo: "coordinacion", Reason: "sin respuesta"}, now)
	require.NoError(t, err)
	assert.Equal(t, StatusEscalated, l.Status)
	assert.Equal(t, 1, l.Priority)
	assert.True(t, l.IsUrgent)
	assert.Equal(t, "coordinacion", l.Notifications[len(l.Notifications)-1].Recipient)

	// 升级后可以重新指派
	l, err = m.Apply(l, ActionAssign, TransitionPayload{ReviewerID: "r2"}, now)
	require.NoError(t, err)
	assert.Equal(t, StatusInReview, l.Status)
}

func TestMachine_IgnoreRequiresJustification(t *testing.T) {
	m := NewMachine(2)
	cur := detected(5)

	got, err := m.Apply(cur, ActionIgnore, TransitionPayload{}, now)
	assert.True(t, errors.Is(err, pkgerrors.ErrConstraintViolation))
	assert.Equal(t, cur, got)

	got, err = m.Apply(cur, ActionIgnore, TransitionPayload{Justification: "falso positivo"}, now)
	require.NoError(t, err)
	assert.Equal(t, StatusIgnored, got.Status)
	assert.NotNil(t, got.ResolvedAt)
}

func TestMachine_NotificationsNotShared(t *testing.T) {
	m := NewMachine(2)
	cur := detected(5)
	cur.Notifications = make([]Notification, 1, 4)

	next, err := m.Apply(cur, ActionCancel, TransitionPayload{Reason: "evento cancelado"}, now)
	require.NoError(t, err)
	assert.Len(t, cur.Notifications, 1)
	assert.Len(t, next.Notifications, 2)
	assert.Equal(t, StatusCancelled, next.Status)
}

func TestLifecycle_IsExpired(t *testing.T) {
	l := detected(5)
	assert.False(t, l.IsExpired(now))
	assert.True(t, l.IsExpired(now.Add(73*time.Hour)))

	l.Status = StatusResolved
	assert.False(t, l.IsExpired(now.Add(73*time.Hour)))

	l = Lifecycle{Status: StatusDetected}
	assert.False(t, l.IsExpired(now.Add(1000*time.Hour)))
}

func TestParseAction(t *testing.T) {
	a, ok := ParseAction(" escalar ")
	assert.True(t, ok)
	assert.Equal(t, ActionEscalate, a)

	_, ok = ParseAction("borrar")
	assert.False(t, ok)
}

func TestMachine_SweepOverdue(t *testing.T) {
	m := NewMachine(2)
	afterDeadline := now.Add(73 * time.Hour)

	// 未超期不处理
	l, outcome, err := m.SweepOverdue(detected(6), "direccion", "超期", now)
	require.NoError(t, err)
	assert.Equal(t, SweepNone, outcome)
	assert.False(t, l.IsUrgent)

	// 待处理冲突仅标记紧急
	l, outcome, err = m.SweepOverdue(detected(6), "direccion", "超期", afterDeadline)
	require.NoError(t, err)
	assert.Equal(t, SweepFlagged, outcome)
	assert.Equal(t, StatusDetected, l.Status)
	assert.True(t, l.IsUrgent)
	require.Len(t, l.Notifications, 1)
	assert.Equal(t, NotificationOverdue, l.Notifications[0].Type)
	assert.Equal(t, "direccion", l.Notifications[0].Recipient)

	// 已标记的不重复处理
	_, outcome, err = m.SweepOverdue(l, "direccion", "超期", afterDeadline)
	require.NoError(t, err)
	assert.Equal(t, SweepNone, outcome)

	// 审核中的强制升级
	inReview, err := m.Apply(detected(6), ActionAssign, TransitionPayload{ReviewerID: "rev-1"}, now)
	require.NoError(t, err)
	l, outcome, err = m.SweepOverdue(inReview, "direccion", "超期", afterDeadline)
	require.NoError(t, err)
	assert.Equal(t, SweepEscalated, outcome)
	assert.Equal(t, StatusEscalated, l.Status)
	assert.Equal(t, "direccion", l.EscalatedTo)
	assert.Equal(t, 4, l.Priority)
}

func TestMachine_ReassignExtendsExpiredDeadline(t *testing.T) {
	m := NewMachine(2).WithReviewWindow(72 * time.Hour)
	afterDeadline := now.Add(73 * time.Hour)

	l, err := m.Apply(detected(6), ActionAssign, TransitionPayload{ReviewerID: "rev-1"}, now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(72*time.Hour), *l.Deadline, "期限未过时不顺延")

	l, outcome, err := m.SweepOverdue(l, "direccion", "超期", afterDeadline)
	require.NoError(t, err)
	require.Equal(t, SweepEscalated, outcome)

	// 已升级且紧急的冲突再次巡检不变
	assert.True(t, l.SweepSettled())

	l, err = m.Apply(l, ActionAssign, TransitionPayload{ReviewerID: "rev-2"}, afterDeadline)
	require.NoError(t, err)
	require.NotNil(t, l.Deadline)
	assert.Equal(t, afterDeadline.Add(72*time.Hour), *l.Deadline)
	assert.False(t, l.IsExpired(afterDeadline.Add(time.Hour)))
	assert.False(t, l.SweepSettled(), "重新指派后应重新接受巡检")
}
