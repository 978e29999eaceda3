package notifications

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"campusdesk_go/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memTokens struct {
	byEnrollment map[string]models.PushToken
}

func newMemTokens(toks ...models.PushToken) *memTokens {
	m := &memTokens{byEnrollment: map[string]models.PushToken{}}
	for _, t := range toks {
		m.byEnrollment[t.Enrollment] = t
	}
	return m
}

func (m *memTokens) ForEnrollment(_ context.Context, enrollment string) (*models.PushToken, error) {
	t, ok := m.byEnrollment[enrollment]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (m *memTokens) ForClass(_ context.Context, class string) ([]models.PushToken, error) {
	var out []models.PushToken
	for _, t := range m.byEnrollment {
		if t.StudentClass == class {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memTokens) All(_ context.Context) ([]models.PushToken, error) {
	var out []models.PushToken
	for _, t := range m.byEnrollment {
		out = append(out, t)
	}
	return out, nil
}

func (m *memTokens) Save(_ context.Context, token *models.PushToken) error {
	m.byEnrollment[token.Enrollment] = *token
	return nil
}

func (m *memTokens) Delete(_ context.Context, enrollment string) error {
	delete(m.byEnrollment, enrollment)
	return nil
}

type memLogs struct {
	mu      sync.Mutex
	entries []models.NotificationLog
	clears  map[string]time.Time
}

func newMemLogs() *memLogs {
	return &memLogs{clears: map[string]time.Time{}}
}

func (m *memLogs) Append(_ context.Context, e *models.NotificationLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *e)
	return nil
}

func (m *memLogs) Feed(_ context.Context, q FeedQuery) ([]models.NotificationLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	since := m.clears[q.Enrollment]
	var out []models.NotificationLog
	for _, e := range m.entries {
		match := e.TargetType == models.TargetGlobal ||
			(e.TargetType == models.TargetClass && e.Target == q.Class) ||
			(e.TargetType == models.TargetEnrollment && e.Target == q.Enrollment)
		if match && e.SentAt.After(since) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SentAt.After(out[j].SentAt) })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *memLogs) Delete(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.entries {
		if e.ID == id {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (m *memLogs) Clear(_ context.Context, enrollment string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clears[enrollment] = at
	return nil
}

func (m *memLogs) Before(context.Context, time.Time) ([]models.NotificationLog, error) {
	return nil, nil
}

func (m *memLogs) DeleteBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

type stubProvider struct {
	calls  [][]models.PushToken
	result func(tokens []models.PushToken) (Result, error)
}

func (p *stubProvider) Send(_ context.Context, tokens []models.PushToken, _ Message) (Result, error) {
	p.calls = append(p.calls, tokens)
	if p.result != nil {
		return p.result(tokens)
	}
	return Result{SuccessCount: len(tokens)}, nil
}

type recordingHub struct {
	subjects  []string
	broadcast int
}

func (h *recordingHub) BroadcastToSubject(subject string, _ interface{}) {
	h.subjects = append(h.subjects, subject)
}

func (h *recordingHub) Broadcast(interface{}) { h.broadcast++ }

func tok(enrollment, class string) models.PushToken {
	return models.PushToken{Enrollment: enrollment, Token: "tok-" + enrollment, Kind: models.TokenKindFCM, StudentClass: class}
}

func TestSendToEnrollmentWithoutTokenReturnsZero(t *testing.T) {
	provider := &stubProvider{}
	logs := newMemLogs()
	svc := NewService(newMemTokens(), provider, logs)

	res, err := svc.SendToEnrollment(context.Background(), "0101CS221001", Message{Title: "hi", Body: "there"})

	require.NoError(t, err)
	assert.Equal(t, Result{}, res)
	assert.Empty(t, provider.calls)
	require.Len(t, logs.entries, 1)
	assert.Equal(t, models.TargetEnrollment, logs.entries[0].TargetType)
	assert.Equal(t, 0, logs.entries[0].SuccessCount)
}

func TestSendToClassUsesNormalizedClass(t *testing.T) {
	provider := &stubProvider{}
	logs := newMemLogs()
	svc := NewService(newMemTokens(tok("E1", "CSEA"), tok("E2", "CSEA"), tok("E3", "MEB")), provider, logs)

	res, err := svc.SendToClass(context.Background(), "cse-a", Message{Title: "t", Body: "b", URL: "/notice.html"})

	require.NoError(t, err)
	assert.Equal(t, Result{SuccessCount: 2}, res)
	require.Len(t, provider.calls, 1)
	assert.Len(t, provider.calls[0], 2)
	assert.Equal(t, "CSEA", logs.entries[0].Target)
	assert.Equal(t, "/notice.html", logs.entries[0].URL)
}

func TestProviderErrorCountsEveryTokenAsFailure(t *testing.T) {
	provider := &stubProvider{result: func([]models.PushToken) (Result, error) {
		return Result{}, errors.New("fcm down")
	}}
	logs := newMemLogs()
	svc := NewService(newMemTokens(tok("E1", "A"), tok("E2", "B"), tok("E3", "C")), provider, logs)

	res, err := svc.SendGlobal(context.Background(), Message{Title: "t"})

	require.NoError(t, err)
	assert.Equal(t, Result{FailureCount: 3}, res)
	assert.Equal(t, 3, logs.entries[0].FailureCount)
}

func TestSendRejectsInvalidTargets(t *testing.T) {
	svc := NewService(newMemTokens(), &stubProvider{}, newMemLogs())
	for _, target := range []Target{{Type: "bogus"}, {Type: models.TargetClass}, {Type: models.TargetEnrollment}} {
		_, err := svc.Send(context.Background(), target, Message{})
		assert.ErrorIs(t, err, ErrInvalidTarget, target.Type)
	}
}

func TestHubReceivesInAppMessages(t *testing.T) {
	hub := &recordingHub{}
	svc := NewService(newMemTokens(tok("E1", "A")), &stubProvider{}, newMemLogs())
	svc.SetWebSocketHub(hub)

	_, err := svc.SendToEnrollment(context.Background(), "E1", Message{Title: "x"})
	require.NoError(t, err)
	_, err = svc.SendGlobal(context.Background(), Message{Title: "y"})
	require.NoError(t, err)

	assert.Equal(t, []string{"E1"}, hub.subjects)
	assert.Equal(t, 1, hub.broadcast)
}

func TestFeedRespectsClearWatermark(t *testing.T) {
	logs := newMemLogs()
	svc := NewService(newMemTokens(), &stubProvider{}, logs)
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	current := base
	svc.now = func() time.Time { return current }
	ctx := context.Background()

	_, _ = svc.SendGlobal(ctx, Message{Title: "old global"})
	current = base.Add(time.Minute)
	_, _ = svc.SendToClass(ctx, "CSE A", Message{Title: "class"})
	current = base.Add(2 * time.Minute)
	_, _ = svc.SendToEnrollment(ctx, "E9", Message{Title: "personal"})
	_, _ = svc.SendToEnrollment(ctx, "E8", Message{Title: "someone else"})

	feed, err := svc.Feed(ctx, "E9", "cse-a")
	require.NoError(t, err)
	require.Len(t, feed, 3)
	assert.Equal(t, "personal", feed[0].Title)
	assert.Equal(t, "old global", feed[2].Title)

	current = base.Add(3 * time.Minute)
	require.NoError(t, svc.ClearFeed(ctx, "E9"))
	current = base.Add(4 * time.Minute)
	_, _ = svc.SendGlobal(ctx, Message{Title: "new global"})

	feed, err = svc.Feed(ctx, "E9", "CSEA")
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.Equal(t, "new global", feed[0].Title)
	assert.Len(t, logs.entries, 5)
}

func TestSaveTokenNormalizesClassAndDefaultsKind(t *testing.T) {
	tokens := newMemTokens()
	svc := NewService(tokens, &stubProvider{}, newMemLogs())

	require.NoError(t, svc.SaveToken(context.Background(), &models.PushToken{Enrollment: "E1", Token: "abc", StudentClass: "cse b"}))

	saved := tokens.byEnrollment["E1"]
	assert.Equal(t, "CSEB", saved.StudentClass)
	assert.Equal(t, models.TokenKindFCM, saved.Kind)
}

func TestMultiProviderSplitsByKind(t *testing.T) {
	fcm := &stubProvider{}
	web := &stubProvider{result: func(tokens []models.PushToken) (Result, error) {
		return Result{SuccessCount: 0, FailureCount: len(tokens)}, nil
	}}
	multi := NewMultiProvider().Register(models.TokenKindFCM, fcm).Register(models.TokenKindWebPush, web)

	res, err := multi.Send(context.Background(), []models.PushToken{
		{Enrollment: "A", Kind: "fcm"},
		{Enrollment: "B", Kind: ""},
		{Enrollment: "C", Kind: "webpush"},
		{Enrollment: "D", Kind: "apns"},
	}, Message{})

	require.NoError(t, err)
	assert.Equal(t, Result{SuccessCount: 2, FailureCount: 2}, res)
	require.Len(t, fcm.calls, 1)
	assert.Len(t, fcm.calls[0], 2)
}
