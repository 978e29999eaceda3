package notifications

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"campusdesk_go/metrics"
	"campusdesk_go/models"
	"campusdesk_go/utils"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// Target selects who receives a notification.
type Target struct {
	Type  string `json:"type"`
	Value string `json:"value,omitempty"`
}

func EnrollmentTarget(enrollment string) Target {
	return Target{Type: models.TargetEnrollment, Value: enrollment}
}

func ClassTarget(class string) Target {
	return Target{Type: models.TargetClass, Value: utils.NormalizeClass(class)}
}

func GlobalTarget() Target {
	return Target{Type: models.TargetGlobal}
}

// Message is the provider-independent payload.
type Message struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	URL   string            `json:"url,omitempty"`
	Data  map[string]string `json:"data,omitempty"`
}

// Result holds delivery counts of one fan-out.
type Result struct {
	SuccessCount int `json:"success_count"`
	FailureCount int `json:"failure_count"`
}

// Add sums two results.
func (r Result) Add(o Result) Result {
	return Result{SuccessCount: r.SuccessCount + o.SuccessCount, FailureCount: r.FailureCount + o.FailureCount}
}

// TokenStore resolves push tokens.
type TokenStore interface {
	// ForEnrollment returns nil, nil when the enrollment has no token.
	ForEnrollment(ctx context.Context, enrollment string) (*models.PushToken, error)
	ForClass(ctx context.Context, class string) ([]models.PushToken, error)
	All(ctx context.Context) ([]models.PushToken, error)
	Save(ctx context.Context, token *models.PushToken) error
	Delete(ctx context.Context, enrollment string) error
}

// FeedQuery selects the feed of one student.
type FeedQuery struct {
	Enrollment string
	Class      string
	Limit      int
}

// LogStore persists delivery logs and serves the per-student feed.
type LogStore interface {
	Append(ctx context.Context, entry *models.NotificationLog) error
	Feed(ctx context.Context, q FeedQuery) ([]models.NotificationLog, error)
	Delete(ctx context.Context, id string) (bool, error)
	Clear(ctx context.Context, enrollment string, at time.Time) error
	Before(ctx context.Context, cutoff time.Time) ([]models.NotificationLog, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// WSHub pushes in-app messages to connected dashboards.
type WSHub interface {
	BroadcastToSubject(subject string, message interface{})
	Broadcast(message interface{})
}

var ErrInvalidTarget = errors.New("invalid notification target")

type queuedNotification struct {
	Target    Target    `json:"target"`
	Message   Message   `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

const redisListKey = "notifications:queue"

// Service fans notifications out to push providers and writes one log per send.
// With a Redis client attached, Enqueue defers the send to a background worker.
type Service struct {
	tokens    TokenStore
	provider  Provider
	logs      LogStore
	wsHub     WSHub
	redis     *redis.Client
	feedLimit int
	now       func() time.Time
}

func NewService(tokens TokenStore, provider Provider, logs LogStore) *Service {
	return &Service{
		tokens:    tokens,
		provider:  provider,
		logs:      logs,
		feedLimit: 100,
		now:       time.Now,
	}
}

// SetWebSocketHub sets the WebSocket hub for in-app notifications
func (s *Service) SetWebSocketHub(hub WSHub) {
	s.wsHub = hub
}

// SetFeedLimit caps the number of feed entries returned.
func (s *Service) SetFeedLimit(n int) {
	if n > 0 {
		s.feedLimit = n
	}
}

// UseQueue routes Enqueue through the Redis list consumed by StartWorker.
func (s *Service) UseQueue(client *redis.Client) {
	s.redis = client
}

// SendToEnrollment delivers to the single token of an enrollment. A missing token is a zero result.
func (s *Service) SendToEnrollment(ctx context.Context, enrollment string, msg Message) (Result, error) {
	tok, err := s.tokens.ForEnrollment(ctx, enrollment)
	if err != nil {
		return Result{}, errors.Wrapf(err, "lookup token for %s", enrollment)
	}
	var tokens []models.PushToken
	if tok != nil {
		tokens = []models.PushToken{*tok}
	}
	return s.deliver(ctx, EnrollmentTarget(enrollment), tokens, msg), nil
}

// SendToClass delivers to every token whose student class matches.
func (s *Service) SendToClass(ctx context.Context, class string, msg Message) (Result, error) {
	target := ClassTarget(class)
	tokens, err := s.tokens.ForClass(ctx, target.Value)
	if err != nil {
		return Result{}, errors.Wrapf(err, "lookup tokens for class %s", target.Value)
	}
	return s.deliver(ctx, target, tokens, msg), nil
}

// SendGlobal delivers to every stored token.
func (s *Service) SendGlobal(ctx context.Context, msg Message) (Result, error) {
	tokens, err := s.tokens.All(ctx)
	if err != nil {
		return Result{}, errors.Wrap(err, "lookup all tokens")
	}
	return s.deliver(ctx, GlobalTarget(), tokens, msg), nil
}

// Send dispatches by target type.
func (s *Service) Send(ctx context.Context, target Target, msg Message) (Result, error) {
	switch target.Type {
	case models.TargetEnrollment:
		if target.Value == "" {
			return Result{}, ErrInvalidTarget
		}
		return s.SendToEnrollment(ctx, target.Value, msg)
	case models.TargetClass:
		if target.Value == "" {
			return Result{}, ErrInvalidTarget
		}
		return s.SendToClass(ctx, target.Value, msg)
	case models.TargetGlobal:
		return s.SendGlobal(ctx, msg)
	default:
		return Result{}, ErrInvalidTarget
	}
}

// deliver is best effort: provider errors become failures, log errors are only logged.
func (s *Service) deliver(ctx context.Context, target Target, tokens []models.PushToken, msg Message) Result {
	var res Result
	if len(tokens) > 0 {
		r, err := s.provider.Send(ctx, tokens, msg)
		if err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"target_type": target.Type,
				"target":      target.Value,
				"tokens":      len(tokens),
			}).Warn("push provider failed")
			r = Result{FailureCount: len(tokens)}
		}
		res = r
	}
	metrics.RecordDelivery(target.Type, res.SuccessCount, res.FailureCount)

	entry := &models.NotificationLog{
		ID:           uuid.NewString(),
		Title:        msg.Title,
		Body:         msg.Body,
		TargetType:   target.Type,
		Target:       target.Value,
		URL:          msg.URL,
		SuccessCount: res.SuccessCount,
		FailureCount: res.FailureCount,
		SentAt:       s.now().UTC(),
	}
	if len(msg.Data) > 0 {
		entry.Data = datatypes.JSONMap{}
		for k, v := range msg.Data {
			entry.Data[k] = v
		}
	}
	if err := s.logs.Append(ctx, entry); err != nil {
		logrus.WithError(err).WithField("target_type", target.Type).Error("failed to write notification log")
	}

	s.broadcast(target, entry)
	return res
}

func (s *Service) broadcast(target Target, entry *models.NotificationLog) {
	if s.wsHub == nil {
		return
	}
	wsMessage := map[string]interface{}{
		"type": "notification",
		"data": entry,
	}
	if target.Type == models.TargetEnrollment {
		s.wsHub.BroadcastToSubject(target.Value, wsMessage)
		return
	}
	s.wsHub.Broadcast(wsMessage)
}

// Enqueue sends in the background. With Redis the item is queued for the worker;
// otherwise it runs in its own goroutine. Errors are logged.
func (s *Service) Enqueue(target Target, msg Message) {
	if s.redis != nil {
		b, err := json.Marshal(queuedNotification{Target: target, Message: msg, CreatedAt: s.now().UTC()})
		if err == nil {
			if err = s.redis.RPush(context.Background(), redisListKey, b).Err(); err == nil {
				return
			}
		}
		log.Printf("[notif] Redis queue failed, sending inline: %v", err)
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				logrus.WithField("panic", r).Error("panic recovered in notification send")
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		if _, err := s.Send(ctx, target, msg); err != nil {
			logrus.WithError(err).WithField("target_type", target.Type).Error("background notification failed")
		}
	}()
}

// StartWorker starts a background worker polling the Redis queue.
func (s *Service) StartWorker(stop <-chan struct{}) {
	if s.redis == nil {
		log.Println("[notif] Redis notifications disabled; worker not started")
		return
	}
	go func() {
		log.Println("[notif] Redis notification worker started")
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		ctx := context.Background()
		for {
			select {
			case <-stop:
				log.Println("[notif] Worker stopping")
				return
			case <-ticker.C:
				s.flushBatch(ctx, 200)
			}
		}
	}()
}

// flushBatch drains up to five sub-batches from the queue per tick.
func (s *Service) flushBatch(ctx context.Context, batchSize int) {
	for i := 0; i < 5; i++ {
		vals, err := s.redis.LRange(ctx, redisListKey, 0, int64(batchSize-1)).Result()
		if err != nil || len(vals) == 0 {
			return
		}
		// Trim immediately to avoid duplicates (best-effort)
		if err = s.redis.LTrim(ctx, redisListKey, int64(len(vals)), -1).Err(); err != nil {
			log.Printf("[notif] LTrim failed: %v", err)
		}
		for _, raw := range vals {
			var q queuedNotification
			if err := json.Unmarshal([]byte(raw), &q); err != nil {
				continue
			}
			if _, err := s.Send(ctx, q.Target, q.Message); err != nil {
				log.Printf("[notif] queued send failed: %v", err)
			}
		}
		if len(vals) < batchSize {
			return
		}
	}
}

// SaveToken upserts the push token of an enrollment.
func (s *Service) SaveToken(ctx context.Context, token *models.PushToken) error {
	token.StudentClass = utils.NormalizeClass(token.StudentClass)
	if token.Kind == "" {
		token.Kind = models.TokenKindFCM
	}
	return s.tokens.Save(ctx, token)
}

// Feed returns global, class and personal entries newest first.
func (s *Service) Feed(ctx context.Context, enrollment, class string) ([]models.NotificationLog, error) {
	return s.logs.Feed(ctx, FeedQuery{
		Enrollment: enrollment,
		Class:      utils.NormalizeClass(class),
		Limit:      s.feedLimit,
	})
}

// DeleteLog removes one log entry.
func (s *Service) DeleteLog(ctx context.Context, id string) (bool, error) {
	return s.logs.Delete(ctx, id)
}

// ClearFeed hides everything currently in the student's feed.
func (s *Service) ClearFeed(ctx context.Context, enrollment string) error {
	return s.logs.Clear(ctx, enrollment, s.now().UTC())
}
