package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"engagement-engine/models"
	"engagement-engine/utils"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Event is an outbound notification. Payload is serialised as JSON.
type Event struct {
	Kind    models.NotificationKind
	UserID  string
	Payload any
}

// Notifier publishes engine events. Implementations may fail; callers treat
// delivery as best effort.
type Notifier interface {
	Notify(ctx context.Context, evt Event) error
}

type BadgeEarnedEvent struct {
	UserID    string `json:"userId"`
	BadgeCode string `json:"badgeCode"`
	Label     string `json:"label"`
	SeasonID  string `json:"seasonId,omitempty"`
}

type RolePromotionEvent struct {
	UserID   string `json:"userId"`
	RoleName string `json:"roleName"`
	Tier     int    `json:"tier"`
}

type SeasonEvent struct {
	SeasonID  string              `json:"seasonId"`
	Name      string              `json:"name"`
	StartDate time.Time           `json:"startDate"`
	EndDate   time.Time           `json:"endDate"`
	TopScores []models.ScoreEntry `json:"topScores,omitempty"`
}

type ReminderEvent struct {
	ReminderID string    `json:"reminderId"`
	UserID     string    `json:"userId"`
	Kind       string    `json:"kind"`
	Message    string    `json:"message"`
	DueAt      time.Time `json:"dueAt"`
}

// publish sends evt and swallows failures; nothing downstream of a
// notification may unwind engine state.
func publish(ctx context.Context, n Notifier, evt Event) {
	if n == nil {
		return
	}
	if err := n.Notify(ctx, evt); err != nil {
		slog.Warn("notification delivery failed", "kind", evt.Kind, "user_id", evt.UserID, "error", err)
	}
}

const (
	DefaultRetryAfter  = time.Minute
	DefaultMaxAttempts = 10
	maxRetryBackoff    = time.Hour
)

// NotificationService writes every event to the notifications outbox and,
// when a webhook is configured, forwards it to the chat bridge.
type NotificationService struct {
	DB         *gorm.DB
	WebhookURL string
	Token      string
	Client     *http.Client

	// RetryAfter is the minimum outbox age before a retry, and the base of
	// the backoff between failed attempts.
	RetryAfter  time.Duration
	MaxAttempts int
	Now         func() time.Time
}

func NewNotificationService(db *gorm.DB, webhookURL, token string) *NotificationService {
	return &NotificationService{
		DB:          db,
		WebhookURL:  webhookURL,
		Token:       token,
		Client:      utils.HTTPClient,
		RetryAfter:  DefaultRetryAfter,
		MaxAttempts: DefaultMaxAttempts,
		Now:         time.Now,
	}
}

func (s *NotificationService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *NotificationService) retryAfter() time.Duration {
	if s.RetryAfter <= 0 {
		return DefaultRetryAfter
	}
	return s.RetryAfter
}

// backoff doubles the wait after every failed attempt, up to an hour.
func (s *NotificationService) backoff(attempts int) time.Duration {
	d := s.retryAfter()
	for i := 1; i < attempts && d < maxRetryBackoff; i++ {
		d *= 2
	}
	if d > maxRetryBackoff {
		d = maxRetryBackoff
	}
	return d
}

type webhookBody struct {
	ID        string                  `json:"id"`
	Kind      models.NotificationKind `json:"kind"`
	UserID    string                  `json:"user_id,omitempty"`
	Payload   json.RawMessage         `json:"payload"`
	CreatedAt time.Time               `json:"created_at"`
}

// Notify stores evt and attempts webhook delivery. The outbox row is kept
// even when delivery fails so the outbox worker can retry it.
func (s *NotificationService) Notify(ctx context.Context, evt Event) error {
	payload, err := json.Marshal(evt.Payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", evt.Kind, err)
	}
	n := models.Notification{
		ID:        uuid.NewString(),
		Kind:      evt.Kind,
		UserID:    evt.UserID,
		Payload:   string(payload),
		Delivered: s.WebhookURL == "",
		CreatedAt: s.now(),
	}
	if err := s.DB.WithContext(ctx).Create(&n).Error; err != nil {
		return fmt.Errorf("store notification: %w", err)
	}
	if s.WebhookURL == "" {
		return nil
	}
	return s.attempt(ctx, &n)
}

// attempt delivers n once and, on failure, records the attempt and when the
// next one may run.
func (s *NotificationService) attempt(ctx context.Context, n *models.Notification) error {
	err := s.deliver(ctx, n)
	if err == nil {
		return nil
	}
	n.Attempts++
	next := s.now().Add(s.backoff(n.Attempts))
	n.NextAttemptAt = &next
	if uerr := s.DB.WithContext(ctx).Model(n).
		UpdateColumns(map[string]any{"attempts": n.Attempts, "next_attempt_at": next}).Error; uerr != nil {
		slog.Error("failed to record notification attempt", "id", n.ID, "error", uerr)
	}
	return err
}

func (s *NotificationService) deliver(ctx context.Context, n *models.Notification) error {
	body, err := json.Marshal(webhookBody{
		ID:        n.ID,
		Kind:      n.Kind,
		UserID:    n.UserID,
		Payload:   json.RawMessage(n.Payload),
		CreatedAt: n.CreatedAt,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.Token)
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("post notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("notification webhook returned %d: %s", resp.StatusCode, string(msg))
	}

	n.Delivered = true
	return s.DB.WithContext(ctx).Model(n).Update("delivered", true).Error
}

// RetryUndelivered re-sends up to limit outbox rows that have not reached
// the webhook yet. Rows younger than RetryAfter are left to their inline
// delivery, rows in backoff wait, and rows that used up MaxAttempts are
// dropped from the queue. Fewest attempts go first so a failing row cannot
// starve newer ones. It returns how many were delivered.
func (s *NotificationService) RetryUndelivered(ctx context.Context, limit int) (int, error) {
	if s.WebhookURL == "" {
		return 0, nil
	}
	maxAttempts := s.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	now := s.now()
	var pending []models.Notification
	if err := s.DB.WithContext(ctx).
		Where("delivered = ? AND attempts < ? AND created_at <= ?", false, maxAttempts, now.Add(-s.retryAfter())).
		Where("(next_attempt_at IS NULL OR next_attempt_at <= ?)", now).
		Order("attempts ASC, created_at ASC").
		Limit(limit).
		Find(&pending).Error; err != nil {
		return 0, fmt.Errorf("load undelivered notifications: %w", err)
	}

	delivered := 0
	for i := range pending {
		if err := s.attempt(ctx, &pending[i]); err != nil {
			slog.Warn("notification retry failed", "id", pending[i].ID, "kind", pending[i].Kind,
				"attempts", pending[i].Attempts, "error", err)
			continue
		}
		delivered++
	}
	return delivered, nil
}

// Since returns notifications for userID (plus community-wide ones) created
// after the given time, oldest first.
func (s *NotificationService) Since(ctx context.Context, userID string, since time.Time, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var out []models.Notification
	err := s.DB.WithContext(ctx).
		Where("(user_id = ? OR user_id = '') AND created_at > ?", userID, since.UTC()).
		Order("created_at ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}
