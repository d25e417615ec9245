package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"engagement-engine/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrReminderNotFound = errors.New("reminder not found")

// ReminderService keeps durable reminders. A recurring scheduler tick calls
// DispatchDue; nothing is held in process timers.
type ReminderService struct {
	DB       *gorm.DB
	Notifier Notifier
	Now      func() time.Time
}

func NewReminderService(db *gorm.DB, notifier Notifier) *ReminderService {
	return &ReminderService{DB: db, Notifier: notifier, Now: time.Now}
}

func (s *ReminderService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Schedule stores a pending reminder due at dueAt.
func (s *ReminderService) Schedule(ctx context.Context, userID, kind, message string, dueAt time.Time) (*models.Reminder, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrInvalidUser
	}
	if kind == "" {
		kind = "generic"
	}
	r := models.Reminder{
		ID:      uuid.NewString(),
		UserID:  userID,
		Kind:    kind,
		Message: message,
		DueAt:   dueAt.UTC(),
		Status:  models.ReminderPending,
	}
	if err := s.DB.WithContext(ctx).Create(&r).Error; err != nil {
		return nil, fmt.Errorf("schedule reminder: %w", err)
	}
	return &r, nil
}

// Cancel marks userID's pending reminder cancelled. Cancelling a reminder
// that was already sent or cancelled is a no-op; another user's reminder is
// reported as not found.
func (s *ReminderService) Cancel(ctx context.Context, userID, id string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrInvalidUser
	}
	res := s.DB.WithContext(ctx).Model(&models.Reminder{}).
		Where("id = ? AND user_id = ? AND status = ?", id, userID, models.ReminderPending).
		Update("status", models.ReminderCancelled)
	if res.Error != nil {
		return fmt.Errorf("cancel reminder: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := s.DB.WithContext(ctx).Model(&models.Reminder{}).
			Where("id = ? AND user_id = ?", id, userID).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrReminderNotFound
		}
	}
	return nil
}

// Pending lists userID's pending reminders, soonest first.
func (s *ReminderService) Pending(ctx context.Context, userID string) ([]models.Reminder, error) {
	var out []models.Reminder
	err := s.DB.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, models.ReminderPending).
		Order("due_at ASC").
		Find(&out).Error
	return out, err
}

// DispatchDue publishes every pending reminder whose due time has passed
// and marks it sent. It returns the number dispatched.
func (s *ReminderService) DispatchDue(ctx context.Context) (int, error) {
	now := s.now()
	var due []models.Reminder
	if err := s.DB.WithContext(ctx).
		Where("status = ? AND due_at <= ?", models.ReminderPending, now).
		Order("due_at ASC").
		Find(&due).Error; err != nil {
		return 0, fmt.Errorf("load due reminders: %w", err)
	}

	sent := 0
	for _, r := range due {
		// Claim first so an overlapping dispatcher cannot send it twice.
		res := s.DB.WithContext(ctx).Model(&models.Reminder{}).
			Where("id = ? AND status = ?", r.ID, models.ReminderPending).
			Updates(map[string]any{"status": models.ReminderSent, "sent_at": now})
		if res.Error != nil {
			slog.Error("failed to mark reminder sent", "id", r.ID, "error", res.Error)
			continue
		}
		if res.RowsAffected == 0 {
			continue
		}
		publish(ctx, s.Notifier, Event{
			Kind:   models.NotifyReminder,
			UserID: r.UserID,
			Payload: ReminderEvent{
				ReminderID: r.ID,
				UserID:     r.UserID,
				Kind:       r.Kind,
				Message:    r.Message,
				DueAt:      r.DueAt,
			},
		})
		sent++
	}
	if sent > 0 {
		slog.Info("⏰ reminders dispatched", "count", sent)
	}
	return sent, nil
}
