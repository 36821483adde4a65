package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Mailer sends the email copy of a notification. Delivery failures do not
// block persisting the in-app row.
type Mailer interface {
	Send(ctx context.Context, userID int64, subject, body string) error
}

// Service handles notification reads and delivery.
type Service struct {
	repo   RepositoryPort
	mailer Mailer
	logger *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// SetMailer wires the optional email channel.
func (s *Service) SetMailer(m Mailer) { s.mailer = m }

// Deliver persists the notification and mirrors it to email. Invoked by the
// background worker, never inline with the triggering request.
func (s *Service) Deliver(ctx context.Context, n Notification) (Notification, error) {
	n.Kind = strings.TrimSpace(n.Kind)
	n.Title = strings.TrimSpace(n.Title)
	if n.UserID <= 0 || n.Kind == "" || n.Title == "" {
		return Notification{}, fmt.Errorf("notifications: user, kind and title are required")
	}
	created, err := s.repo.Insert(ctx, n)
	if err != nil {
		return Notification{}, err
	}
	if s.mailer != nil {
		if err := s.mailer.Send(ctx, n.UserID, n.Title, n.Body); err != nil && s.logger != nil {
			s.logger.Warn("notification email", slog.Any("error", err), slog.Int64("user_id", n.UserID))
		}
	}
	return created, nil
}

// List returns the user's newest notifications.
func (s *Service) List(ctx context.Context, userID int64, limit int) ([]Notification, error) {
	if limit < 1 || limit > 200 {
		limit = 50
	}
	return s.repo.ListForUser(ctx, userID, limit)
}

// UnreadCount returns the user's unread total.
func (s *Service) UnreadCount(ctx context.Context, userID int64) (int, error) {
	return s.repo.UnreadCount(ctx, userID)
}

// MarkRead marks one notification read. Another user's notification, or one
// already read, reports not found.
func (s *Service) MarkRead(ctx context.Context, userID, id int64) error {
	affected, err := s.repo.MarkRead(ctx, userID, id)
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkAllRead marks everything read and reports how many rows changed.
func (s *Service) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	return s.repo.MarkAllRead(ctx, userID)
}
