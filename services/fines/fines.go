package fines

import (
	"context"
	"fmt"
	"strings"

	"campusdesk_go/models"
	"campusdesk_go/services/notifications"
	"campusdesk_go/utils"

	"github.com/pkg/errors"
)

var (
	ErrNotFound       = errors.New("fine not found")
	ErrInvalidFine    = errors.New("each fine needs an enrollment, a positive amount and a reason")
	ErrInvalidPayment = errors.New("payment needs a transaction id and a positive amount")
	ErrInvalidStatus  = errors.New("unknown fine status")
	ErrAlreadyPaid    = errors.New("fine is already paid")

	// ErrDuplicateTransaction is returned by Store.RecordTransaction when the id is already stored.
	ErrDuplicateTransaction = errors.New("payment transaction already recorded")
)

const (
	ProviderWebhook  = "webhook"
	ProviderMidtrans = "midtrans"
)

// Store persists fines and payment transactions.
type Store interface {
	// Transaction runs fn against a store bound to one database transaction.
	Transaction(ctx context.Context, fn func(Store) error) error
	CreateMany(ctx context.Context, fines []models.Fine) error
	Get(ctx context.Context, id uint) (*models.Fine, error)
	Save(ctx context.Context, fine *models.Fine) error
	Delete(ctx context.Context, id uint) (bool, error)
	ForEnrollment(ctx context.Context, enrollment string) ([]models.Fine, error)
	All(ctx context.Context) ([]models.Fine, error)
	TransactionExists(ctx context.Context, txID string) (bool, error)
	RecordTransaction(ctx context.Context, tx *models.PaymentTransaction) error
	PaidTotal(ctx context.Context, fineID uint) (float64, error)
}

// Notifier queues a push notification.
type Notifier interface {
	Enqueue(target notifications.Target, msg notifications.Message)
}

type Service struct {
	store    Store
	notifier Notifier
	checkout Checkout
}

func NewService(store Store, notifier Notifier) *Service {
	return &Service{store: store, notifier: notifier}
}

// SetCheckout enables online payment of fines.
func (s *Service) SetCheckout(c Checkout) {
	s.checkout = c
}

// NewFine is one entry of a bulk add.
type NewFine struct {
	Enrollment string  `json:"enrollment" validate:"required"`
	Amount     float64 `json:"fine" validate:"gt=0"`
	Reason     string  `json:"reason" validate:"required"`
	Class      string  `json:"class"`
}

// BulkAdd inserts every fine in one transaction and notifies each student.
func (s *Service) BulkAdd(ctx context.Context, entries []NewFine) ([]models.Fine, error) {
	if len(entries) == 0 {
		return nil, ErrInvalidFine
	}
	rows := make([]models.Fine, 0, len(entries))
	for _, e := range entries {
		enrollment := strings.TrimSpace(e.Enrollment)
		reason := strings.TrimSpace(e.Reason)
		if enrollment == "" || reason == "" || e.Amount <= 0 {
			return nil, ErrInvalidFine
		}
		rows = append(rows, models.Fine{
			Enrollment: enrollment,
			Class:      utils.NormalizeClass(e.Class),
			Amount:     e.Amount,
			Reason:     reason,
			Status:     models.FineStatusPending,
		})
	}

	err := s.store.Transaction(ctx, func(tx Store) error {
		return tx.CreateMany(ctx, rows)
	})
	if err != nil {
		return nil, errors.Wrap(err, "insert fines")
	}

	for _, f := range rows {
		s.notify(f.Enrollment, notifications.Message{
			Title: "💰 New Fine Added",
			Body:  fmt.Sprintf("A fine of ₹%s has been added. Reason: %s", formatAmount(f.Amount), f.Reason),
			URL:   "/fine.html",
		})
	}
	return rows, nil
}

// Update carries the optional fields of a fine edit.
type Update struct {
	Amount *float64 `json:"amount"`
	Reason *string  `json:"reason"`
	Status *string  `json:"status"`
}

func validStatus(status string) bool {
	switch status {
	case models.FineStatusPending, models.FineStatusUnpaid, models.FineStatusPartial, models.FineStatusPaid:
		return true
	}
	return false
}

func (s *Service) Update(ctx context.Context, id uint, u Update) (*models.Fine, error) {
	fine, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.Amount != nil {
		if *u.Amount <= 0 {
			return nil, ErrInvalidFine
		}
		fine.Amount = *u.Amount
		if u.Status == nil {
			fine.Status = statusFor(fine.Amount, fine.PaidAmount, fine.Status)
		}
	}
	if u.Reason != nil {
		if strings.TrimSpace(*u.Reason) == "" {
			return nil, ErrInvalidFine
		}
		fine.Reason = strings.TrimSpace(*u.Reason)
	}
	if u.Status != nil {
		if !validStatus(*u.Status) {
			return nil, ErrInvalidStatus
		}
		fine.Status = *u.Status
	}
	if err := s.store.Save(ctx, fine); err != nil {
		return nil, errors.Wrap(err, "update fine")
	}

	s.notify(fine.Enrollment, notifications.Message{
		Title: "✏️ Fine Updated",
		Body:  fmt.Sprintf("Your fine for %s is now ₹%s (%s).", fine.Reason, formatAmount(fine.Amount), fine.Status),
		URL:   "/fine.html",
	})
	return fine, nil
}

func (s *Service) Delete(ctx context.Context, id uint) error {
	ok, err := s.store.Delete(ctx, id)
	if err != nil {
		return errors.Wrap(err, "delete fine")
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id uint) (*models.Fine, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) ForEnrollment(ctx context.Context, enrollment string) ([]models.Fine, error) {
	return s.store.ForEnrollment(ctx, enrollment)
}

func (s *Service) All(ctx context.Context) ([]models.Fine, error) {
	return s.store.All(ctx)
}

// Payment is a successful gateway payment against one fine.
type Payment struct {
	FineID        uint
	TransactionID string
	Amount        float64
	Provider      string
	Status        string
	Raw           []byte
}

// ApplyPayment records the payment once per transaction id and recomputes the fine status.
// A repeated transaction id returns the fine unchanged with applied=false.
func (s *Service) ApplyPayment(ctx context.Context, p Payment) (fine *models.Fine, applied bool, err error) {
	if strings.TrimSpace(p.TransactionID) == "" || p.Amount <= 0 {
		return nil, false, ErrInvalidPayment
	}
	if p.Provider == "" {
		p.Provider = ProviderWebhook
	}

	err = s.store.Transaction(ctx, func(tx Store) error {
		f, err := tx.Get(ctx, p.FineID)
		if err != nil {
			return err
		}
		fine = f

		exists, err := tx.TransactionExists(ctx, p.TransactionID)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}

		rec := &models.PaymentTransaction{
			FineID:        p.FineID,
			TransactionID: p.TransactionID,
			Provider:      p.Provider,
			Amount:        p.Amount,
			Status:        p.Status,
		}
		if len(p.Raw) > 0 {
			rec.Payload = p.Raw
		}
		if err := tx.RecordTransaction(ctx, rec); err != nil {
			if errors.Is(err, ErrDuplicateTransaction) {
				return nil
			}
			return err
		}

		paid, err := tx.PaidTotal(ctx, p.FineID)
		if err != nil {
			return err
		}
		f.PaidAmount = utils.Round2(paid)
		f.Status = statusFor(f.Amount, f.PaidAmount, f.Status)
		applied = true
		return tx.Save(ctx, f)
	})
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return nil, false, ErrNotFound
		}
		return nil, false, errors.Wrap(err, "apply payment")
	}

	if applied {
		s.notify(fine.Enrollment, notifications.Message{
			Title: "✅ Payment Received",
			Body:  fmt.Sprintf("We received ₹%s for your fine (%s). Status: %s.", formatAmount(p.Amount), fine.Reason, fine.Status),
			URL:   "/fine.html",
		})
	}
	return fine, applied, nil
}

// statusFor returns Paid when paid covers the amount and Partial when something was paid.
// With nothing paid a Paid fine falls back to Pending; other statuses are kept.
func statusFor(amount, paid float64, current string) string {
	switch {
	case paid > 0 && paid >= amount:
		return models.FineStatusPaid
	case paid > 0:
		return models.FineStatusPartial
	case current == models.FineStatusPaid || current == models.FineStatusPartial:
		return models.FineStatusPending
	default:
		return current
	}
}

// Outstanding is what remains to be paid on a fine.
func Outstanding(f *models.Fine) float64 {
	left := utils.Round2(f.Amount - f.PaidAmount)
	if left < 0 {
		return 0
	}
	return left
}

func formatAmount(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.2f", v)
}

func (s *Service) notify(enrollment string, msg notifications.Message) {
	if s.notifier != nil {
		s.notifier.Enqueue(notifications.EnrollmentTarget(enrollment), msg)
	}
}
