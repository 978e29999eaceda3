package notifications

import (
	"context"
	"errors"
	"time"

	"campusdesk_go/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormTokenStore keeps push tokens in MySQL.
type GormTokenStore struct {
	db *gorm.DB
}

func NewGormTokenStore(db *gorm.DB) *GormTokenStore {
	return &GormTokenStore{db: db}
}

func (s *GormTokenStore) ForEnrollment(ctx context.Context, enrollment string) (*models.PushToken, error) {
	var tok models.PushToken
	err := s.db.WithContext(ctx).Where("enrollment = ?", enrollment).First(&tok).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tok, nil
}

func (s *GormTokenStore) ForClass(ctx context.Context, class string) ([]models.PushToken, error) {
	var toks []models.PushToken
	err := s.db.WithContext(ctx).Where("student_class = ?", class).Find(&toks).Error
	return toks, err
}

func (s *GormTokenStore) All(ctx context.Context) ([]models.PushToken, error) {
	var toks []models.PushToken
	err := s.db.WithContext(ctx).Find(&toks).Error
	return toks, err
}

// Save upserts by enrollment.
func (s *GormTokenStore) Save(ctx context.Context, token *models.PushToken) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "enrollment"}},
		DoUpdates: clause.AssignmentColumns([]string{"token", "kind", "student_class", "updated_at"}),
	}).Create(token).Error
}

func (s *GormTokenStore) Delete(ctx context.Context, enrollment string) error {
	return s.db.WithContext(ctx).Unscoped().Where("enrollment = ?", enrollment).Delete(&models.PushToken{}).Error
}

// GormLogStore keeps notification logs and clear watermarks in MySQL.
type GormLogStore struct {
	db *gorm.DB
}

func NewGormLogStore(db *gorm.DB) *GormLogStore {
	return &GormLogStore{db: db}
}

func (s *GormLogStore) Append(ctx context.Context, entry *models.NotificationLog) error {
	return s.db.WithContext(ctx).Create(entry).Error
}

func (s *GormLogStore) Feed(ctx context.Context, q FeedQuery) ([]models.NotificationLog, error) {
	db := s.db.WithContext(ctx)

	var clear models.NotificationClear
	var since time.Time
	if q.Enrollment != "" {
		err := db.Where("enrollment = ?", q.Enrollment).First(&clear).Error
		if err == nil {
			since = clear.ClearedAt
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	cond := db.Where("target_type = ?", models.TargetGlobal)
	if q.Class != "" {
		cond = cond.Or("target_type = ? AND target = ?", models.TargetClass, q.Class)
	}
	if q.Enrollment != "" {
		cond = cond.Or("target_type = ? AND target = ?", models.TargetEnrollment, q.Enrollment)
	}

	query := db.Model(&models.NotificationLog{}).Where(cond)
	if !since.IsZero() {
		query = query.Where("sent_at > ?", since)
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}

	var logs []models.NotificationLog
	err := query.Order("sent_at DESC").Find(&logs).Error
	return logs, err
}

func (s *GormLogStore) Delete(ctx context.Context, id string) (bool, error) {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.NotificationLog{})
	return res.RowsAffected > 0, res.Error
}

func (s *GormLogStore) Clear(ctx context.Context, enrollment string, at time.Time) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "enrollment"}},
		DoUpdates: clause.AssignmentColumns([]string{"cleared_at"}),
	}).Create(&models.NotificationClear{Enrollment: enrollment, ClearedAt: at}).Error
}

func (s *GormLogStore) Before(ctx context.Context, cutoff time.Time) ([]models.NotificationLog, error) {
	var logs []models.NotificationLog
	err := s.db.WithContext(ctx).Where("sent_at < ?", cutoff).Order("sent_at ASC").Find(&logs).Error
	return logs, err
}

func (s *GormLogStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("sent_at < ?", cutoff).Delete(&models.NotificationLog{})
	return res.RowsAffected, res.Error
}
