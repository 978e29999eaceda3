package fines

import (
	"context"
	"errors"

	"campusdesk_go/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore implements Store on MySQL.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Transaction(ctx context.Context, fn func(Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

func (s *GormStore) CreateMany(ctx context.Context, fines []models.Fine) error {
	return s.db.WithContext(ctx).Create(&fines).Error
}

// Get locks the row when called inside a transaction.
func (s *GormStore) Get(ctx context.Context, id uint) (*models.Fine, error) {
	var f models.Fine
	err := s.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).First(&f, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *GormStore) Save(ctx context.Context, fine *models.Fine) error {
	return s.db.WithContext(ctx).Save(fine).Error
}

func (s *GormStore) Delete(ctx context.Context, id uint) (bool, error) {
	res := s.db.WithContext(ctx).Delete(&models.Fine{}, id)
	return res.RowsAffected > 0, res.Error
}

func (s *GormStore) ForEnrollment(ctx context.Context, enrollment string) ([]models.Fine, error) {
	var rows []models.Fine
	err := s.db.WithContext(ctx).Where("enrollment = ?", enrollment).Order("created_at DESC").Find(&rows).Error
	return rows, err
}

func (s *GormStore) All(ctx context.Context) ([]models.Fine, error) {
	var rows []models.Fine
	err := s.db.WithContext(ctx).Order("created_at DESC").Find(&rows).Error
	return rows, err
}

func (s *GormStore) TransactionExists(ctx context.Context, txID string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.PaymentTransaction{}).Where("transaction_id = ?", txID).Count(&n).Error
	return n > 0, err
}

// RecordTransaction relies on the unique index on transaction_id; a collision is ErrDuplicateTransaction.
func (s *GormStore) RecordTransaction(ctx context.Context, tx *models.PaymentTransaction) error {
	err := s.db.WithContext(ctx).Create(tx).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateTransaction
	}
	return err
}

func (s *GormStore) PaidTotal(ctx context.Context, fineID uint) (float64, error) {
	var total float64
	err := s.db.WithContext(ctx).Model(&models.PaymentTransaction{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("fine_id = ?", fineID).
		Scan(&total).Error
	return total, err
}
