package attendance

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

func (s *GormStore) Override(ctx context.Context, enrollment string) (*models.AttendanceOverride, error) {
	var o models.AttendanceOverride
	err := s.db.WithContext(ctx).Where("enrollment = ?", enrollment).First(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *GormStore) Overrides(ctx context.Context, enrollments []string) (map[string]models.AttendanceOverride, error) {
	out := map[string]models.AttendanceOverride{}
	if len(enrollments) == 0 {
		return out, nil
	}
	var rows []models.AttendanceOverride
	if err := s.db.WithContext(ctx).Where("enrollment IN ?", enrollments).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, o := range rows {
		out[o.Enrollment] = o
	}
	return out, nil
}

func (s *GormStore) Counts(ctx context.Context, enrollment string) (int, int, error) {
	var row struct {
		Total   int
		Present int
	}
	err := s.db.WithContext(ctx).Model(&models.AttendanceRecord{}).
		Select("COUNT(*) AS total, COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS present", models.AttendancePresent).
		Where("enrollment = ?", enrollment).
		Scan(&row).Error
	return row.Total, row.Present, err
}

// ClassCounts returns [total, present] per enrollment of the class.
func (s *GormStore) ClassCounts(ctx context.Context, class string) (map[string][2]int, error) {
	var rows []struct {
		Enrollment string
		Total      int
		Present    int
	}
	err := s.db.WithContext(ctx).Model(&models.AttendanceRecord{}).
		Select("enrollment, COUNT(*) AS total, COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS present", models.AttendancePresent).
		Where("class = ?", class).
		Group("enrollment").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string][2]int, len(rows))
	for _, r := range rows {
		out[r.Enrollment] = [2]int{r.Total, r.Present}
	}
	return out, nil
}

func (s *GormStore) Students(ctx context.Context, enrollments []string) (map[string]models.Student, error) {
	out := map[string]models.Student{}
	if len(enrollments) == 0 {
		return out, nil
	}
	var rows []models.Student
	if err := s.db.WithContext(ctx).Where("enrollment IN ?", enrollments).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, st := range rows {
		out[st.Enrollment] = st
	}
	return out, nil
}

func (s *GormStore) StudentsInClass(ctx context.Context, class string) ([]models.Student, error) {
	var rows []models.Student
	err := s.db.WithContext(ctx).Where("class = ?", class).Order("enrollment").Find(&rows).Error
	return rows, err
}

// Upsert relies on the idx_attendance_mark unique key.
func (s *GormStore) Upsert(ctx context.Context, records []models.AttendanceRecord) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "enrollment"}, {Name: "date"}, {Name: "lecture_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status", "subject", "section", "branch", "year", "class", "marked_by", "updated_at",
		}),
	}).CreateInBatches(records, 200).Error
}

func (s *GormStore) SaveOverride(ctx context.Context, o *models.AttendanceOverride) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "enrollment"}},
		DoUpdates: clause.AssignmentColumns([]string{"total", "present", "percentage", "updated_by", "updated_at"}),
	}).Create(o).Error
}

func (s *GormStore) DeleteOverride(ctx context.Context, enrollment string) (bool, error) {
	res := s.db.WithContext(ctx).Unscoped().Where("enrollment = ?", enrollment).Delete(&models.AttendanceOverride{})
	return res.RowsAffected > 0, res.Error
}

func (s *GormStore) UpdateStatus(ctx context.Context, enrollment, date, status string) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.AttendanceRecord{}).
		Where("enrollment = ? AND date = ?", enrollment, date).
		Update("status", status)
	return res.RowsAffected, res.Error
}

func (s *GormStore) ListByClass(ctx context.Context, class, date string) ([]models.AttendanceRecord, error) {
	q := s.db.WithContext(ctx).Where("class = ?", class)
	if date != "" {
		q = q.Where("date = ?", date)
	}
	var rows []models.AttendanceRecord
	err := q.Order("date DESC, enrollment ASC").Find(&rows).Error
	return rows, err
}
