package controllers

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"campusdesk_go/database"
	"campusdesk_go/models"
	"campusdesk_go/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type StudentController struct{}

type StudentRequest struct {
	Enrollment string `json:"enrollment" validate:"required,max=50"`
	Name       string `json:"name"`
	Email      string `json:"email" validate:"omitempty,email"`
	Phone      string `json:"phone"`
	Branch     string `json:"branch"`
	Section    string `json:"section"`
	Year       string `json:"year"`
	Class      string `json:"class"`
	Password   string `json:"password"`
}

type StudentUpdateRequest struct {
	Name    *string `json:"name"`
	Email   *string `json:"email" validate:"omitempty,email"`
	Phone   *string `json:"phone"`
	Branch  *string `json:"branch"`
	Section *string `json:"section"`
	Year    *string `json:"year"`
	Class   *string `json:"class"`
}

type BulkStudentsRequest struct {
	Branch  string `json:"branch" validate:"required"`
	Section string `json:"section"`
	Year    string `json:"year"`
	Class   string `json:"class"`
	Start   string `json:"start" validate:"required"`
	End     string `json:"end" validate:"required"`
}

func normalizeEnrollment(e string) string {
	return strings.ToUpper(strings.TrimSpace(e))
}

// classFor uses the explicit class, or derives it from branch, year and section.
func classFor(class, branch, year, section string) string {
	if strings.TrimSpace(class) != "" {
		return utils.NormalizeClass(class)
	}
	return utils.NormalizeClass(branch + year + section)
}

// GetStudents returns students filtered by branch, section, year and class, paginated.
func (sc *StudentController) GetStudents(c *fiber.Ctx) error {
	paging := utils.ResolvePaging(c)
	query := database.DB.WithContext(c.UserContext()).Model(&models.Student{})
	for _, key := range []string{"branch", "section", "year"} {
		if v := c.Query(key); v != "" {
			query = query.Where(key+" = ?", v)
		}
	}
	if v := c.Query("class"); v != "" {
		query = query.Where("class = ?", utils.NormalizeClass(v))
	}

	if err := query.Count(&paging.Total).Error; err != nil {
		return respondServiceError(c, err, "Failed to fetch students")
	}
	var students []models.Student
	if err := query.Order("enrollment ASC").Offset(paging.Offset()).Limit(paging.PerPage).Find(&students).Error; err != nil {
		return respondServiceError(c, err, "Failed to fetch students")
	}
	return utils.SuccessMap(c, fiber.StatusOK, "Students retrieved", fiber.Map{
		"students":   students,
		"pagination": paging,
	})
}

func findStudent(c *fiber.Ctx, enrollment string) (*models.Student, error) {
	var student models.Student
	err := database.DB.WithContext(c.UserContext()).Where("enrollment = ?", normalizeEnrollment(enrollment)).First(&student).Error
	if err != nil {
		return nil, err
	}
	return &student, nil
}

func (sc *StudentController) GetStudent(c *fiber.Ctx) error {
	student, err := findStudent(c, c.Params("enrollment"))
	if err != nil {
		return respondServiceError(c, err, "Failed to fetch student")
	}
	return utils.Success(c, "Student retrieved", student)
}

// CreateStudent adds a single student. The password is optional; students without one sign up later.
func (sc *StudentController) CreateStudent(c *fiber.Ctx) error {
	var req StudentRequest
	if ok, err := utils.ParseAndValidate(c, &req); !ok {
		return err
	}

	student := models.Student{
		Enrollment: normalizeEnrollment(req.Enrollment),
		Name:       utils.SanitizeString(req.Name),
		Email:      req.Email,
		Phone:      req.Phone,
		Branch:     req.Branch,
		Section:    req.Section,
		Year:       req.Year,
		Class:      classFor(req.Class, req.Branch, req.Year, req.Section),
	}
	if req.Password != "" {
		hash, err := utils.HashPassword(req.Password)
		if err != nil {
			return utils.Error(c, fiber.StatusInternalServerError, "Failed to process password")
		}
		student.Password = hash
	}

	if err := database.DB.WithContext(c.UserContext()).Create(&student).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return utils.Error(c, fiber.StatusConflict, "Student already exists")
		}
		return respondServiceError(c, err, "Failed to create student")
	}
	return utils.SuccessWithCode(c, fiber.StatusCreated, "Student added successfully", student)
}

func (sc *StudentController) UpdateStudent(c *fiber.Ctx) error {
	var req StudentUpdateRequest
	if ok, err := utils.ParseAndValidate(c, &req); !ok {
		return err
	}
	student, err := findStudent(c, c.Params("enrollment"))
	if err != nil {
		return respondServiceError(c, err, "Failed to fetch student")
	}

	updates := map[string]interface{}{}
	set := func(col string, v *string) {
		if v != nil {
			updates[col] = strings.TrimSpace(*v)
		}
	}
	set("email", req.Email)
	set("phone", req.Phone)
	set("branch", req.Branch)
	set("section", req.Section)
	set("year", req.Year)
	if req.Name != nil {
		updates["name"] = utils.SanitizeString(*req.Name)
	}
	if req.Class != nil {
		updates["class"] = utils.NormalizeClass(*req.Class)
	}
	if len(updates) == 0 {
		return badRequest(c, "Nothing to update")
	}

	if err := database.DB.WithContext(c.UserContext()).Model(student).Updates(updates).Error; err != nil {
		return respondServiceError(c, err, "Failed to update student")
	}
	return utils.Success(c, "Student updated", student)
}

func (sc *StudentController) DeleteStudent(c *fiber.Ctx) error {
	res := database.DB.WithContext(c.UserContext()).Where("enrollment = ?", normalizeEnrollment(c.Params("enrollment"))).Delete(&models.Student{})
	if res.Error != nil {
		return respondServiceError(c, res.Error, "Failed to delete student")
	}
	if res.RowsAffected == 0 {
		return notFound(c, "Student")
	}
	return utils.Success(c, "Student removed successfully", nil)
}

// BulkCreate adds every enrollment from start to end that does not exist yet.
func (sc *StudentController) BulkCreate(c *fiber.Ctx) error {
	var req BulkStudentsRequest
	if ok, err := utils.ParseAndValidate(c, &req); !ok {
		return err
	}
	enrollments, err := utils.EnrollmentRange(normalizeEnrollment(req.Start), normalizeEnrollment(req.End))
	if err != nil {
		return badRequest(c, err.Error())
	}
	if len(enrollments) > 1000 {
		return badRequest(c, "At most 1000 students per request")
	}

	class := classFor(req.Class, req.Branch, req.Year, req.Section)
	added, err := createStudents(database.DB.WithContext(c.UserContext()), enrollments, req.Branch, req.Section, req.Year, class)
	if err != nil {
		return respondServiceError(c, err, "Failed to add students")
	}
	return utils.SuccessMap(c, fiber.StatusOK, fmt.Sprintf("%d students added", added), fiber.Map{"added": added})
}

// createStudents inserts the missing enrollments in one statement and returns how many were new.
func createStudents(db *gorm.DB, enrollments []string, branch, section, year, class string) (int64, error) {
	if len(enrollments) == 0 {
		return 0, nil
	}
	rows := make([]models.Student, 0, len(enrollments))
	for _, e := range enrollments {
		rows = append(rows, models.Student{Enrollment: e, Branch: branch, Section: section, Year: year, Class: class})
	}
	res := db.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(&rows, 200)
	return res.RowsAffected, res.Error
}

// ImportStudents reads an xlsx sheet whose header row names the columns
// (Enrollment, Name, Branch, Section, Year, Class, Email, Phone) and upserts every row.
func (sc *StudentController) ImportStudents(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return badRequest(c, "file is required")
	}
	if !utils.IsValidFileExtension(fh.Filename, []string{"xlsx"}) {
		return badRequest(c, "unsupported file type (xlsx)")
	}
	file, err := fh.Open()
	if err != nil {
		return badRequest(c, "cannot open file")
	}
	defer file.Close()

	students, skipped, err := ParseStudentSheet(file)
	if err != nil {
		return badRequest(c, err.Error())
	}
	if len(students) == 0 {
		return badRequest(c, "file has no student rows")
	}

	res := database.DB.WithContext(c.UserContext()).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "enrollment"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "branch", "section", "year", "class", "email", "phone", "updated_at"}),
	}).CreateInBatches(&students, 200)
	if res.Error != nil {
		return respondServiceError(c, res.Error, "Failed to import students")
	}
	return utils.SuccessMap(c, fiber.StatusOK, "Students imported", fiber.Map{
		"imported": len(students),
		"skipped":  skipped,
	})
}

// ParseStudentSheet reads students from the first sheet of an xlsx workbook.
// Rows without an enrollment are counted as skipped.
func ParseStudentSheet(r io.Reader) ([]models.Student, int, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, 0, fmt.Errorf("cannot read workbook: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, 0, err
	}
	if len(rows) == 0 {
		return nil, 0, fmt.Errorf("file is empty")
	}

	col := map[string]int{}
	for i, h := range rows[0] {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := col["enrollment"]; !ok {
		return nil, 0, fmt.Errorf("missing column: Enrollment")
	}

	var students []models.Student
	skipped := 0
	seen := map[string]bool{}
	for _, r := range rows[1:] {
		get := func(key string) string {
			if idx, ok := col[key]; ok && idx < len(r) {
				return strings.TrimSpace(r[idx])
			}
			return ""
		}
		enrollment := normalizeEnrollment(get("enrollment"))
		if enrollment == "" || seen[enrollment] {
			skipped++
			continue
		}
		seen[enrollment] = true
		branch, section, year := get("branch"), get("section"), get("year")
		students = append(students, models.Student{
			Enrollment: enrollment,
			Name:       utils.SanitizeString(get("name")),
			Branch:     branch,
			Section:    section,
			Year:       year,
			Class:      classFor(get("class"), branch, year, section),
			Email:      get("email"),
			Phone:      get("phone"),
		})
	}
	return students, skipped, nil
}

func (sc *StudentController) GetPendingFees(c *fiber.Ctx) error {
	student, err := findStudent(c, c.Params("enrollment"))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.SuccessMap(c, fiber.StatusOK, "", fiber.Map{"pending_fees": 0})
	}
	if err != nil {
		return respondServiceError(c, err, "Failed to fetch pending fees")
	}
	return utils.SuccessMap(c, fiber.StatusOK, "", fiber.Map{"pending_fees": student.PendingFees})
}

func (sc *StudentController) SetPendingFees(c *fiber.Ctx) error {
	var req struct {
		PendingFees *float64 `json:"pending_fees" validate:"required,gte=0"`
	}
	if ok, err := utils.ParseAndValidate(c, &req); !ok {
		return err
	}
	enrollment := normalizeEnrollment(c.Params("enrollment"))
	res := database.DB.WithContext(c.UserContext()).Model(&models.Student{}).
		Where("enrollment = ?", enrollment).Update("pending_fees", *req.PendingFees)
	if res.Error != nil {
		return respondServiceError(c, res.Error, "Failed to update pending fees")
	}
	if res.RowsAffected == 0 {
		return notFound(c, "Student")
	}
	return utils.Success(c, "Pending fees updated for "+enrollment, nil)
}

func (sc *StudentController) GetClass(c *fiber.Ctx) error {
	student, err := findStudent(c, c.Params("enrollment"))
	if err != nil {
		return respondServiceError(c, err, "Failed to fetch student")
	}
	return utils.SuccessMap(c, fiber.StatusOK, "", fiber.Map{"student": student})
}

// UpdateClass moves a student to another class and, optionally, year.
// The stored push token follows so class notifications reach the new class.
func (sc *StudentController) UpdateClass(c *fiber.Ctx) error {
	var req struct {
		Class string `json:"class" validate:"required"`
		Year  string `json:"year"`
	}
	if ok, err := utils.ParseAndValidate(c, &req); !ok {
		return err
	}
	student, err := findStudent(c, c.Params("enrollment"))
	if err != nil {
		return respondServiceError(c, err, "Failed to fetch student")
	}

	class := utils.NormalizeClass(req.Class)
	updates := map[string]interface{}{"class": class}
	msg := "Class updated to " + class
	if req.Year != "" {
		updates["year"] = req.Year
		msg = fmt.Sprintf("Class and year updated to %s %s", req.Year, class)
	}

	err = database.DB.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(student).Updates(updates).Error; err != nil {
			return err
		}
		return tx.Model(&models.PushToken{}).Where("enrollment = ?", student.Enrollment).
			Update("student_class", class).Error
	})
	if err != nil {
		return respondServiceError(c, err, "Failed to update class")
	}
	return utils.Success(c, msg, student)
}

// StudentOverview is one row of the admin students table.
type StudentOverview struct {
	Name        string            `json:"name"`
	Enrollment  string            `json:"enrollment"`
	Branch      string            `json:"branch"`
	Section     string            `json:"section"`
	Year        string            `json:"year"`
	Class       string            `json:"class"`
	Attendance  AttendanceSummary `json:"attendance"`
	PendingFees float64           `json:"pendingFees"`
	Fine        float64           `json:"fine"`
}

type AttendanceSummary struct {
	Total      int     `json:"total"`
	Present    int     `json:"present"`
	Percentage float64 `json:"percentage"`
}

// AdminOverview lists students with their attendance, pending fees and unpaid fine total.
func (sc *StudentController) AdminOverview(c *fiber.Ctx) error {
	db := database.DB.WithContext(c.UserContext())
	query := db.Model(&models.Student{})
	if v := c.Query("class"); v != "" {
		query = query.Where("class = ?", utils.NormalizeClass(v))
	}
	var students []models.Student
	if err := query.Order("enrollment ASC").Find(&students).Error; err != nil {
		return respondServiceError(c, err, "Failed to fetch students")
	}
	enrollments := make([]string, 0, len(students))
	for _, s := range students {
		enrollments = append(enrollments, s.Enrollment)
	}

	var counts []struct {
		Enrollment string
		Total      int
		Present    int
	}
	if len(enrollments) > 0 {
		if err := db.Model(&models.AttendanceRecord{}).
			Select("enrollment, COUNT(*) AS total, SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS present", models.AttendancePresent).
			Where("enrollment IN ?", enrollments).Group("enrollment").Scan(&counts).Error; err != nil {
			return respondServiceError(c, err, "Failed to aggregate attendance")
		}
	}
	var overrides []models.AttendanceOverride
	if len(enrollments) > 0 {
		if err := db.Where("enrollment IN ?", enrollments).Find(&overrides).Error; err != nil {
			return respondServiceError(c, err, "Failed to load overrides")
		}
	}
	var fineTotals []struct {
		Enrollment string
		Due        float64
	}
	if len(enrollments) > 0 {
		if err := db.Model(&models.Fine{}).
			Select("enrollment, SUM(amount - paid_amount) AS due").
			Where("enrollment IN ? AND status <> ?", enrollments, models.FineStatusPaid).
			Group("enrollment").Scan(&fineTotals).Error; err != nil {
			return respondServiceError(c, err, "Failed to aggregate fines")
		}
	}

	att := make(map[string]AttendanceSummary, len(counts))
	for _, row := range counts {
		att[row.Enrollment] = AttendanceSummary{Total: row.Total, Present: row.Present, Percentage: utils.Percentage(row.Present, row.Total)}
	}
	for _, o := range overrides {
		att[o.Enrollment] = AttendanceSummary{Total: o.Total, Present: o.Present, Percentage: o.Percentage}
	}
	due := make(map[string]float64, len(fineTotals))
	for _, row := range fineTotals {
		due[row.Enrollment] = utils.Round2(row.Due)
	}

	out := make([]StudentOverview, 0, len(students))
	for _, s := range students {
		out = append(out, StudentOverview{
			Name:        s.Name,
			Enrollment:  s.Enrollment,
			Branch:      s.Branch,
			Section:     s.Section,
			Year:        s.Year,
			Class:       s.Class,
			Attendance:  att[s.Enrollment],
			PendingFees: s.PendingFees,
			Fine:        due[s.Enrollment],
		})
	}
	return utils.SuccessMap(c, fiber.StatusOK, "", fiber.Map{"count": len(out), "students": out})
}
