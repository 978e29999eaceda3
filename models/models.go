package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Base model with common fields
type BaseModel struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

const (
	RoleAdmin   = "admin"
	RoleMentor  = "mentor"
	RoleStudent = "student"
)

// User is an administrator account. Students and mentors authenticate against their own tables.
type User struct {
	BaseModel
	Username string `json:"username" gorm:"size:100;not null;uniqueIndex"`
	Password string `json:"-" gorm:"size:255;not null"`
	Email    string `json:"email" gorm:"size:255"`
	Role     string `json:"role" gorm:"size:50;not null;default:'admin'"`
	Status   string `json:"status" gorm:"size:50;not null;default:'active';type:enum('active','inactive','suspended')"`
}

// Student model
type Student struct {
	BaseModel
	Enrollment  string  `json:"enrollment" gorm:"size:50;not null;uniqueIndex"`
	Name        string  `json:"name" gorm:"size:255;not null"`
	Email       string  `json:"email" gorm:"size:255"`
	Phone       string  `json:"phone" gorm:"size:20"`
	Branch      string  `json:"branch" gorm:"size:100;index"`
	Section     string  `json:"section" gorm:"size:20;index"`
	Year        string  `json:"year" gorm:"size:10;index"`
	Class       string  `json:"class" gorm:"size:100;index"`
	Password    string  `json:"-" gorm:"size:255"`
	PendingFees float64 `json:"pending_fees" gorm:"default:0"`
}

// ClassGroup is a named class (e.g. "CSE3A") that students belong to.
type ClassGroup struct {
	BaseModel
	Name        string `json:"name" gorm:"size:100;not null;uniqueIndex"`
	Branch      string `json:"branch" gorm:"size:100"`
	Section     string `json:"section" gorm:"size:20"`
	Year        string `json:"year" gorm:"size:10"`
	LineGroupID string `json:"line_group_id" gorm:"size:100"`
}

const (
	AttendancePresent = "P"
	AttendanceAbsent  = "A"
)

// AttendanceRecord is one P/A mark for a lecture. The (enrollment, date, lecture_id) triple is unique.
type AttendanceRecord struct {
	BaseModel
	Enrollment string `json:"enrollment" gorm:"size:50;not null;uniqueIndex:idx_attendance_mark"`
	Date       string `json:"date" gorm:"size:10;not null;uniqueIndex:idx_attendance_mark"`
	LectureID  string `json:"lecture_id" gorm:"size:50;not null;default:'';uniqueIndex:idx_attendance_mark"`
	Status     string `json:"status" gorm:"size:1;not null"`
	Subject    string `json:"subject" gorm:"size:100"`
	Section    string `json:"section" gorm:"size:20"`
	Branch     string `json:"branch" gorm:"size:100"`
	Year       string `json:"year" gorm:"size:10"`
	Class      string `json:"class" gorm:"size:100;index"`
	MarkedBy   string `json:"marked_by" gorm:"size:100"`
}

// AttendanceOverride supersedes computed attendance for an enrollment.
type AttendanceOverride struct {
	BaseModel
	Enrollment string  `json:"enrollment" gorm:"size:50;not null;uniqueIndex"`
	Total      int     `json:"total" gorm:"not null"`
	Present    int     `json:"present" gorm:"not null"`
	Percentage float64 `json:"percentage" gorm:"not null"`
	UpdatedBy  string  `json:"updated_by" gorm:"size:100"`
}

// Assignment is soft-deleted by clearing Active.
type Assignment struct {
	BaseModel
	Code        string    `json:"code" gorm:"size:20;not null;uniqueIndex"`
	Class       string    `json:"class" gorm:"size:100;not null;index"`
	Title       string    `json:"title" gorm:"size:255;not null"`
	Subject     string    `json:"subject" gorm:"size:100;not null"`
	Description string    `json:"description" gorm:"type:text"`
	Deadline    time.Time `json:"deadline" gorm:"not null;index"`
	Active      bool      `json:"active" gorm:"default:true;index"`
	CreatedBy   string    `json:"created_by" gorm:"size:100"`
}

type Exam struct {
	BaseModel
	Code     string `json:"code" gorm:"size:20;not null;uniqueIndex"`
	ExamName string `json:"exam_name" gorm:"size:255;not null"`
	Subject  string `json:"subject" gorm:"size:100;not null"`
	Date     string `json:"date" gorm:"size:10;not null;index"`
	Time     string `json:"time" gorm:"size:20"`
	Room     string `json:"room" gorm:"size:50;not null"`
	Class    string `json:"class" gorm:"size:100;not null;index"`
}

type Notice struct {
	BaseModel
	Title   string `json:"title" gorm:"size:255;not null"`
	Message string `json:"message" gorm:"type:text;not null"`
	Target  string `json:"target" gorm:"size:100;not null;default:'all';index"`
	Sender  string `json:"sender" gorm:"size:100"`
}

// NoticeRead is a read receipt for one student.
type NoticeRead struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	NoticeID   uint      `json:"notice_id" gorm:"not null;uniqueIndex:idx_notice_reader"`
	Enrollment string    `json:"enrollment" gorm:"size:50;not null;uniqueIndex:idx_notice_reader"`
	ReadAt     time.Time `json:"read_at"`
}

type Event struct {
	BaseModel
	Code        string `json:"code" gorm:"size:20;not null;uniqueIndex"`
	Title       string `json:"title" gorm:"size:255;not null"`
	Description string `json:"description" gorm:"type:text"`
	ImageURL    string `json:"image_url" gorm:"size:500"`
	ImageID     string `json:"-" gorm:"size:255"`
	Date        string `json:"date" gorm:"size:10"`
	Venue       string `json:"venue" gorm:"size:255"`
}

const (
	FineStatusPending = "Pending"
	FineStatusUnpaid  = "Unpaid"
	FineStatusPartial = "Partial"
	FineStatusPaid    = "Paid"
)

type Fine struct {
	BaseModel
	Enrollment string  `json:"enrollment" gorm:"size:50;not null;index"`
	Class      string  `json:"class" gorm:"size:100"`
	Amount     float64 `json:"amount" gorm:"not null"`
	Reason     string  `json:"reason" gorm:"size:500;not null"`
	Status     string  `json:"status" gorm:"size:20;not null;default:'Pending';index"`
	PaidAmount float64 `json:"paid_amount" gorm:"default:0"`
}

// PaymentTransaction is applied to its fine at most once, keyed by TransactionID.
type PaymentTransaction struct {
	BaseModel
	FineID        uint           `json:"fine_id" gorm:"not null;index"`
	TransactionID string         `json:"transaction_id" gorm:"size:100;not null;uniqueIndex"`
	Provider      string         `json:"provider" gorm:"size:20;not null"`
	Amount        float64        `json:"amount" gorm:"not null"`
	Status        string         `json:"status" gorm:"size:30;not null"`
	Payload       datatypes.JSON `json:"payload,omitempty"`
}

const (
	TokenKindFCM     = "fcm"
	TokenKindWebPush = "webpush"
)

// PushToken maps an enrollment to its device token or web push subscription JSON.
type PushToken struct {
	BaseModel
	Enrollment   string `json:"enrollment" gorm:"size:50;not null;uniqueIndex"`
	Token        string `json:"token" gorm:"type:text;not null"`
	Kind         string `json:"kind" gorm:"size:10;not null;default:'fcm'"`
	StudentClass string `json:"student_class" gorm:"size:100;index"`
}

const (
	TargetEnrollment = "enrollment"
	TargetClass      = "class"
	TargetGlobal     = "global"
)

// NotificationLog is the delivery record of one fan-out.
type NotificationLog struct {
	ID           string            `json:"id" gorm:"primaryKey;size:36" bson:"_id"`
	Title        string            `json:"title" gorm:"size:255" bson:"title"`
	Body         string            `json:"body" gorm:"type:text" bson:"body"`
	TargetType   string            `json:"target_type" gorm:"size:20;index:idx_notification_target" bson:"target_type"`
	Target       string            `json:"target" gorm:"size:100;index:idx_notification_target" bson:"target"`
	URL          string            `json:"url" gorm:"size:500" bson:"url"`
	Data         datatypes.JSONMap `json:"data,omitempty" bson:"data,omitempty"`
	SuccessCount int               `json:"success_count" bson:"success_count"`
	FailureCount int               `json:"failure_count" bson:"failure_count"`
	SentAt       time.Time         `json:"timestamp" gorm:"index" bson:"timestamp"`
}

// NotificationClear hides feed entries sent before ClearedAt for one student.
type NotificationClear struct {
	Enrollment string    `json:"enrollment" gorm:"primaryKey;size:50" bson:"_id"`
	ClearedAt  time.Time `json:"cleared_at" bson:"cleared_at"`
}

const (
	SubmissionPending     = "pending"
	SubmissionApproved    = "approved"
	SubmissionDisapproved = "disapproved"
)

// Form is an admin-defined dynamic form. Fields holds [{label, type, required, options}].
type Form struct {
	BaseModel
	Title       string         `json:"title" gorm:"size:255;not null"`
	Description string         `json:"description" gorm:"type:text"`
	Fields      datatypes.JSON `json:"fields"`
	PDFs        datatypes.JSON `json:"pdfs"`
	TargetClass string         `json:"target_class" gorm:"size:100"`
	Active      bool           `json:"active" gorm:"default:true;index"`
	CreatedBy   string         `json:"created_by" gorm:"size:100"`
}

type FormSubmission struct {
	BaseModel
	FormID     uint              `json:"form_id" gorm:"not null;index"`
	Enrollment string            `json:"enrollment" gorm:"size:50;not null;index"`
	Name       string            `json:"name" gorm:"size:255"`
	Class      string            `json:"class" gorm:"size:100"`
	Responses  datatypes.JSONMap `json:"responses"`
	Files      datatypes.JSON    `json:"files"`
	Status     string            `json:"status" gorm:"size:20;not null;default:'pending'"`
	Reason     string            `json:"reason" gorm:"size:500"`
	ReviewedBy string            `json:"reviewed_by" gorm:"size:100"`
}

type Mentor struct {
	BaseModel
	MentorID      string `json:"mentor_id" gorm:"size:50;not null;uniqueIndex"`
	Name          string `json:"name" gorm:"size:255;not null"`
	Email         string `json:"email" gorm:"size:255;uniqueIndex"`
	Phone         string `json:"phone" gorm:"size:20"`
	Subject       string `json:"subject" gorm:"size:100"`
	Branch        string `json:"branch" gorm:"size:100"`
	ClassAssigned string `json:"class_assigned" gorm:"size:100"`
	Password      string `json:"-" gorm:"size:255;not null"`
}

type MentorSalary struct {
	BaseModel
	MentorID string  `json:"mentor_id" gorm:"size:50;not null;uniqueIndex:idx_mentor_month"`
	Month    string  `json:"month" gorm:"size:7;not null;uniqueIndex:idx_mentor_month"`
	Amount   float64 `json:"amount" gorm:"not null"`
	Status   string  `json:"status" gorm:"size:20;not null;default:'Pending'"`
}

// Mark holds the weighted internal assessment of one student.
type Mark struct {
	BaseModel
	Enrollment        string  `json:"enrollment" gorm:"size:50;not null;uniqueIndex"`
	Name              string  `json:"name" gorm:"size:255"`
	Class             string  `json:"class" gorm:"size:100"`
	MST               float64 `json:"mst"`
	Internal          float64 `json:"internal"`
	Assignments       float64 `json:"assignments"`
	WeightMST         float64 `json:"weight_mst"`
	WeightInternal    float64 `json:"weight_internal"`
	WeightAssignments float64 `json:"weight_assignments"`
	Percentage        float64 `json:"percentage"`
	Notes             string  `json:"notes" gorm:"type:text"`
	LastUpdatedBy     string  `json:"last_updated_by" gorm:"size:100"`
}

const (
	DocumentTimetable       = "timetable"
	DocumentNotes           = "notes"
	DocumentBus             = "bus"
	DocumentAttendanceSheet = "attendance_sheet"

	DocumentUploading = "uploading"
	DocumentReady     = "ready"
	DocumentFailed    = "failed"
)

// Document is an uploaded PDF (timetable, notes, bus routes, weekly attendance sheet).
type Document struct {
	BaseModel
	Kind        string `json:"kind" gorm:"size:30;not null;index"`
	Title       string `json:"title" gorm:"size:255"`
	Class       string `json:"class" gorm:"size:100;index"`
	Year        string `json:"year" gorm:"size:10"`
	Branch      string `json:"branch" gorm:"size:100"`
	Subject     string `json:"subject" gorm:"size:100"`
	Week        string `json:"week" gorm:"size:20"`
	FileName    string `json:"file_name" gorm:"size:255"`
	URL         string `json:"url" gorm:"size:500"`
	PublicID    string `json:"-" gorm:"size:255"`
	UploadJobID string `json:"upload_job_id" gorm:"size:36"`
	Status      string `json:"status" gorm:"size:20;not null;default:'uploading'"`
	Error       string `json:"error,omitempty" gorm:"size:500"`
	Updated     bool   `json:"updated" gorm:"default:false"`
	UploadedBy  string `json:"uploaded_by" gorm:"size:100"`
}

const (
	UniformPending   = "Pending"
	UniformApproved  = "Approved"
	UniformRejected  = "Rejected"
	UniformDelivered = "Delivered"
)

type UniformRequest struct {
	BaseModel
	Enrollment string `json:"enrollment" gorm:"size:50;not null;index"`
	Name       string `json:"name" gorm:"size:255"`
	Class      string `json:"class" gorm:"size:100"`
	Item       string `json:"item" gorm:"size:100;not null"`
	Size       string `json:"size" gorm:"size:10;not null"`
	Quantity   int    `json:"quantity" gorm:"not null;default:1"`
	Status     string `json:"status" gorm:"size:20;not null;default:'Pending'"`
}

// LineGroup is a LINE group the bot has joined.
type LineGroup struct {
	BaseModel
	GroupID      string     `json:"group_id" gorm:"size:100;not null;uniqueIndex"`
	GroupName    string     `json:"group_name" gorm:"size:255"`
	IsActive     bool       `json:"is_active" gorm:"default:true"`
	LastJoinedAt time.Time  `json:"last_joined_at"`
	LastLeftAt   *time.Time `json:"last_left_at"`
}

// ActivityLog model
type ActivityLog struct {
	BaseModel
	ActorID    string         `json:"actor_id" gorm:"size:100;index"`
	ActorRole  string         `json:"actor_role" gorm:"size:20"`
	Action     string         `json:"action" gorm:"size:100;not null"`
	Resource   string         `json:"resource" gorm:"size:100;not null"`
	ResourceID string         `json:"resource_id" gorm:"size:100"`
	Details    datatypes.JSON `json:"details"`
	IPAddress  string         `json:"ip_address" gorm:"size:45"`
	UserAgent  string         `json:"user_agent" gorm:"size:500"`
}

// LogArchive model
type LogArchive struct {
	BaseModel
	Kind        string    `json:"kind" gorm:"size:30;not null;default:'activity'"`
	FileName    string    `json:"file_name" gorm:"size:255;not null"`
	S3Key       string    `json:"s3_key" gorm:"size:500;not null"`
	EndDate     time.Time `json:"end_date" gorm:"not null"`
	RecordCount int       `json:"record_count" gorm:"not null"`
	FileSize    int64     `json:"file_size" gorm:"not null"`
	Status      string    `json:"status" gorm:"size:50;not null;default:'pending';type:enum('pending','completed','failed')"`
	Error       string    `json:"error" gorm:"type:text"`
}
