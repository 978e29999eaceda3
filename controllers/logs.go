package controllers

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"campusdesk_go/database"
	"campusdesk_go/models"
	"campusdesk_go/services"
	"campusdesk_go/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type LogController struct {
	archive *services.LogArchiveService
}

func NewLogController(archive *services.LogArchiveService) *LogController {
	return &LogController{archive: archive}
}

// LogResponse is an activity log with its details decoded.
type LogResponse struct {
	ID         uint                   `json:"id"`
	ActorID    string                 `json:"actor_id"`
	ActorRole  string                 `json:"actor_role"`
	Action     string                 `json:"action"`
	Resource   string                 `json:"resource"`
	ResourceID string                 `json:"resource_id"`
	Details    map[string]interface{} `json:"details,omitempty"`
	IPAddress  string                 `json:"ip_address"`
	UserAgent  string                 `json:"user_agent"`
	CreatedAt  time.Time              `json:"created_at"`
}

type LogsStatsResponse struct {
	Total             int64            `json:"total"`
	TotalToday        int64            `json:"total_today"`
	TotalThisWeek     int64            `json:"total_this_week"`
	ActionBreakdown   map[string]int64 `json:"action_breakdown"`
	ResourceBreakdown map[string]int64 `json:"resource_breakdown"`
	RoleBreakdown     map[string]int64 `json:"role_breakdown"`
	RecentActivity    []LogResponse    `json:"recent_activity"`
}

func toLogResponse(l models.ActivityLog) LogResponse {
	out := LogResponse{
		ID:         l.ID,
		ActorID:    l.ActorID,
		ActorRole:  l.ActorRole,
		Action:     l.Action,
		Resource:   l.Resource,
		ResourceID: l.ResourceID,
		IPAddress:  l.IPAddress,
		UserAgent:  l.UserAgent,
		CreatedAt:  l.CreatedAt,
	}
	if len(l.Details) > 0 {
		var details map[string]interface{}
		if err := json.Unmarshal(l.Details, &details); err == nil {
			out.Details = details
		}
	}
	return out
}

// filteredLogs applies actor, action, resource and date range filters.
func filteredLogs(c *fiber.Ctx) *gorm.DB {
	q := database.DB.WithContext(c.UserContext()).Model(&models.ActivityLog{})
	for _, col := range []string{"actor_id", "actor_role", "action", "resource", "ip_address"} {
		if v := c.Query(col); v != "" {
			q = q.Where(col+" = ?", v)
		}
	}
	if v := c.Query("start_date"); v != "" {
		if d, err := time.Parse("2006-01-02", v); err == nil {
			q = q.Where("created_at >= ?", d)
		}
	}
	if v := c.Query("end_date"); v != "" {
		if d, err := time.Parse("2006-01-02", v); err == nil {
			q = q.Where("created_at < ?", d.Add(24*time.Hour))
		}
	}
	return q
}

// GetLogs lists activity logs newest first with paging.
func (lc *LogController) GetLogs(c *fiber.Ctx) error {
	paging := utils.ResolvePaging(c)
	q := filteredLogs(c)
	if err := q.Count(&paging.Total).Error; err != nil {
		return respondServiceError(c, err, "Failed to retrieve logs count")
	}

	var rows []models.ActivityLog
	if err := q.Order("created_at DESC").Offset(paging.Offset()).Limit(paging.PerPage).Find(&rows).Error; err != nil {
		return respondServiceError(c, err, "Failed to retrieve logs")
	}
	logs := make([]LogResponse, len(rows))
	for i, l := range rows {
		logs[i] = toLogResponse(l)
	}
	return utils.SuccessMap(c, fiber.StatusOK, "", fiber.Map{"logs": logs, "pagination": paging})
}

func (lc *LogController) GetLogStats(c *fiber.Ctx) error {
	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	thisWeek := today.AddDate(0, 0, -int(today.Weekday()))

	db := database.DB.WithContext(c.UserContext())
	stats := LogsStatsResponse{}
	if err := db.Model(&models.ActivityLog{}).Count(&stats.Total).Error; err != nil {
		return respondServiceError(c, err, "Failed to compute log stats")
	}
	db.Model(&models.ActivityLog{}).Where("created_at >= ?", today).Count(&stats.TotalToday)
	db.Model(&models.ActivityLog{}).Where("created_at >= ?", thisWeek).Count(&stats.TotalThisWeek)

	breakdown := func(col string) map[string]int64 {
		var rows []struct {
			Key   string
			Count int64
		}
		db.Model(&models.ActivityLog{}).Select(col + " AS `key`, COUNT(*) AS count").Group(col).Scan(&rows)
		out := make(map[string]int64, len(rows))
		for _, r := range rows {
			out[r.Key] = r.Count
		}
		return out
	}
	stats.ActionBreakdown = breakdown("action")
	stats.ResourceBreakdown = breakdown("resource")
	stats.RoleBreakdown = breakdown("actor_role")

	var recent []models.ActivityLog
	db.Order("created_at DESC").Limit(10).Find(&recent)
	for _, l := range recent {
		stats.RecentActivity = append(stats.RecentActivity, toLogResponse(l))
	}
	return utils.SuccessMap(c, fiber.StatusOK, "", fiber.Map{"stats": stats})
}

func (lc *LogController) GetLog(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid log ID")
	}
	var entry models.ActivityLog
	if err := database.DB.WithContext(c.UserContext()).First(&entry, id).Error; err != nil {
		return respondServiceError(c, err, "Failed to retrieve log")
	}
	return utils.SuccessMap(c, fiber.StatusOK, "", fiber.Map{"log": toLogResponse(entry)})
}

// ExportLogs streams the filtered activity logs as CSV.
func (lc *LogController) ExportLogs(c *fiber.Ctx) error {
	var rows []models.ActivityLog
	if err := filteredLogs(c).Order("created_at DESC").Find(&rows).Error; err != nil {
		return respondServiceError(c, err, "Failed to retrieve logs for export")
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Write([]string{"ID", "Actor", "Role", "Action", "Resource", "Resource ID", "IP Address", "User Agent", "Created At", "Details"})
	for _, l := range rows {
		w.Write([]string{
			strconv.FormatUint(uint64(l.ID), 10),
			l.ActorID,
			l.ActorRole,
			l.Action,
			l.Resource,
			l.ResourceID,
			l.IPAddress,
			l.UserAgent,
			l.CreatedAt.Format("2006-01-02 15:04:05"),
			string(l.Details),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return respondServiceError(c, err, "Failed to export logs")
	}

	c.Set(fiber.HeaderContentType, "text/csv")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="activity_logs_%s.csv"`, time.Now().Format("20060102")))
	return c.Send(buf.Bytes())
}

// FlushCachedLogs moves queued activity logs from Redis to the database now.
func (lc *LogController) FlushCachedLogs(c *fiber.Ctx) error {
	n, err := lc.archive.FlushCachedLogsToDatabase(c.UserContext())
	if err != nil {
		return respondServiceError(c, err, "Failed to flush cached logs")
	}
	return utils.SuccessMap(c, fiber.StatusOK, "Cached logs flushed", fiber.Map{"processed_count": n})
}

// ArchiveLogs archives logs older than ?days (default 30, minimum 7).
func (lc *LogController) ArchiveLogs(c *fiber.Ctx) error {
	days, err := strconv.Atoi(c.Query("days", "30"))
	if err != nil || days < services.MinArchiveDays {
		return badRequest(c, fmt.Sprintf("days must be a number of at least %d", services.MinArchiveDays))
	}
	if err := lc.archive.ArchiveOldLogs(c.UserContext(), days); err != nil {
		return respondServiceError(c, err, "Failed to archive logs")
	}
	return utils.Success(c, "Logs archived", fiber.Map{"days": days})
}

func (lc *LogController) ListArchives(c *fiber.Ctx) error {
	archives, err := lc.archive.GetArchivedLogs(c.UserContext())
	if err != nil {
		return respondServiceError(c, err, "Failed to fetch archives")
	}
	return utils.SuccessMap(c, fiber.StatusOK, "", fiber.Map{"archives": archives})
}

func (lc *LogController) DownloadArchive(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid archive ID")
	}
	reader, name, err := lc.archive.DownloadArchivedLogs(c.UserContext(), id)
	if err != nil {
		return respondServiceError(c, err, "Failed to download archive")
	}
	c.Set(fiber.HeaderContentType, "application/zip")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, name))
	// fasthttp closes the reader once the body is written
	return c.SendStream(reader)
}
