package services

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"campusdesk_go/models"
	"campusdesk_go/services/notifications"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	ActivityLogQueueKey = "logs:queue"
	MinArchiveDays      = 7

	ArchiveKindActivity     = "activity"
	ArchiveKindNotification = "notification"
)

var (
	ErrArchiveNotFound = errors.New("archive not found")
	ErrArchiveDisabled = errors.New("archive bucket not configured")
	ErrCacheDisabled   = errors.New("redis client not available")
)

// ArchiveBucket stores archive zips.
type ArchiveBucket interface {
	Put(ctx context.Context, key string, body []byte) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// S3ArchiveBucket is an ArchiveBucket on aws-sdk-go-v2.
type S3ArchiveBucket struct {
	client *s3.Client
	bucket string
}

func NewS3ArchiveBucket(ctx context.Context, region, bucket string) (*S3ArchiveBucket, error) {
	if region == "" || bucket == "" {
		return nil, errors.New("AWS not configured")
	}
	cfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(region))
	if err != nil {
		return nil, err
	}
	return &S3ArchiveBucket{client: s3.NewFromConfig(cfg), bucket: bucket}, nil
}

func (b *S3ArchiveBucket) Put(ctx context.Context, key string, body []byte) error {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/zip"),
	})
	return err
}

func (b *S3ArchiveBucket) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	return out.Body, nil
}

// LogArchiveService flushes cached activity logs and archives old activity and notification logs.
type LogArchiveService struct {
	db          *gorm.DB
	redisClient *redis.Client
	notifLogs   notifications.LogStore
	bucket      ArchiveBucket
	now         func() time.Time
}

// NewLogArchiveService accepts a nil redis client or bucket; the matching operations then fail.
func NewLogArchiveService(db *gorm.DB, redisClient *redis.Client, notifLogs notifications.LogStore, bucket ArchiveBucket) *LogArchiveService {
	return &LogArchiveService{
		db:          db,
		redisClient: redisClient,
		notifLogs:   notifLogs,
		bucket:      bucket,
		now:         time.Now,
	}
}

// FlushCachedLogsToDatabase moves every queued activity log from Redis to the database.
func (las *LogArchiveService) FlushCachedLogsToDatabase(ctx context.Context) (int, error) {
	if las.redisClient == nil {
		return 0, ErrCacheDisabled
	}

	keys, err := las.redisClient.ZRangeByScore(ctx, ActivityLogQueueKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(las.now().Unix(), 10),
	}).Result()
	if err != nil {
		return 0, errors.Wrap(err, "read log queue")
	}

	processed, failed := 0, 0
	for _, key := range keys {
		raw, err := las.redisClient.Get(ctx, key).Result()
		if err == redis.Nil {
			// expired before the flush
			las.redisClient.ZRem(ctx, ActivityLogQueueKey, key)
			continue
		}
		if err != nil {
			failed++
			continue
		}

		var entry models.ActivityLog
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			logrus.WithError(err).WithField("key", key).Error("dropping unreadable cached log")
			las.redisClient.ZRem(ctx, ActivityLogQueueKey, key)
			failed++
			continue
		}
		entry.ID = 0
		if err := las.db.WithContext(ctx).Create(&entry).Error; err != nil {
			failed++
			continue
		}

		pipe := las.redisClient.Pipeline()
		pipe.Del(ctx, key)
		pipe.ZRem(ctx, ActivityLogQueueKey, key)
		if _, err := pipe.Exec(ctx); err != nil {
			logrus.WithError(err).WithField("key", key).Warn("failed to remove flushed log from cache")
		}
		processed++
	}

	logrus.WithFields(logrus.Fields{"flushed": processed, "errors": failed}).Info("activity log flush finished")
	return processed, nil
}

// ArchiveOldLogs zips activity and notification logs older than daysOld to the bucket,
// deletes them and records a LogArchive row per kind.
func (las *LogArchiveService) ArchiveOldLogs(ctx context.Context, daysOld int) error {
	if daysOld < MinArchiveDays {
		return errors.Errorf("minimum archive age is %d days", MinArchiveDays)
	}
	if las.bucket == nil {
		return ErrArchiveDisabled
	}
	cutoff := las.now().AddDate(0, 0, -daysOld)

	if err := las.archiveActivity(ctx, cutoff); err != nil {
		return errors.Wrap(err, "archive activity logs")
	}
	if las.notifLogs != nil {
		if err := las.archiveNotifications(ctx, cutoff); err != nil {
			return errors.Wrap(err, "archive notification logs")
		}
	}
	return nil
}

func (las *LogArchiveService) archiveActivity(ctx context.Context, cutoff time.Time) error {
	var logs []models.ActivityLog
	if err := las.db.WithContext(ctx).Where("created_at < ?", cutoff).Order("created_at ASC").Find(&logs).Error; err != nil {
		return err
	}
	if len(logs) == 0 {
		return nil
	}

	rows := make([][]string, 0, len(logs))
	for _, l := range logs {
		rows = append(rows, []string{
			strconv.FormatUint(uint64(l.ID), 10), l.ActorID, l.ActorRole, l.Action, l.Resource, l.ResourceID,
			l.IPAddress, l.UserAgent, l.CreatedAt.UTC().Format(time.RFC3339), string(l.Details),
		})
	}
	header := []string{"id", "actor_id", "actor_role", "action", "resource", "resource_id", "ip_address", "user_agent", "created_at", "details"}

	return las.store(ctx, ArchiveKindActivity, cutoff, logs, header, rows, func() (int64, error) {
		res := las.db.WithContext(ctx).Unscoped().Where("created_at < ?", cutoff).Delete(&models.ActivityLog{})
		return res.RowsAffected, res.Error
	})
}

func (las *LogArchiveService) archiveNotifications(ctx context.Context, cutoff time.Time) error {
	logs, err := las.notifLogs.Before(ctx, cutoff)
	if err != nil {
		return err
	}
	if len(logs) == 0 {
		return nil
	}

	rows := make([][]string, 0, len(logs))
	for _, l := range logs {
		rows = append(rows, []string{
			l.ID, l.Title, l.Body, l.TargetType, l.Target, l.URL,
			strconv.Itoa(l.SuccessCount), strconv.Itoa(l.FailureCount), l.SentAt.UTC().Format(time.RFC3339),
		})
	}
	header := []string{"id", "title", "body", "target_type", "target", "url", "success_count", "failure_count", "sent_at"}

	return las.store(ctx, ArchiveKindNotification, cutoff, logs, header, rows, func() (int64, error) {
		return las.notifLogs.DeleteBefore(ctx, cutoff)
	})
}

// store uploads the zip, then deletes the source rows, then records the archive.
func (las *LogArchiveService) store(ctx context.Context, kind string, cutoff time.Time, records interface{}, header []string, rows [][]string, purge func() (int64, error)) error {
	fileName := fmt.Sprintf("%s_logs_%s.zip", kind, cutoff.Format("2006-01-02"))
	buf, err := BuildLogArchive(kind, fileName, las.now().UTC(), records, header, rows)
	if err != nil {
		return err
	}
	key := fmt.Sprintf("logs/archived/%s/%d/%02d/%s", kind, cutoff.Year(), cutoff.Month(), fileName)

	meta := models.LogArchive{
		Kind:        kind,
		FileName:    fileName,
		S3Key:       key,
		EndDate:     cutoff,
		RecordCount: len(rows),
		FileSize:    int64(buf.Len()),
		Status:      "completed",
	}
	if err := las.bucket.Put(ctx, key, buf.Bytes()); err != nil {
		meta.Status = "failed"
		meta.Error = err.Error()
		if dbErr := las.db.WithContext(ctx).Create(&meta).Error; dbErr != nil {
			logrus.WithError(dbErr).Error("failed to save archive metadata")
		}
		return errors.Wrap(err, "upload archive")
	}

	deleted, err := purge()
	if err != nil {
		return errors.Wrap(err, "delete archived rows")
	}
	if err := las.db.WithContext(ctx).Create(&meta).Error; err != nil {
		logrus.WithError(err).Error("failed to save archive metadata")
	}
	logrus.WithFields(logrus.Fields{"kind": kind, "key": key, "records": len(rows), "deleted": deleted}).Info("logs archived")
	return nil
}

// BuildLogArchive writes {kind}_logs.json, {kind}_logs.csv and metadata.json into a zip.
func BuildLogArchive(kind, fileName string, exportedAt time.Time, records interface{}, header []string, rows [][]string) (*bytes.Buffer, error) {
	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)

	jsonFile, err := zw.Create(kind + "_logs.json")
	if err != nil {
		return nil, err
	}
	enc := json.NewEncoder(jsonFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(map[string]interface{}{
		"export_date":    exportedAt,
		"record_count":   len(rows),
		"format_version": "1.0",
		"logs":           records,
	}); err != nil {
		return nil, err
	}

	csvFile, err := zw.Create(kind + "_logs.csv")
	if err != nil {
		return nil, err
	}
	cw := csv.NewWriter(csvFile)
	if err := cw.Write(header); err != nil {
		return nil, err
	}
	if err := cw.WriteAll(rows); err != nil {
		return nil, err
	}

	metaFile, err := zw.Create("metadata.json")
	if err != nil {
		return nil, err
	}
	if err := json.NewEncoder(metaFile).Encode(map[string]interface{}{
		"file_name":      fileName,
		"kind":           kind,
		"created_at":     exportedAt,
		"record_count":   len(rows),
		"schema_version": "1.0",
		"description":    "CampusDesk " + kind + " logs archive",
	}); err != nil {
		return nil, err
	}

	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf, nil
}

// GetArchivedLogs lists archive records, newest first.
func (las *LogArchiveService) GetArchivedLogs(ctx context.Context) ([]models.LogArchive, error) {
	var archives []models.LogArchive
	err := las.db.WithContext(ctx).Order("created_at DESC").Find(&archives).Error
	return archives, err
}

// DownloadArchivedLogs opens an archive from the bucket.
func (las *LogArchiveService) DownloadArchivedLogs(ctx context.Context, archiveID uint) (io.ReadCloser, string, error) {
	var archive models.LogArchive
	err := las.db.WithContext(ctx).First(&archive, archiveID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", ErrArchiveNotFound
	}
	if err != nil {
		return nil, "", err
	}
	if las.bucket == nil {
		return nil, "", ErrArchiveDisabled
	}
	reader, err := las.bucket.Get(ctx, archive.S3Key)
	if err != nil {
		return nil, "", errors.Wrap(err, "download archive")
	}
	return reader, archive.FileName, nil
}
