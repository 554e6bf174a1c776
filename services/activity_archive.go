package services

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"schoolreports_go/config"
	"schoolreports_go/database"
	"schoolreports_go/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-redis/redis/v8"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	minArchiveAgeDays = 7
	archiveBatchSize  = 1000
)

var ErrArchiveStorageDisabled = errors.New("archive storage is not configured")

// ArchiveUploader is the subset of the S3 client used to store log archives.
type ArchiveUploader interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ActivityArchiveService moves cached activity logs into the database and ships old ones to S3.
type ActivityArchiveService struct {
	db       *gorm.DB
	redis    *redis.Client
	uploader ArchiveUploader
	bucket   string
	days     int
	cron     *cron.Cron
	now      func() time.Time
}

// NewActivityArchiveService wires the S3 client from the default AWS credential chain.
func NewActivityArchiveService(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *ActivityArchiveService {
	var uploader ArchiveUploader
	awsConf, err := awscfg.LoadDefaultConfig(context.Background(), awscfg.WithRegion(cfg.AWSRegion))
	if err != nil {
		logrus.WithError(err).Warn("Failed to load AWS config; log archives will not be uploaded")
	} else {
		uploader = s3.NewFromConfig(awsConf)
	}
	return NewActivityArchiveServiceWith(db, rdb, uploader, cfg.S3BucketName, cfg.ArchiveAfterDays)
}

func NewActivityArchiveServiceWith(db *gorm.DB, rdb *redis.Client, uploader ArchiveUploader, bucket string, days int) *ActivityArchiveService {
	if days < minArchiveAgeDays {
		days = minArchiveAgeDays
	}
	return &ActivityArchiveService{db: db, redis: rdb, uploader: uploader, bucket: bucket, days: days, now: time.Now}
}

// FlushCachedLogs writes every queued log from Redis into the database.
func (s *ActivityArchiveService) FlushCachedLogs(ctx context.Context) (int, error) {
	if s.redis == nil {
		return 0, nil
	}
	keys, err := s.redis.ZRangeByScore(ctx, database.ActivityQueueKey, &redis.ZRangeBy{
		Min: "0",
		Max: strconv.FormatInt(s.now().Unix(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("read activity queue: %w", err)
	}

	flushed := 0
	for _, key := range keys {
		raw, err := s.redis.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			s.redis.ZRem(ctx, database.ActivityQueueKey, key)
			continue
		}
		if err != nil {
			logrus.WithError(err).WithField("key", key).Warn("cached activity log read failed")
			continue
		}
		var entry models.ActivityLog
		if err := json.Unmarshal(raw, &entry); err != nil {
			logrus.WithError(err).WithField("key", key).Warn("cached activity log is corrupt")
			s.redis.ZRem(ctx, database.ActivityQueueKey, key)
			continue
		}
		entry.ID = 0
		entry.Teacher = nil
		if err := s.db.Create(&entry).Error; err != nil {
			logrus.WithError(err).WithField("key", key).Error("Failed to save cached activity log")
			continue
		}
		pipe := s.redis.Pipeline()
		pipe.Del(ctx, key)
		pipe.ZRem(ctx, database.ActivityQueueKey, key)
		if _, err := pipe.Exec(ctx); err != nil {
			logrus.WithError(err).WithField("key", key).Warn("Failed to remove flushed log from cache")
		}
		flushed++
	}
	if flushed > 0 {
		logrus.WithField("count", flushed).Info("flushed cached activity logs")
	}
	return flushed, nil
}

// archivedLog is the exported row format inside archives.
type archivedLog struct {
	ID          uint            `json:"id"`
	TeacherID   uint            `json:"teacher_id"`
	TeacherName string          `json:"teacher_name,omitempty"`
	Action      string          `json:"action"`
	Resource    string          `json:"resource"`
	ResourceID  uint            `json:"resource_id"`
	Details     json.RawMessage `json:"details,omitempty"`
	IPAddress   string          `json:"ip_address"`
	UserAgent   string          `json:"user_agent"`
	CreatedAt   time.Time       `json:"created_at"`
}

// ArchiveOldLogs zips logs older than the configured age, uploads them and deletes them.
// It returns nil when there was nothing to archive.
func (s *ActivityArchiveService) ArchiveOldLogs(ctx context.Context) (*models.LogArchive, error) {
	if s.uploader == nil {
		return nil, ErrArchiveStorageDisabled
	}
	cutoff := s.now().AddDate(0, 0, -s.days)

	var rows []archivedLog
	var lastID uint
	for {
		var batch []models.ActivityLog
		err := s.db.Preload("Teacher").
			Where("created_at < ? AND id > ?", cutoff, lastID).
			Order("id").Limit(archiveBatchSize).
			Find(&batch).Error
		if err != nil {
			return nil, fmt.Errorf("fetch logs for archiving: %w", err)
		}
		if len(batch) == 0 {
			break
		}
		for _, l := range batch {
			row := archivedLog{
				ID: l.ID, TeacherID: l.TeacherID, Action: l.Action, Resource: l.Resource,
				ResourceID: l.ResourceID, IPAddress: l.IPAddress, UserAgent: l.UserAgent, CreatedAt: l.CreatedAt,
			}
			if !l.Details.IsNull() {
				row.Details = json.RawMessage(l.Details)
			}
			if l.Teacher != nil {
				row.TeacherName = l.Teacher.Name
			}
			rows = append(rows, row)
		}
		lastID = batch[len(batch)-1].ID
	}
	if len(rows) == 0 {
		return nil, nil
	}

	name := fmt.Sprintf("activity_logs_%s.zip", cutoff.Format("2006-01-02"))
	buf, err := zipArchive(rows, name)
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("logs/archived/%d/%02d/%s", cutoff.Year(), cutoff.Month(), name)

	archive := &models.LogArchive{
		FileName:    name,
		S3Key:       key,
		StartDate:   rows[0].CreatedAt,
		EndDate:     cutoff,
		RecordCount: len(rows),
		FileSize:    int64(buf.Len()),
		Status:      "completed",
	}
	_, err = s.uploader.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/zip"),
	})
	if err != nil {
		archive.Status, archive.Error = "failed", err.Error()
		if dbErr := s.db.Create(archive).Error; dbErr != nil {
			logrus.WithError(dbErr).Error("Failed to save archive metadata")
		}
		return archive, fmt.Errorf("upload archive: %w", err)
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("created_at < ? AND id <= ?", cutoff, lastID).Delete(&models.ActivityLog{}).Error; err != nil {
			return err
		}
		return tx.Create(archive).Error
	})
	if err != nil {
		return nil, fmt.Errorf("delete archived logs: %w", err)
	}
	logrus.WithFields(logrus.Fields{"key": key, "records": len(rows)}).Info("archived activity logs")
	return archive, nil
}

func zipArchive(rows []archivedLog, name string) (*bytes.Buffer, error) {
	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)

	f, err := zw.Create("activity_logs.json")
	if err != nil {
		return nil, err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(map[string]any{
		"file_name":      name,
		"export_date":    time.Now().UTC(),
		"record_count":   len(rows),
		"format_version": "1.0",
		"logs":           rows,
	}); err != nil {
		return nil, err
	}

	f, err = zw.Create("activity_logs.csv")
	if err != nil {
		return nil, err
	}
	w := csv.NewWriter(f)
	w.Write([]string{"ID", "Teacher ID", "Teacher", "Action", "Resource", "Resource ID", "IP Address", "User Agent", "Created At", "Details"})
	for _, r := range rows {
		w.Write([]string{
			strconv.FormatUint(uint64(r.ID), 10),
			strconv.FormatUint(uint64(r.TeacherID), 10),
			r.TeacherName, r.Action, r.Resource,
			strconv.FormatUint(uint64(r.ResourceID), 10),
			r.IPAddress, r.UserAgent,
			r.CreatedAt.Format("2006-01-02 15:04:05"),
			string(r.Details),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf, nil
}

// Archives lists archive records, newest first.
func (s *ActivityArchiveService) Archives() ([]models.LogArchive, error) {
	var out []models.LogArchive
	err := s.db.Order("created_at DESC, id DESC").Find(&out).Error
	return out, err
}

func (s *ActivityArchiveService) runMaintenance() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	if _, err := s.FlushCachedLogs(ctx); err != nil {
		logrus.WithError(err).Warn("activity log flush failed")
	}
	if _, err := s.ArchiveOldLogs(ctx); err != nil && !errors.Is(err, ErrArchiveStorageDisabled) {
		logrus.WithError(err).Warn("activity log archive failed")
	}
}

// Start schedules hourly maintenance.
func (s *ActivityArchiveService) Start() error {
	s.cron = cron.New()
	if _, err := s.cron.AddFunc("@hourly", s.runMaintenance); err != nil {
		return err
	}
	s.cron.Start()
	logrus.Info("activity log maintenance scheduled hourly")
	return nil
}

// Stop waits for a running job to finish.
func (s *ActivityArchiveService) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}
