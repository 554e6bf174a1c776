package notifications

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"schoolreports_go/models"
	"schoolreports_go/services"
	"schoolreports_go/services/websocket"
	"schoolreports_go/utils"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	// DismissCookiePrefix names the cookies a browser sets to hide the hero banner.
	DismissCookiePrefix = "notif_dismissed_"

	unreadCacheTTL = time.Minute
	insertBatch    = 500
)

// Service fans notifications out to teachers and tracks per-recipient read state.
// Redis is optional: it only caches unread counters.
type Service struct {
	db    *gorm.DB
	perms *services.PermissionService
	redis *redis.Client
	hub   services.UserNotifier
	now   func() time.Time
}

func NewService(db *gorm.DB, perms *services.PermissionService, rdb *redis.Client, hub services.UserNotifier) *Service {
	return &Service{db: db, perms: perms, redis: rdb, hub: hub, now: func() time.Time { return time.Now().UTC() }}
}

// ComposeInput is the compose form.
type ComposeInput struct {
	Title       string     `json:"title" validate:"max=120"`
	Message     string     `json:"message" validate:"required"`
	IsImportant bool       `json:"is_important"`
	ExpiresAt   *time.Time `json:"expires_at"`
	TeacherIDs  []uint     `json:"teacher_ids" validate:"required,min=1"`
}

func uniqueIDs(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Recipients lists the teachers sender may notify: everyone active for managers, otherwise
// the active members of the sender's departments.
func (s *Service) Recipients(sender *models.Teacher) ([]models.Teacher, error) {
	q := s.db.Model(&models.Teacher{}).Where("teachers.is_active = ?", true)
	if !s.perms.IsManager(sender) {
		codes := s.perms.DepartmentCodes(sender)
		if len(codes) == 0 {
			return []models.Teacher{}, nil
		}
		q = q.Where("(teachers.role_id IN (?) OR teachers.id IN (?))",
			s.db.Model(&models.Role{}).Select("id").Where("slug IN ?", codes),
			s.db.Table("department_memberships dm").
				Joins("JOIN departments d ON d.id = dm.department_id").
				Select("dm.teacher_id").
				Where("d.slug IN ?", codes))
	}
	var teachers []models.Teacher
	err := q.Select("teachers.id", "teachers.name", "teachers.phone").Order("teachers.name").Find(&teachers).Error
	return teachers, err
}

// Compose stores a notification and one recipient row per distinct teacher in a single
// transaction, then pushes it to connected recipients.
func (s *Service) Compose(sender *models.Teacher, in ComposeInput) (*models.Notification, int, error) {
	if !s.perms.CanSendNotifications(sender) {
		return nil, 0, services.ErrForbidden
	}
	if err := utils.ValidateStruct(in); err != nil {
		return nil, 0, err
	}
	ids := uniqueIDs(in.TeacherIDs)
	if len(ids) == 0 {
		return nil, 0, utils.NewValidationError("teacher_ids", "اختر معلمًا واحدًا على الأقل")
	}
	if in.ExpiresAt != nil && !in.ExpiresAt.After(s.now()) {
		return nil, 0, utils.NewValidationError("expires_at", "تاريخ الانتهاء يجب أن يكون في المستقبل")
	}

	allowed, err := s.Recipients(sender)
	if err != nil {
		return nil, 0, err
	}
	allowedSet := make(map[uint]struct{}, len(allowed))
	for _, t := range allowed {
		allowedSet[t.ID] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := allowedSet[id]; !ok {
			return nil, 0, utils.NewValidationError("teacher_ids", "لا يمكنك إرسال إشعار إلى معلمين خارج قسمك")
		}
	}

	n := &models.Notification{
		Title:       utils.SanitizeString(in.Title),
		Message:     strings.TrimSpace(in.Message),
		IsImportant: in.IsImportant,
		IsActive:    true,
		ExpiresAt:   in.ExpiresAt,
		CreatedByID: &sender.ID,
	}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(n).Error; err != nil {
			return err
		}
		rows := make([]models.NotificationRecipient, 0, len(ids))
		for _, id := range ids {
			rows = append(rows, models.NotificationRecipient{NotificationID: n.ID, TeacherID: id})
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).
			Omit(clause.Associations).
			CreateInBatches(&rows, insertBatch).Error
	})
	if err != nil {
		return nil, 0, err
	}

	n.CreatedBy = sender
	for _, id := range ids {
		s.forgetUnread(id)
		if s.hub != nil {
			s.hub.SendToUser(id, websocket.EventNotification, utils.ToNotificationDTO(models.NotificationRecipient{
				NotificationID: n.ID, TeacherID: id, Notification: n,
			}))
		}
	}
	logrus.WithFields(logrus.Fields{"notification_id": n.ID, "recipients": len(ids), "sender": sender.ID}).Info("notification sent")
	return n, len(ids), nil
}

// visibleUnread selects the unread recipient rows of teacherID whose notification is active
// and not expired.
func (s *Service) visibleUnread(teacherID uint) *gorm.DB {
	return s.db.Model(&models.NotificationRecipient{}).
		Joins("JOIN notifications n ON n.id = notification_recipients.notification_id").
		Where("notification_recipients.teacher_id = ? AND notification_recipients.is_read = ?", teacherID, false).
		Where("n.is_active = ?", true).
		Where("(n.expires_at IS NULL OR n.expires_at > ?)", s.now())
}

func unreadKey(teacherID uint) string {
	return fmt.Sprintf("notif:unread:%d", teacherID)
}

// UnreadCount never fails: lookup errors are logged and yield 0.
func (s *Service) UnreadCount(teacherID uint) int64 {
	ctx := context.Background()
	if s.redis != nil {
		if v, err := s.redis.Get(ctx, unreadKey(teacherID)).Int64(); err == nil {
			return v
		}
	}
	var n int64
	if err := s.visibleUnread(teacherID).Count(&n).Error; err != nil {
		logrus.WithError(err).WithField("teacher_id", teacherID).Warn("unread notification count failed")
		return 0
	}
	if s.redis != nil {
		var next []time.Time
		if err := s.visibleUnread(teacherID).
			Where("n.expires_at IS NOT NULL").
			Order("n.expires_at").Limit(1).
			Pluck("n.expires_at", &next).Error; err != nil {
			logrus.WithError(err).Debug("next notification expiry lookup failed")
			return n
		}
		var at *time.Time
		if len(next) > 0 {
			at = &next[0]
		}
		if ttl := unreadTTL(s.now(), at); ttl > 0 {
			if err := s.redis.Set(ctx, unreadKey(teacherID), n, ttl).Err(); err != nil {
				logrus.WithError(err).Debug("unread count cache write failed")
			}
		}
	}
	return n
}

// unreadTTL caps the counter's cache lifetime at the next expiry among the counted
// notifications, so an expiring notification drops out of the count on time.
func unreadTTL(now time.Time, nextExpiry *time.Time) time.Duration {
	if nextExpiry == nil {
		return unreadCacheTTL
	}
	if left := nextExpiry.Sub(now); left < unreadCacheTTL {
		return left
	}
	return unreadCacheTTL
}

func (s *Service) forgetUnread(teacherID uint) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Del(context.Background(), unreadKey(teacherID)).Err(); err != nil {
		logrus.WithError(err).Debug("unread count cache delete failed")
	}
}

// Hero is the banner payload for the newest unread notification.
type Hero struct {
	ID          uint   `json:"id"`
	Title       string `json:"title"`
	Body        string `json:"body"`
	SenderName  string `json:"sender_name"`
	IsImportant bool   `json:"is_important"`
}

// DismissedIDs extracts notification ids from cookie names like notif_dismissed_12.
func DismissedIDs(cookieNames []string) []uint {
	var out []uint
	for _, name := range cookieNames {
		if !strings.HasPrefix(name, DismissCookiePrefix) {
			continue
		}
		id, err := strconv.ParseUint(strings.TrimPrefix(name, DismissCookiePrefix), 10, 64)
		if err != nil || id == 0 {
			continue
		}
		out = append(out, uint(id))
	}
	return out
}

// Hero returns the newest visible unread notification not dismissed by the browser, or nil.
func (s *Service) Hero(teacherID uint, dismissed []uint) *Hero {
	q := s.visibleUnread(teacherID)
	if len(dismissed) > 0 {
		q = q.Where("notification_recipients.notification_id NOT IN ?", dismissed)
	}
	var r models.NotificationRecipient
	err := q.Preload("Notification.CreatedBy").
		Order("n.created_at DESC, n.id DESC").
		First(&r).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logrus.WithError(err).WithField("teacher_id", teacherID).Warn("hero notification lookup failed")
		}
		return nil
	}
	dto := utils.ToNotificationDTO(r)
	return &Hero{ID: dto.ID, Title: dto.Title, Body: dto.Message, SenderName: dto.SenderName, IsImportant: dto.IsImportant}
}

// MarkRead flags teacherID's recipient row of notificationID as read. Repeating it is a no-op.
func (s *Service) MarkRead(teacherID, notificationID uint) error {
	res := s.db.Model(&models.NotificationRecipient{}).
		Where("notification_id = ? AND teacher_id = ? AND is_read = ?", notificationID, teacherID, false).
		Updates(map[string]interface{}{"is_read": true, "read_at": s.now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var n int64
		s.db.Model(&models.NotificationRecipient{}).
			Where("notification_id = ? AND teacher_id = ?", notificationID, teacherID).
			Count(&n)
		if n == 0 {
			return services.ErrNotFound
		}
		return nil
	}
	s.forgetUnread(teacherID)
	return nil
}

// MarkAllRead flags every unread row of teacherID and returns how many changed.
func (s *Service) MarkAllRead(teacherID uint) (int64, error) {
	res := s.db.Model(&models.NotificationRecipient{}).
		Where("teacher_id = ? AND is_read = ?", teacherID, false).
		Updates(map[string]interface{}{"is_read": true, "read_at": s.now()})
	if res.Error != nil {
		return 0, res.Error
	}
	s.forgetUnread(teacherID)
	return res.RowsAffected, nil
}

// List returns teacherID's active notifications, newest first.
func (s *Service) List(teacherID uint, unreadOnly bool, p utils.Pagination) ([]models.NotificationRecipient, utils.Pagination, error) {
	q := s.db.Model(&models.NotificationRecipient{}).
		Joins("JOIN notifications n ON n.id = notification_recipients.notification_id").
		Where("notification_recipients.teacher_id = ? AND n.is_active = ?", teacherID, true)
	if unreadOnly {
		q = q.Where("notification_recipients.is_read = ?", false)
	}
	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, p, err
	}
	var rows []models.NotificationRecipient
	err := q.Preload("Notification.CreatedBy").
		Order("n.created_at DESC, n.id DESC").
		Scopes(utils.Paginate(p)).
		Find(&rows).Error
	return rows, p.WithTotal(total), err
}

// SentItem is a sent notification with delivery stats.
type SentItem struct {
	models.Notification
	RecipientsCount int64 `json:"recipients_count"`
	ReadCount       int64 `json:"read_count"`
}

// Sent lists notifications composed by sender; managers see every notification.
func (s *Service) Sent(sender *models.Teacher, p utils.Pagination) ([]SentItem, utils.Pagination, error) {
	q := s.db.Model(&models.Notification{})
	if !s.perms.IsManager(sender) {
		q = q.Where("notifications.created_by_id = ?", sender.ID)
	}
	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, p, err
	}
	var items []SentItem
	err := q.Select("notifications.*, "+
		"(SELECT COUNT(*) FROM notification_recipients r WHERE r.notification_id = notifications.id) AS recipients_count, "+
		"(SELECT COUNT(*) FROM notification_recipients r WHERE r.notification_id = notifications.id AND r.is_read = ?) AS read_count", true).
		Order("notifications.created_at DESC, notifications.id DESC").
		Scopes(utils.Paginate(p)).
		Scan(&items).Error
	return items, p.WithTotal(total), err
}

// SetActive hides or re-shows a notification. Only its author or a manager may do it.
func (s *Service) SetActive(u *models.Teacher, notificationID uint, active bool) error {
	var n models.Notification
	if err := s.db.First(&n, notificationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return services.ErrNotFound
		}
		return err
	}
	if !s.perms.IsManager(u) && (n.CreatedByID == nil || *n.CreatedByID != u.ID) {
		return services.ErrForbidden
	}
	if err := s.db.Model(&n).Update("is_active", active).Error; err != nil {
		return err
	}
	var ids []uint
	s.db.Model(&models.NotificationRecipient{}).Where("notification_id = ?", n.ID).Pluck("teacher_id", &ids)
	for _, id := range ids {
		s.forgetUnread(id)
	}
	return nil
}
