package notifications

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"schoolreports_go/database"
	"schoolreports_go/database/seeders"
	"schoolreports_go/models"
	"schoolreports_go/services"
	"schoolreports_go/services/websocket"
	"schoolreports_go/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type recorder struct {
	mu  sync.Mutex
	ids []uint
}

func (r *recorder) SendToUser(teacherID uint, event string, data interface{}) {
	if event != websocket.EventNotification {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, teacherID)
}

type fixture struct {
	db      *gorm.DB
	svc     *Service
	hub     *recorder
	manager *models.Teacher
	officer *models.Teacher
	member  *models.Teacher
	other   *models.Teacher
}

var phones int

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.OpenSQLite(":memory:", nil)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	require.NoError(t, seeders.SeedAll(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	f := &fixture{db: db, hub: &recorder{}}
	f.svc = NewService(db, services.NewPermissionService(db), nil, f.hub)

	depts := services.NewDepartmentService(db)
	d, err := depts.Create(services.DepartmentInput{Name: "الإرشاد", Slug: "guidance"})
	require.NoError(t, err)

	mk := func(name, role string) *models.Teacher {
		var r models.Role
		require.NoError(t, db.Where("slug = ?", role).First(&r).Error)
		phones++
		tc := &models.Teacher{Phone: fmt.Sprintf("055%07d", phones), Name: name, Password: "x", IsActive: true, RoleID: &r.ID, Role: &r}
		require.NoError(t, db.Omit(clause.Associations).Create(tc).Error)
		return tc
	}
	f.manager = mk("المدير", models.RoleManager)
	f.officer = mk("المرشد", models.RoleTeacher)
	f.member = mk("عضو", models.RoleTeacher)
	f.other = mk("آخر", models.RoleTeacher)
	_, err = depts.AddMember(d, f.officer.ID, models.MembershipOfficer)
	require.NoError(t, err)
	_, err = depts.AddMember(d, f.member.ID, models.MembershipTeacher)
	require.NoError(t, err)
	return f
}

func TestComposeDedupesRecipients(t *testing.T) {
	f := newFixture(t)
	n, count, err := f.svc.Compose(f.manager, ComposeInput{
		Title: "اجتماع", Message: "غدًا الساعة العاشرة",
		TeacherIDs: []uint{f.member.ID, f.other.ID, f.member.ID, 0},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	var rows int64
	f.db.Model(&models.NotificationRecipient{}).Where("notification_id = ?", n.ID).Count(&rows)
	assert.EqualValues(t, 2, rows)
	assert.ElementsMatch(t, []uint{f.member.ID, f.other.ID}, f.hub.ids)
}

func TestComposePermissions(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.svc.Compose(f.member, ComposeInput{Message: "x", TeacherIDs: []uint{f.other.ID}})
	assert.ErrorIs(t, err, services.ErrForbidden)

	_, _, err = f.svc.Compose(f.officer, ComposeInput{Message: "x", TeacherIDs: []uint{f.other.ID}})
	var ve utils.ValidationErrors
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve, "teacher_ids")

	_, count, err := f.svc.Compose(f.officer, ComposeInput{Message: "x", TeacherIDs: []uint{f.member.ID}})
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	recipients, err := f.svc.Recipients(f.officer)
	require.NoError(t, err)
	ids := make([]uint, 0, len(recipients))
	for _, r := range recipients {
		ids = append(ids, r.ID)
	}
	assert.ElementsMatch(t, []uint{f.officer.ID, f.member.ID}, ids)

	past := time.Now().UTC().Add(-time.Hour)
	_, _, err = f.svc.Compose(f.manager, ComposeInput{Message: "x", TeacherIDs: []uint{f.member.ID}, ExpiresAt: &past})
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve, "expires_at")

	_, _, err = f.svc.Compose(f.manager, ComposeInput{Message: "x"})
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve, "teacher_ids")
}

func TestReadTracking(t *testing.T) {
	f := newFixture(t)
	first, _, err := f.svc.Compose(f.manager, ComposeInput{Message: "1", TeacherIDs: []uint{f.member.ID}})
	require.NoError(t, err)
	_, _, err = f.svc.Compose(f.manager, ComposeInput{Message: "2", TeacherIDs: []uint{f.member.ID}})
	require.NoError(t, err)

	assert.EqualValues(t, 2, f.svc.UnreadCount(f.member.ID))
	require.NoError(t, f.svc.MarkRead(f.member.ID, first.ID))
	assert.EqualValues(t, 1, f.svc.UnreadCount(f.member.ID))
	require.NoError(t, f.svc.MarkRead(f.member.ID, first.ID), "marking twice is a no-op")
	assert.EqualValues(t, 1, f.svc.UnreadCount(f.member.ID))
	assert.ErrorIs(t, f.svc.MarkRead(f.other.ID, first.ID), services.ErrNotFound)

	unread, p, err := f.svc.List(f.member.ID, true, utils.NewPagination(1, 20))
	require.NoError(t, err)
	assert.EqualValues(t, 1, p.Total)
	assert.Len(t, unread, 1)

	changed, err := f.svc.MarkAllRead(f.member.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, changed)
	assert.Zero(t, f.svc.UnreadCount(f.member.ID))

	all, _, err := f.svc.List(f.member.ID, false, utils.NewPagination(1, 20))
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestHero(t *testing.T) {
	f := newFixture(t)
	assert.Nil(t, f.svc.Hero(f.member.ID, nil))

	older, _, err := f.svc.Compose(f.manager, ComposeInput{Message: "قديم", TeacherIDs: []uint{f.member.ID}})
	require.NoError(t, err)
	newer, _, err := f.svc.Compose(f.manager, ComposeInput{Message: "جديد", IsImportant: true, TeacherIDs: []uint{f.member.ID}})
	require.NoError(t, err)

	h := f.svc.Hero(f.member.ID, nil)
	require.NotNil(t, h)
	assert.Equal(t, newer.ID, h.ID)
	assert.Equal(t, utils.DefaultNotificationTitle, h.Title)
	assert.Equal(t, "المدير", h.SenderName)
	assert.True(t, h.IsImportant)

	dismissed := DismissedIDs([]string{
		fmt.Sprintf("%s%d", DismissCookiePrefix, newer.ID), "session", DismissCookiePrefix + "abc",
	})
	assert.Equal(t, []uint{newer.ID}, dismissed)
	h = f.svc.Hero(f.member.ID, dismissed)
	require.NotNil(t, h)
	assert.Equal(t, older.ID, h.ID)

	require.NoError(t, f.svc.SetActive(f.manager, older.ID, false))
	assert.Nil(t, f.svc.Hero(f.member.ID, dismissed), "inactive notifications are hidden")
}

func TestExpiredNotificationHidden(t *testing.T) {
	f := newFixture(t)
	past := time.Now().UTC().Add(-time.Minute)
	n := &models.Notification{Message: "انتهى", IsActive: true, ExpiresAt: &past}
	require.NoError(t, f.db.Create(n).Error)
	require.NoError(t, f.db.Create(&models.NotificationRecipient{NotificationID: n.ID, TeacherID: f.member.ID}).Error)

	assert.Nil(t, f.svc.Hero(f.member.ID, nil))
	assert.Zero(t, f.svc.UnreadCount(f.member.ID))
}

func TestSentAndSetActive(t *testing.T) {
	f := newFixture(t)
	n, _, err := f.svc.Compose(f.officer, ComposeInput{Message: "x", TeacherIDs: []uint{f.member.ID, f.officer.ID}})
	require.NoError(t, err)
	require.NoError(t, f.svc.MarkRead(f.member.ID, n.ID))
	_, _, err = f.svc.Compose(f.manager, ComposeInput{Message: "y", TeacherIDs: []uint{f.other.ID}})
	require.NoError(t, err)

	mine, p, err := f.svc.Sent(f.officer, utils.NewPagination(1, 20))
	require.NoError(t, err)
	assert.EqualValues(t, 1, p.Total)
	require.Len(t, mine, 1)
	assert.EqualValues(t, 2, mine[0].RecipientsCount)
	assert.EqualValues(t, 1, mine[0].ReadCount)

	everything, _, err := f.svc.Sent(f.manager, utils.NewPagination(1, 20))
	require.NoError(t, err)
	assert.Len(t, everything, 2)

	assert.ErrorIs(t, f.svc.SetActive(f.member, n.ID, false), services.ErrForbidden)
	require.NoError(t, f.svc.SetActive(f.officer, n.ID, false))
	assert.ErrorIs(t, f.svc.SetActive(f.manager, 9999, false), services.ErrNotFound)
}

func TestUnreadTTLStopsAtNextExpiry(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	soon := now.Add(20 * time.Second)
	later := now.Add(time.Hour)
	gone := now.Add(-time.Second)

	assert.Equal(t, unreadCacheTTL, unreadTTL(now, nil))
	assert.Equal(t, unreadCacheTTL, unreadTTL(now, &later))
	assert.Equal(t, 20*time.Second, unreadTTL(now, &soon))
	assert.LessOrEqual(t, unreadTTL(now, &gone), time.Duration(0), "already expired is never cached")
}

func TestUnreadCountDropsDeactivated(t *testing.T) {
	f := newFixture(t)
	n, _, err := f.svc.Compose(f.manager, ComposeInput{Message: "x", TeacherIDs: []uint{f.member.ID}})
	require.NoError(t, err)
	assert.EqualValues(t, 1, f.svc.UnreadCount(f.member.ID))

	require.NoError(t, f.svc.SetActive(f.manager, n.ID, false))
	assert.Zero(t, f.svc.UnreadCount(f.member.ID))

	soon := time.Now().UTC().Add(time.Minute)
	_, _, err = f.svc.Compose(f.manager, ComposeInput{Message: "y", TeacherIDs: []uint{f.member.ID}, ExpiresAt: &soon})
	require.NoError(t, err)
	assert.EqualValues(t, 1, f.svc.UnreadCount(f.member.ID))
	f.svc.now = func() time.Time { return soon.Add(time.Second) }
	assert.Zero(t, f.svc.UnreadCount(f.member.ID))
}
