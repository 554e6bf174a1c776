package services

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/http/httptest"
	"net/textproto"
	"sync"
	"testing"

	"schoolreports_go/database"
	"schoolreports_go/database/seeders"
	"schoolreports_go/models"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func newTestDB(t *testing.T) *gorm.DB {
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
	return db
}

func roleBySlug(t *testing.T, db *gorm.DB, slug string) *models.Role {
	t.Helper()
	var r models.Role
	require.NoError(t, db.Where("slug = ?", slug).First(&r).Error)
	return &r
}

var phoneSeq struct {
	sync.Mutex
	n int
}

func nextPhone() string {
	phoneSeq.Lock()
	defer phoneSeq.Unlock()
	phoneSeq.n++
	return fmt.Sprintf("05%08d", phoneSeq.n)
}

// makeTeacher inserts an active teacher holding the role roleSlug ("" for none).
func makeTeacher(t *testing.T, db *gorm.DB, name, roleSlug string) *models.Teacher {
	t.Helper()
	tc := &models.Teacher{Phone: nextPhone(), Name: name, Password: "x", IsActive: true}
	if roleSlug != "" {
		r := roleBySlug(t, db, roleSlug)
		tc.RoleID = &r.ID
		tc.Role = r
	}
	require.NoError(t, db.Omit(clause.Associations).Create(tc).Error)
	return tc
}

func makeDepartment(t *testing.T, db *gorm.DB, name, slug string, typeCodes ...string) *models.Department {
	t.Helper()
	var ids []uint
	if len(typeCodes) > 0 {
		require.NoError(t, db.Model(&models.ReportType{}).Where("code IN ?", typeCodes).Pluck("id", &ids).Error)
	}
	d := &models.Department{Name: name, Slug: slug, IsActive: true}
	require.NoError(t, NewDepartmentService(db).Save(d, ids, len(typeCodes) > 0))
	return d
}

func addMember(t *testing.T, db *gorm.DB, d *models.Department, tc *models.Teacher, roleType string) {
	t.Helper()
	_, err := NewDepartmentService(db).AddMember(d, tc.ID, roleType)
	require.NoError(t, err)
}

func reportType(t *testing.T, db *gorm.DB, code string) *models.ReportType {
	t.Helper()
	var rt models.ReportType
	require.NoError(t, db.Where("code = ?", code).First(&rt).Error)
	return &rt
}

// fakeStore records uploads in memory.
type fakeStore struct {
	mu      sync.Mutex
	uploads []string
	deleted []string
}

func (f *fakeStore) UploadFile(file *multipart.FileHeader, folder string, userID uint) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	url := fmt.Sprintf("https://bucket.s3.test.amazonaws.com/%s/%d/%d-%s", folder, userID, len(f.uploads), file.Filename)
	f.uploads = append(f.uploads, url)
	return url, nil
}

func (f *fakeStore) DeleteFile(url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, url)
	return nil
}

type pushed struct {
	teacherID uint
	event     string
	data      interface{}
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []pushed
}

func (f *fakeNotifier) SendToUser(teacherID uint, event string, data interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, pushed{teacherID, event, data})
}

type fakeLine struct {
	groups []string
	texts  []string
}

func (f *fakeLine) PushToGroup(groupID, text string) error {
	f.groups = append(f.groups, groupID)
	f.texts = append(f.texts, text)
	return nil
}

// fileHeader parses a one-file multipart body so size and headers are real.
func fileHeader(t *testing.T, name, contentType string, content []byte) *multipart.FileHeader {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+name+`"`)
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest("POST", "/", body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(1<<20))
	return req.MultipartForm.File["file"][0]
}
