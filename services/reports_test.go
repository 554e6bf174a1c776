package services

import (
	"bytes"
	"errors"
	"mime/multipart"
	"testing"
	"time"

	"schoolreports_go/models"
	"schoolreports_go/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const twoMiB = 2 << 20

func newReportService(db *gorm.DB, store FileStore) *ReportService {
	return NewReportService(db, NewPermissionService(db), store, time.UTC, twoMiB)
}

func intPtr(v int) *int { return &v }

func TestReportCreateDerivesDayAndFreezesName(t *testing.T) {
	db := newTestDB(t)
	store := &fakeStore{}
	svc := newReportService(db, store)
	tc := makeTeacher(t, db, "فاطمة", models.RoleTeacher)

	png := []byte("\x89PNG\r\n\x1a\n....")
	r, err := svc.Create(tc, ReportInput{
		Title: "زيارة", ReportDate: "2024-01-01", Category: "VISIT", BeneficiariesCount: intPtr(30),
	}, []*multipart.FileHeader{fileHeader(t, "a.png", "image/png", png), fileHeader(t, "b.png", "image/png", png)})
	require.NoError(t, err)
	assert.Equal(t, "الاثنين", r.DayName)
	assert.Equal(t, "فاطمة", r.TeacherName)
	assert.Len(t, r.Images(), 2)
	assert.Len(t, store.uploads, 2)

	require.NoError(t, db.Model(&models.Teacher{}).Where("id = ?", tc.ID).Update("name", "اسم جديد").Error)
	var stored models.Report
	require.NoError(t, db.First(&stored, r.ID).Error)
	assert.Equal(t, "فاطمة", stored.TeacherName, "snapshot survives renames")
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), stored.ReportDate.UTC())

	explicit, err := svc.Create(tc, ReportInput{
		Title: "t", ReportDate: "2024-01-07", Category: "visit", DayName: "يوم", TeacherName: "اسم مكتوب",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "يوم", explicit.DayName)
	assert.Equal(t, "اسم مكتوب", explicit.TeacherName)
}

func TestReportCreateValidation(t *testing.T) {
	db := newTestDB(t)
	svc := newReportService(db, &fakeStore{})
	tc := makeTeacher(t, db, "م", models.RoleTeacher)
	require.NoError(t, db.Model(&models.ReportType{}).Where("code = ?", "other").Update("is_active", false).Error)

	tests := []struct {
		name   string
		in     ReportInput
		images []*multipart.FileHeader
		field  string
	}{
		{"missing title", ReportInput{ReportDate: "2024-01-01", Category: "visit"}, nil, "title"},
		{"bad date", ReportInput{Title: "t", ReportDate: "01/01/2024", Category: "visit"}, nil, "report_date"},
		{"negative beneficiaries", ReportInput{Title: "t", ReportDate: "2024-01-01", Category: "visit", BeneficiariesCount: intPtr(-1)}, nil, "beneficiaries_count"},
		{"unknown category", ReportInput{Title: "t", ReportDate: "2024-01-01", Category: "nope"}, nil, "category"},
		{"inactive category", ReportInput{Title: "t", ReportDate: "2024-01-01", Category: "other"}, nil, "category"},
		{
			"image too large",
			ReportInput{Title: "t", ReportDate: "2024-01-01", Category: "visit"},
			[]*multipart.FileHeader{fileHeader(t, "big.png", "image/png", bytes.Repeat([]byte{1}, twoMiB+1))},
			"image1",
		},
		{
			"not an image",
			ReportInput{Title: "t", ReportDate: "2024-01-01", Category: "visit"},
			[]*multipart.FileHeader{fileHeader(t, "x.pdf", "application/pdf", []byte("%PDF-"))},
			"image1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(tc, tt.in, tt.images)
			var ve utils.ValidationErrors
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.Contains(t, ve, tt.field)
		})
	}
}

func TestReportOwnership(t *testing.T) {
	db := newTestDB(t)
	store := &fakeStore{}
	svc := newReportService(db, store)
	owner := makeTeacher(t, db, "مالك", models.RoleTeacher)
	other := makeTeacher(t, db, "غريب", models.RoleTeacher)

	r, err := svc.Create(owner, ReportInput{Title: "t", ReportDate: "2024-01-02", Category: "visit"}, nil)
	require.NoError(t, err)

	_, err = svc.Update(other, r.ID, ReportInput{Title: "x", ReportDate: "2024-01-02", Category: "visit"}, nil)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, svc.DeleteMine(other, r.ID), ErrNotFound)

	updated, err := svc.Update(owner, r.ID, ReportInput{Title: "جديد", ReportDate: "2024-01-03", Category: "activity"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "جديد", updated.Title)
	assert.Equal(t, "الأربعاء", updated.DayName, "day name follows the new date")

	require.NoError(t, svc.DeleteMine(owner, r.ID))
	_, err = svc.ReportForUser(owner, r.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReportUpdateKeepsTeacherName(t *testing.T) {
	db := newTestDB(t)
	svc := newReportService(db, &fakeStore{})
	owner := makeTeacher(t, db, "الاسم القديم", models.RoleTeacher)

	r, err := svc.Create(owner, ReportInput{Title: "t", ReportDate: "2024-01-02", Category: "visit"}, nil)
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.Teacher{}).Where("id = ?", owner.ID).Update("name", "الاسم الجديد").Error)
	owner.Name = "الاسم الجديد"

	_, err = svc.Update(owner, r.ID, ReportInput{Title: "معدّل", ReportDate: "2024-01-02", Category: "visit"}, nil)
	require.NoError(t, err)
	_, err = svc.Update(owner, r.ID, ReportInput{Title: "معدّل", ReportDate: "2024-01-02", Category: "visit", TeacherName: "اسم آخر"}, nil)
	require.NoError(t, err)

	var stored models.Report
	require.NoError(t, db.First(&stored, r.ID).Error)
	assert.Equal(t, "معدّل", stored.Title)
	assert.Equal(t, "الاسم القديم", stored.TeacherName)
}

func TestReportCreateRemovesUploadsWhenSaveFails(t *testing.T) {
	db := newTestDB(t)
	store := &fakeStore{}
	svc := newReportService(db, store)
	tc := makeTeacher(t, db, "م", models.RoleTeacher)
	require.NoError(t, db.Callback().Create().Before("gorm:create").Register("test:fail_reports", func(tx *gorm.DB) {
		if tx.Statement.Table == "reports" {
			tx.AddError(errors.New("write failed"))
		}
	}))

	png := []byte("\x89PNG\r\n\x1a\n....")
	_, err := svc.Create(tc, ReportInput{Title: "t", ReportDate: "2024-01-02", Category: "visit"},
		[]*multipart.FileHeader{fileHeader(t, "a.png", "image/png", png)})
	require.Error(t, err)
	require.Len(t, store.uploads, 1)
	assert.Equal(t, store.uploads, store.deleted)
}

func seedReport(t *testing.T, db *gorm.DB, owner *models.Teacher, code string, date time.Time) *models.Report {
	t.Helper()
	rt := reportType(t, db, code)
	r := &models.Report{TeacherID: owner.ID, Teacher: owner, Title: code, ReportDate: date, CategoryID: &rt.ID}
	require.NoError(t, db.Omit(clause.Associations).Create(r).Error)
	return r
}

func TestAdminReportsFilters(t *testing.T) {
	db := newTestDB(t)
	svc := newReportService(db, &fakeStore{})
	d := makeDepartment(t, db, "الزيارات", "visits", "visit")
	officer := makeTeacher(t, db, "ضابط", models.RoleTeacher)
	addMember(t, db, d, officer, models.MembershipOfficer)
	manager := makeTeacher(t, db, "مدير", models.RoleManager)

	ali := makeTeacher(t, db, "علي أحمد", models.RoleTeacher)
	omar := makeTeacher(t, db, "عمر", models.RoleTeacher)
	jan := func(day int) time.Time { return time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC) }
	seedReport(t, db, ali, "visit", jan(1))
	seedReport(t, db, ali, "activity", jan(2))
	seedReport(t, db, omar, "visit", jan(3))

	all, err := svc.AdminReports(manager, ReportFilter{}, utils.NewPagination(1, AdminReportsPageSize))
	require.NoError(t, err)
	assert.EqualValues(t, 3, all.Pagination.Total)
	assert.Len(t, all.Categories, 5)

	byName, err := svc.AdminReports(manager, ReportFilter{Teacher: "أحمد علي"}, utils.NewPagination(1, 20))
	require.NoError(t, err)
	assert.EqualValues(t, 2, byName.Pagination.Total, "every token must match")

	start, end := jan(2), jan(3)
	ranged, err := svc.AdminReports(manager, ReportFilter{Start: &start, End: &end}, utils.NewPagination(1, 20))
	require.NoError(t, err)
	assert.EqualValues(t, 2, ranged.Pagination.Total)

	scoped, err := svc.AdminReports(officer, ReportFilter{}, utils.NewPagination(1, 20))
	require.NoError(t, err)
	assert.EqualValues(t, 2, scoped.Pagination.Total)
	require.Len(t, scoped.Categories, 1)
	assert.Equal(t, "visit", scoped.Categories[0].Code)

	ignored, err := svc.AdminReports(officer, ReportFilter{Category: "activity"}, utils.NewPagination(1, 20))
	require.NoError(t, err)
	assert.Empty(t, ignored.Category, "category outside the allowed set is not honored")
	assert.EqualValues(t, 2, ignored.Pagination.Total)

	honored, err := svc.AdminReports(manager, ReportFilter{Category: "activity"}, utils.NewPagination(1, 20))
	require.NoError(t, err)
	assert.EqualValues(t, 1, honored.Pagination.Total)
}

func TestOfficerReports(t *testing.T) {
	db := newTestDB(t)
	svc := newReportService(db, &fakeStore{})
	d := makeDepartment(t, db, "الزيارات", "visits", "visit")
	officer := makeTeacher(t, db, "ضابط", models.RoleTeacher)
	addMember(t, db, d, officer, models.MembershipOfficer)
	author := makeTeacher(t, db, "كاتب", models.RoleTeacher)
	visit := seedReport(t, db, author, "visit", time.Now())
	seedReport(t, db, author, "activity", time.Now())

	su := makeTeacher(t, db, "su", "")
	su.IsSuperuser = true
	_, err := svc.OfficerReports(su, ReportFilter{}, utils.NewPagination(1, OfficerReportsPageSize))
	assert.ErrorIs(t, err, ErrUseAdminReports)

	_, err = svc.OfficerReports(author, ReportFilter{}, utils.NewPagination(1, OfficerReportsPageSize))
	assert.ErrorIs(t, err, ErrNotOfficer)

	listing, err := svc.OfficerReports(officer, ReportFilter{}, utils.NewPagination(1, OfficerReportsPageSize))
	require.NoError(t, err)
	require.Len(t, listing.Reports, 1)
	assert.Equal(t, visit.ID, listing.Reports[0].ID)
	assert.Equal(t, OfficerReportsPageSize, listing.Pagination.Limit)

	require.NoError(t, svc.OfficerDelete(officer, visit.ID))
	assert.ErrorIs(t, svc.OfficerDelete(officer, visit.ID), ErrNotFound)
}

func TestOfficerReportsFallBackToRoleTypes(t *testing.T) {
	db := newTestDB(t)
	svc := newReportService(db, &fakeStore{})
	d := makeDepartment(t, db, "بلا أنواع", "bare")
	role := roleBySlug(t, db, "bare")
	require.NoError(t, db.Model(role).Association("AllowedReportTypes").Append(reportType(t, db, "program")))

	officer := makeTeacher(t, db, "ضابط", models.RoleTeacher)
	addMember(t, db, d, officer, models.MembershipOfficer)
	listing, err := svc.OfficerReports(officer, ReportFilter{}, utils.NewPagination(1, 25))
	require.NoError(t, err)
	assert.Empty(t, listing.Categories, "officer's own role has no allowed types")

	legacy := makeTeacher(t, db, "قديم", "bare")
	listing, err = svc.OfficerReports(legacy, ReportFilter{}, utils.NewPagination(1, 25))
	require.NoError(t, err)
	require.Len(t, listing.Categories, 1)
	assert.Equal(t, "program", listing.Categories[0].Code)
}

func TestReportPrintSigner(t *testing.T) {
	db := newTestDB(t)
	svc := newReportService(db, &fakeStore{})
	makeDepartment(t, db, "قسم الزيارات", "visits", "visit")
	author := makeTeacher(t, db, "كاتب", models.RoleTeacher)

	withDept := seedReport(t, db, author, "visit", time.Now())
	p, err := svc.Print(author, withDept.ID)
	require.NoError(t, err)
	assert.Equal(t, "قسم الزيارات", p.SignerLabel)

	without := seedReport(t, db, author, "other", time.Now())
	p, err = svc.Print(author, without.ID)
	require.NoError(t, err)
	assert.Equal(t, DefaultSignerName, p.SignerLabel)
}

func TestReportHomeStats(t *testing.T) {
	db := newTestDB(t)
	svc := newReportService(db, &fakeStore{})
	tc := makeTeacher(t, db, "م", models.RoleTeacher)
	now := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	seedReport(t, db, tc, "visit", utils.DateOnly(now))
	seedReport(t, db, tc, "visit", utils.DateOnly(now.AddDate(0, 0, -3)))

	st, err := svc.HomeStats(tc, now)
	require.NoError(t, err)
	assert.EqualValues(t, 2, st.Total)
	assert.EqualValues(t, 1, st.Today)
	assert.Len(t, st.Recent, 2)
	assert.NotEmpty(t, st.LastTitle)
}

func TestReportExport(t *testing.T) {
	db := newTestDB(t)
	svc := newReportService(db, &fakeStore{})
	manager := makeTeacher(t, db, "مدير", models.RoleManager)
	author := makeTeacher(t, db, "كاتب", models.RoleTeacher)
	seedReport(t, db, author, "visit", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	data, err := svc.Export(manager, ReportFilter{})
	require.NoError(t, err)
	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(f.GetSheetName(0))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "التاريخ", rows[0][0])
	assert.Equal(t, "2024-01-01", rows[1][0])
	assert.Equal(t, "كاتب", rows[1][2])
}

func TestReportTypeDeleteBlockedWhileInUse(t *testing.T) {
	db := newTestDB(t)
	svc := NewReportTypeService(db)
	author := makeTeacher(t, db, "كاتب", models.RoleTeacher)
	visit := reportType(t, db, "visit")
	seedReport(t, db, author, "visit", time.Now())

	err := svc.Delete(visit.ID)
	assert.ErrorIs(t, err, ErrReportTypeInUse)
	var inUse *InUseError
	require.ErrorAs(t, err, &inUse)
	assert.EqualValues(t, 1, inUse.Count)
	assert.Contains(t, InUseMessage(inUse), "زيارة")

	other := reportType(t, db, "other")
	require.NoError(t, svc.Delete(other.ID))
	_, err = svc.Get(other.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := svc.List()
	require.NoError(t, err)
	for _, rt := range list {
		if rt.Code == "visit" {
			assert.EqualValues(t, 1, rt.ReportsCount)
		}
	}

	_, err = svc.Create(ReportTypeInput{Code: "VISIT", Name: "dup"})
	var ve utils.ValidationErrors
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve, "code")
}
