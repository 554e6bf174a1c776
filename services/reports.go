package services

import (
	"bytes"
	"errors"
	"fmt"
	"mime/multipart"
	"strings"
	"time"

	"schoolreports_go/models"
	"schoolreports_go/storage"
	"schoolreports_go/utils"

	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	MyReportsPageSize      = 10
	AdminReportsPageSize   = 20
	OfficerReportsPageSize = 25

	maxReportImages   = 4
	maxExportRows     = 5000
	DefaultSignerName = "القسم"
)

// FileStore is the upload backend used for report images and ticket attachments.
type FileStore interface {
	UploadFile(file *multipart.FileHeader, folder string, userID uint) (string, error)
	DeleteFile(url string) error
}

type ReportService struct {
	db           *gorm.DB
	perms        *PermissionService
	store        FileStore
	loc          *time.Location
	maxImageSize int64
}

func NewReportService(db *gorm.DB, perms *PermissionService, store FileStore, loc *time.Location, maxImageSize int64) *ReportService {
	if loc == nil {
		loc = time.UTC
	}
	return &ReportService{db: db, perms: perms, store: store, loc: loc, maxImageSize: maxImageSize}
}

// ReportInput is the create/update form. Category is a report type code; TeacherName is
// only read on create.
type ReportInput struct {
	Title              string `json:"title" form:"title" validate:"required,max=255"`
	ReportDate         string `json:"report_date" form:"report_date" validate:"required"`
	DayName            string `json:"day_name" form:"day_name" validate:"max=20"`
	TeacherName        string `json:"teacher_name" form:"teacher_name"`
	BeneficiariesCount *int   `json:"beneficiaries_count" form:"beneficiaries_count" validate:"omitempty,gte=0"`
	Idea               string `json:"idea" form:"idea"`
	Category           string `json:"category" form:"category" validate:"required"`
}

// ReportFilter narrows listings. Dates are inclusive.
type ReportFilter struct {
	Start      *time.Time
	End        *time.Time
	Teacher    string
	Category   string
	CategoryID uint
}

// ReportFilterFromQuery parses start_date, end_date, teacher_name, category.
func ReportFilterFromQuery(get func(string) string, loc *time.Location) (ReportFilter, error) {
	f := ReportFilter{Teacher: get("teacher_name"), Category: strings.TrimSpace(get("category"))}
	ve := utils.ValidationErrors{}
	var err error
	if f.Start, err = utils.ParseDate(get("start_date"), loc); err != nil {
		ve.Add("start_date", "تاريخ غير صالح")
	}
	if f.End, err = utils.ParseDate(get("end_date"), loc); err != nil {
		ve.Add("end_date", "تاريخ غير صالح")
	}
	return f, ve.OrNil()
}

func (f ReportFilter) apply(q *gorm.DB) *gorm.DB {
	if f.Start != nil {
		q = q.Where("reports.report_date >= ?", utils.DateOnly(*f.Start))
	}
	if f.End != nil {
		q = q.Where("reports.report_date <= ?", utils.DateOnly(*f.End))
	}
	for _, tok := range utils.SearchTokens(f.Teacher) {
		q = q.Where("reports.teacher_name LIKE ?", "%"+tok+"%")
	}
	return q
}

// Create stores a report written by u with up to four images.
func (s *ReportService) Create(u *models.Teacher, in ReportInput, images []*multipart.FileHeader) (*models.Report, error) {
	r := &models.Report{TeacherID: u.ID, Teacher: u}
	r.TeacherName = models.TruncateRunes(strings.TrimSpace(in.TeacherName), models.TeacherNameMaxLen)
	uploaded, err := s.fill(r, in, images)
	if err != nil {
		return nil, err
	}
	if err := s.db.Omit(clause.Associations).Create(r).Error; err != nil {
		s.deleteFiles(uploaded)
		return nil, err
	}
	return r, nil
}

// Update edits a report owned by u. New images replace all current ones. The
// teacher_name captured at creation is never changed.
func (s *ReportService) Update(u *models.Teacher, id uint, in ReportInput, images []*multipart.FileHeader) (*models.Report, error) {
	r, err := s.own(u, id)
	if err != nil {
		return nil, err
	}
	old := r.Images()
	r.DayName = ""
	uploaded, err := s.fill(r, in, images)
	if err != nil {
		return nil, err
	}
	if err := s.db.Omit(clause.Associations).Save(r).Error; err != nil {
		s.deleteFiles(uploaded)
		return nil, err
	}
	if len(images) > 0 {
		s.deleteFiles(old)
	}
	return r, nil
}

// fill validates in and copies it onto r. Images are uploaded only once everything else is
// valid; the returned URLs are the ones uploaded by this call.
func (s *ReportService) fill(r *models.Report, in ReportInput, images []*multipart.FileHeader) ([]string, error) {
	ve := utils.ValidationErrors{}
	if err := utils.ValidateStruct(in); err != nil {
		var fields utils.ValidationErrors
		if !errors.As(err, &fields) {
			return nil, err
		}
		ve = fields
	}
	date, err := utils.ParseDate(in.ReportDate, s.loc)
	if err != nil || (date == nil && ve["report_date"] == "") {
		ve.Add("report_date", "تاريخ غير صالح")
	}

	var category models.ReportType
	if code := strings.ToLower(strings.TrimSpace(in.Category)); code != "" {
		if err := s.db.Where("code = ? AND is_active = ?", code, true).First(&category).Error; err != nil {
			ve.Add("category", "نوع التقرير غير متاح")
		}
	}

	if len(images) > maxReportImages {
		ve.Add("images", "يمكن إرفاق أربع صور كحد أقصى")
	}
	for i, img := range images {
		if err := storage.Validate(img, storage.ImageRule(s.maxImageSize)); err != nil {
			field := fmt.Sprintf("image%d", i+1)
			if errors.Is(err, storage.ErrFileTooLarge) {
				ve.Add(field, "حجم الصورة يتجاوز 2 ميجابايت")
			} else {
				ve.Add(field, "الملف ليس صورة")
			}
		}
	}
	if err := ve.OrNil(); err != nil {
		return nil, err
	}

	r.Title = utils.SanitizeString(in.Title)
	r.ReportDate = utils.DateOnly(*date)
	r.DayName = strings.TrimSpace(in.DayName)
	r.BeneficiariesCount = in.BeneficiariesCount
	r.Idea = strings.TrimSpace(in.Idea)
	r.CategoryID = &category.ID
	r.Category = &category

	if len(images) == 0 {
		return nil, nil
	}
	urls := make([]string, maxReportImages)
	for i, img := range images {
		url, err := s.store.UploadFile(img, "reports", r.TeacherID)
		if err != nil {
			s.deleteFiles(urls[:i])
			return nil, fmt.Errorf("upload image %d: %w", i+1, err)
		}
		urls[i] = url
	}
	r.Image1, r.Image2, r.Image3, r.Image4 = urls[0], urls[1], urls[2], urls[3]
	return urls[:len(images)], nil
}

func (s *ReportService) own(u *models.Teacher, id uint) (*models.Report, error) {
	var r models.Report
	err := s.db.Where("id = ? AND teacher_id = ?", id, u.ID).First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// DeleteMine removes a report owned by u.
func (s *ReportService) DeleteMine(u *models.Teacher, id uint) error {
	r, err := s.own(u, id)
	if err != nil {
		return err
	}
	return s.remove(r)
}

// AdminDelete removes any report. Callers must be staff.
func (s *ReportService) AdminDelete(id uint) error {
	var r models.Report
	if err := s.db.First(&r, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	return s.remove(&r)
}

// OfficerDelete removes a report visible to u.
func (s *ReportService) OfficerDelete(u *models.Teacher, id uint) error {
	r, err := s.ReportForUser(u, id)
	if err != nil {
		return err
	}
	return s.remove(r)
}

func (s *ReportService) remove(r *models.Report) error {
	if err := s.db.Delete(&models.Report{}, r.ID).Error; err != nil {
		return err
	}
	s.deleteFiles(r.Images())
	return nil
}

func (s *ReportService) deleteFiles(urls []string) {
	if s.store == nil {
		return
	}
	for _, u := range urls {
		if u == "" {
			continue
		}
		if err := s.store.DeleteFile(u); err != nil {
			logrus.WithError(err).WithField("url", u).Warn("failed to delete report image")
		}
	}
}

// ReportForUser returns report id when u may see it: staff see everything, others their
// own reports or those in allowed categories.
func (s *ReportService) ReportForUser(u *models.Teacher, id uint) (*models.Report, error) {
	q := s.db.Preload("Category").Preload("Teacher").Where("reports.id = ?", id)
	if !u.IsStaff {
		q = s.perms.RestrictReports(q, u)
	}
	var r models.Report
	err := q.First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *ReportService) page(q *gorm.DB, p utils.Pagination) ([]models.Report, utils.Pagination, error) {
	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, p, err
	}
	var reports []models.Report
	err := q.Preload("Category").
		Order("reports.report_date DESC, reports.id DESC").
		Scopes(utils.Paginate(p)).
		Find(&reports).Error
	return reports, p.WithTotal(total), err
}

// MyReports lists u's own reports.
func (s *ReportService) MyReports(u *models.Teacher, f ReportFilter, p utils.Pagination) ([]models.Report, utils.Pagination, error) {
	q := s.db.Model(&models.Report{}).Where("reports.teacher_id = ?", u.ID)
	return s.page(f.apply(q), p)
}

// AdminListing is an admin page plus the categories u may filter by.
type AdminListing struct {
	Reports    []models.Report
	Pagination utils.Pagination
	Categories []models.ReportType
	Category   string
}

func (s *ReportService) adminQuery(u *models.Teacher, f ReportFilter) (*gorm.DB, []models.ReportType, string, error) {
	allowed := s.perms.AllowedCategories(u)
	q := s.db.Model(&models.ReportType{}).Where("is_active = ?", true).Order("sort_order, name")
	if !allowed.All {
		q = q.Where("code IN ?", allowed.Codes())
	}
	var categories []models.ReportType
	if !allowed.Empty() {
		if err := q.Find(&categories).Error; err != nil {
			return nil, nil, "", err
		}
	}

	reports := s.perms.RestrictReports(s.db.Model(&models.Report{}), u)
	reports = f.apply(reports)
	selected := ""
	if code := strings.ToLower(f.Category); code != "" && allowed.Contains(code) {
		selected = code
		reports = reports.Where("reports.category_id IN (?)",
			s.db.Model(&models.ReportType{}).Select("id").Where("code = ?", code))
	}
	return reports, categories, selected, nil
}

// AdminReports lists every report u may see.
func (s *ReportService) AdminReports(u *models.Teacher, f ReportFilter, p utils.Pagination) (*AdminListing, error) {
	q, categories, selected, err := s.adminQuery(u, f)
	if err != nil {
		return nil, err
	}
	reports, p, err := s.page(q, p)
	if err != nil {
		return nil, err
	}
	return &AdminListing{Reports: reports, Pagination: p, Categories: categories, Category: selected}, nil
}

// OfficerListing is the officer page: reports of the officer's department categories.
type OfficerListing struct {
	Departments []models.Department
	Reports     []models.Report
	Pagination  utils.Pagination
	Categories  []models.ReportType
}

// OfficerReports lists reports in the report types of u's officer departments, falling back
// to the types allowed by u's role when the departments have none.
func (s *ReportService) OfficerReports(u *models.Teacher, f ReportFilter, p utils.Pagination) (*OfficerListing, error) {
	if u.IsSuperuser {
		return nil, ErrUseAdminReports
	}
	depts := s.perms.OfficerDepartments(u)
	if len(depts) == 0 {
		return nil, ErrNotOfficer
	}
	deptIDs := make([]uint, 0, len(depts))
	for _, d := range depts {
		deptIDs = append(deptIDs, d.ID)
	}

	var categories []models.ReportType
	err := s.db.Where("is_active = ?", true).
		Where("id IN (?)", s.db.Table("department_reporttypes").Select("report_type_id").Where("department_id IN ?", deptIDs)).
		Order("sort_order, name").
		Find(&categories).Error
	if err != nil {
		return nil, err
	}
	if len(categories) == 0 {
		if role := s.perms.LoadRole(u); role != nil {
			err = s.db.Where("is_active = ?", true).
				Where("id IN (?)", s.db.Table("role_allowed_reporttypes").Select("report_type_id").Where("role_id = ?", role.ID)).
				Order("sort_order, name").
				Find(&categories).Error
			if err != nil {
				return nil, err
			}
		}
	}

	out := &OfficerListing{Departments: depts, Categories: categories, Pagination: p}
	if len(categories) == 0 {
		out.Reports = []models.Report{}
		return out, nil
	}
	ids := make([]uint, 0, len(categories))
	for _, c := range categories {
		ids = append(ids, c.ID)
	}
	q := s.db.Model(&models.Report{}).Where("reports.category_id IN ?", ids)
	if f.CategoryID != 0 {
		for _, id := range ids {
			if id == f.CategoryID {
				q = q.Where("reports.category_id = ?", id)
				break
			}
		}
	}
	out.Reports, out.Pagination, err = s.page(f.apply(q), p)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// PrintData is what the client needs to render a printable report.
type PrintData struct {
	Report      models.Report `json:"report"`
	SignerLabel string        `json:"signer_label"`
}

// Print returns report id with the label of the department owning its category.
func (s *ReportService) Print(u *models.Teacher, id uint) (*PrintData, error) {
	r, err := s.ReportForUser(u, id)
	if err != nil {
		return nil, err
	}
	out := &PrintData{Report: *r, SignerLabel: DefaultSignerName}
	if r.CategoryID == nil {
		return out, nil
	}
	var d models.Department
	err = s.db.Joins("JOIN department_reporttypes dr ON dr.department_id = departments.id").
		Where("dr.report_type_id = ?", *r.CategoryID).
		Order("departments.id").
		First(&d).Error
	if err == nil && d.Name != "" {
		out.SignerLabel = d.Name
	}
	return out, nil
}

// HomeStats feeds the teacher home page.
type HomeStats struct {
	Total     int64           `json:"total"`
	Today     int64           `json:"today"`
	LastTitle string          `json:"last_title"`
	Recent    []models.Report `json:"recent"`
}

func (s *ReportService) HomeStats(u *models.Teacher, now time.Time) (*HomeStats, error) {
	st := &HomeStats{}
	base := s.db.Model(&models.Report{}).Where("teacher_id = ?", u.ID)
	if err := base.Session(&gorm.Session{}).Count(&st.Total).Error; err != nil {
		return nil, err
	}
	today := utils.DateOnly(now.In(s.loc))
	if err := base.Session(&gorm.Session{}).Where("report_date = ?", today).Count(&st.Today).Error; err != nil {
		return nil, err
	}
	if err := base.Session(&gorm.Session{}).Preload("Category").
		Order("created_at DESC, id DESC").Limit(5).Find(&st.Recent).Error; err != nil {
		return nil, err
	}
	if len(st.Recent) > 0 {
		st.LastTitle = st.Recent[0].Title
	}
	return st, nil
}

var exportHeader = []interface{}{"التاريخ", "اليوم", "المعلم", "العنوان", "نوع التقرير", "عدد المستفيدين", "الفكرة"}

// Export renders the admin listing (same filters and visibility) as an XLSX workbook.
func (s *ReportService) Export(u *models.Teacher, f ReportFilter) ([]byte, error) {
	q, _, _, err := s.adminQuery(u, f)
	if err != nil {
		return nil, err
	}
	var reports []models.Report
	if err := q.Preload("Category").
		Order("reports.report_date DESC, reports.id DESC").
		Limit(maxExportRows).
		Find(&reports).Error; err != nil {
		return nil, err
	}

	x := excelize.NewFile()
	defer x.Close()
	sheet := x.GetSheetName(0)
	x.SetSheetView(sheet, 0, &excelize.ViewOptions{RightToLeft: boolPtr(true)})
	if err := x.SetSheetRow(sheet, "A1", &exportHeader); err != nil {
		return nil, err
	}
	for i, r := range reports {
		category := ""
		if r.Category != nil {
			category = r.Category.Name
		}
		var beneficiaries interface{} = ""
		if r.BeneficiariesCount != nil {
			beneficiaries = *r.BeneficiariesCount
		}
		row := []interface{}{
			r.ReportDate.Format("2006-01-02"), r.DayName, r.DisplayTeacherName(), r.Title, category, beneficiaries, r.Idea,
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := x.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := x.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func boolPtr(b bool) *bool { return &b }
