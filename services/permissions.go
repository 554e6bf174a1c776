package services

import (
	"sort"

	"schoolreports_go/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// CategorySet is the set of report type codes a user may see, or every code when All is set.
type CategorySet struct {
	All   bool
	codes map[string]struct{}
}

// AllCategories returns the unrestricted set.
func AllCategories() CategorySet {
	return CategorySet{All: true}
}

// NewCategorySet builds a restricted set from codes, skipping blanks.
func NewCategorySet(codes ...string) CategorySet {
	s := CategorySet{codes: make(map[string]struct{}, len(codes))}
	for _, c := range codes {
		if c != "" {
			s.codes[c] = struct{}{}
		}
	}
	return s
}

func (s CategorySet) Contains(code string) bool {
	if s.All {
		return true
	}
	_, ok := s.codes[code]
	return ok
}

func (s CategorySet) Empty() bool {
	return !s.All && len(s.codes) == 0
}

// Codes returns the sorted codes of a restricted set; nil for All.
func (s CategorySet) Codes() []string {
	if s.All {
		return nil
	}
	out := make([]string, 0, len(s.codes))
	for c := range s.codes {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// PermissionService resolves what a teacher may see across departments and report categories.
type PermissionService struct {
	db *gorm.DB
}

func NewPermissionService(db *gorm.DB) *PermissionService {
	return &PermissionService{db: db}
}

// LoadRole makes sure u.Role is populated when u has a role id.
func (p *PermissionService) LoadRole(u *models.Teacher) *models.Role {
	if u == nil {
		return nil
	}
	if u.Role != nil || u.RoleID == nil {
		return u.Role
	}
	var r models.Role
	if err := p.db.First(&r, *u.RoleID).Error; err != nil {
		logrus.WithError(err).WithField("teacher_id", u.ID).Warn("role lookup failed")
		return nil
	}
	u.Role = &r
	return u.Role
}

// IsManager is true for superusers and holders of the manager role.
func (p *PermissionService) IsManager(u *models.Teacher) bool {
	if u == nil {
		return false
	}
	if u.IsSuperuser {
		return true
	}
	r := p.LoadRole(u)
	return r != nil && r.Slug == models.RoleManager
}

// AllowedCategories resolves the report type codes u may see.
func (p *PermissionService) AllowedCategories(u *models.Teacher) CategorySet {
	if u == nil {
		return NewCategorySet()
	}
	if u.IsSuperuser {
		return AllCategories()
	}
	role := p.LoadRole(u)
	if role != nil && (role.Slug == models.RoleManager || role.CanViewAllReports) {
		return AllCategories()
	}

	var codes []string
	if role != nil {
		var roleCodes []string
		err := p.db.Table("role_allowed_reporttypes AS rar").
			Joins("JOIN report_types rt ON rt.id = rar.report_type_id").
			Where("rar.role_id = ?", role.ID).
			Pluck("rt.code", &roleCodes).Error
		if err != nil {
			logrus.WithError(err).WithField("role", role.Slug).Warn("allowed report types lookup failed")
		}
		codes = append(codes, roleCodes...)
	}

	if depts := p.OfficerDepartments(u); len(depts) > 0 {
		ids := make([]uint, 0, len(depts))
		for _, d := range depts {
			ids = append(ids, d.ID)
		}
		var deptCodes []string
		err := p.db.Table("department_reporttypes AS dr").
			Joins("JOIN report_types rt ON rt.id = dr.report_type_id").
			Where("dr.department_id IN ?", ids).
			Pluck("rt.code", &deptCodes).Error
		if err != nil {
			logrus.WithError(err).WithField("teacher_id", u.ID).Warn("officer report types lookup failed")
		}
		codes = append(codes, deptCodes...)
	}

	return NewCategorySet(codes...)
}

// RestrictReports narrows a Report query to what u may see: own reports or allowed categories.
func (p *PermissionService) RestrictReports(q *gorm.DB, u *models.Teacher) *gorm.DB {
	set := p.AllowedCategories(u)
	if set.All {
		return q
	}
	if u == nil {
		return q.Where("1 = 0")
	}
	if set.Empty() {
		return q.Where("reports.teacher_id = ?", u.ID)
	}
	sub := p.db.Model(&models.ReportType{}).Select("id").Where("code IN ?", set.Codes())
	return q.Where("(reports.teacher_id = ? OR reports.category_id IN (?))", u.ID, sub)
}

// OfficerDepartments lists active departments where u holds an officer membership.
// Users with no membership rows at all fall back to the department mirrored by their role.
func (p *PermissionService) OfficerDepartments(u *models.Teacher) []models.Department {
	if u == nil || u.ID == 0 {
		return nil
	}
	var depts []models.Department
	officerOf := p.db.Model(&models.DepartmentMembership{}).
		Select("department_id").
		Where("teacher_id = ? AND role_type = ?", u.ID, models.MembershipOfficer)
	if err := p.db.Where("is_active = ? AND id IN (?)", true, officerOf).Order("name").Find(&depts).Error; err != nil {
		logrus.WithError(err).WithField("teacher_id", u.ID).Warn("officer departments lookup failed")
		return nil
	}
	if len(depts) > 0 {
		return depts
	}

	slug := ""
	if r := p.LoadRole(u); r != nil {
		slug = r.Slug
	}
	if slug == "" || slug == models.RoleTeacher || slug == models.RoleManager {
		return nil
	}
	var memberships int64
	p.db.Model(&models.DepartmentMembership{}).Where("teacher_id = ?", u.ID).Count(&memberships)
	if memberships > 0 {
		return nil
	}
	if err := p.db.Where("slug = ? AND is_active = ?", slug, true).Find(&depts).Error; err != nil {
		logrus.WithError(err).WithField("teacher_id", u.ID).Warn("legacy officer lookup failed")
		return nil
	}
	return depts
}

// IsOfficer reports whether u is the officer of at least one active department.
func (p *PermissionService) IsOfficer(u *models.Teacher) bool {
	return len(p.OfficerDepartments(u)) > 0
}

// DepartmentCodes returns the department slugs u belongs to: the role slug (unless the plain
// teacher role) plus every membership department.
func (p *PermissionService) DepartmentCodes(u *models.Teacher) []string {
	if u == nil {
		return nil
	}
	seen := map[string]struct{}{}
	var out []string
	add := func(s string) {
		if s == "" {
			return
		}
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}

	if r := p.LoadRole(u); r != nil && r.Slug != models.RoleTeacher {
		add(r.Slug)
	}
	var slugs []string
	err := p.db.Model(&models.Department{}).
		Joins("JOIN department_memberships dm ON dm.department_id = departments.id").
		Where("dm.teacher_id = ?", u.ID).
		Order("departments.slug").
		Pluck("departments.slug", &slugs).Error
	if err != nil {
		logrus.WithError(err).WithField("teacher_id", u.ID).Warn("membership departments lookup failed")
	}
	for _, s := range slugs {
		add(s)
	}
	return out
}

// CanSendNotifications is true for managers, superusers and department officers.
func (p *PermissionService) CanSendNotifications(u *models.Teacher) bool {
	return p.IsManager(u) || p.IsOfficer(u)
}

// IsDepartmentMember reports whether teacherID belongs to dept through its role or a membership.
func (p *PermissionService) IsDepartmentMember(dept *models.Department, teacherID uint) bool {
	if dept == nil || teacherID == 0 {
		return false
	}
	var n int64
	err := p.db.Model(&models.Teacher{}).
		Where("teachers.id = ?", teacherID).
		Where("(teachers.role_id IN (?) OR teachers.id IN (?))",
			p.db.Model(&models.Role{}).Select("id").Where("slug = ?", dept.Slug),
			p.db.Model(&models.DepartmentMembership{}).Select("teacher_id").Where("department_id = ?", dept.ID)).
		Count(&n).Error
	if err != nil {
		logrus.WithError(err).Warn("department membership check failed")
		return false
	}
	return n > 0
}
