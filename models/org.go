package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

const (
	RoleManager = "manager"
	RoleTeacher = "teacher"

	MembershipTeacher = "teacher"
	MembershipOfficer = "officer"
)

// TeacherDepartmentSlugs are department slugs whose members hold the plain teacher role.
var TeacherDepartmentSlugs = map[string]struct{}{
	"teachers": {},
	"معلمين":   {},
	"المعلمين": {},
}

// IsTeacherDepartment reports whether slug names the general teachers department.
func IsTeacherDepartment(slug string) bool {
	_, ok := TeacherDepartmentSlugs[strings.ToLower(strings.TrimSpace(slug))]
	return ok
}

// Role model
type Role struct {
	BaseModel
	Slug               string       `json:"slug" gorm:"size:64;not null;uniqueIndex"`
	Name               string       `json:"name" gorm:"size:120;not null"`
	IsStaffByDefault   bool         `json:"is_staff_by_default" gorm:"not null"`
	CanViewAllReports  bool         `json:"can_view_all_reports" gorm:"not null"`
	IsActive           bool         `json:"is_active" gorm:"not null;index"`
	AllowedReportTypes []ReportType `json:"allowed_reporttypes,omitempty" gorm:"many2many:role_allowed_reporttypes;constraint:OnDelete:CASCADE"`
}

func (r *Role) BeforeSave(tx *gorm.DB) error {
	r.Slug = strings.ToLower(strings.TrimSpace(r.Slug))
	if r.Slug == RoleManager {
		r.IsStaffByDefault = true
		r.CanViewAllReports = true
		r.IsActive = true
	}
	return nil
}

// Teacher is the authenticated user of the portal.
type Teacher struct {
	BaseModel
	Phone       string    `json:"phone" gorm:"size:20;not null;uniqueIndex"`
	NationalID  *string   `json:"national_id" gorm:"size:20;uniqueIndex"`
	Name        string    `json:"name" gorm:"size:150;not null;index"`
	Password    string    `json:"-" gorm:"size:255;not null"`
	RoleID      *uint     `json:"role_id" gorm:"index"`
	IsActive    bool      `json:"is_active" gorm:"not null"`
	IsStaff     bool      `json:"is_staff" gorm:"not null"`
	IsSuperuser bool      `json:"is_superuser" gorm:"not null"`
	DateJoined  time.Time `json:"date_joined"`

	// Relationships
	Role        *Role                  `json:"role,omitempty" gorm:"foreignKey:RoleID;constraint:OnDelete:SET NULL"`
	Memberships []DepartmentMembership `json:"memberships,omitempty" gorm:"foreignKey:TeacherID"`
}

// BeforeSave keeps is_staff in step with the role's default.
func (t *Teacher) BeforeSave(tx *gorm.DB) error {
	t.Phone = strings.TrimSpace(t.Phone)
	if t.NationalID != nil {
		nid := strings.TrimSpace(*t.NationalID)
		if nid == "" {
			t.NationalID = nil
		} else {
			t.NationalID = &nid
		}
	}
	if t.DateJoined.IsZero() {
		t.DateJoined = time.Now()
	}
	if t.RoleID == nil {
		return nil
	}

	role := t.Role
	if role == nil || role.ID != *t.RoleID {
		var r Role
		if err := tx.Session(&gorm.Session{NewDB: true}).
			Select("id", "is_staff_by_default").
			First(&r, *t.RoleID).Error; err != nil {
			return nil
		}
		role = &r
	}
	t.IsStaff = role.IsStaffByDefault
	return nil
}

// RoleSlug returns the slug of the loaded role or an empty string.
func (t *Teacher) RoleSlug() string {
	if t == nil || t.Role == nil {
		return ""
	}
	return t.Role.Slug
}

// Department model
type Department struct {
	BaseModel
	Name        string `json:"name" gorm:"size:120;not null"`
	Slug        string `json:"slug" gorm:"size:64;not null;uniqueIndex"`
	RoleLabel   string `json:"role_label" gorm:"size:120"`
	IsActive    bool   `json:"is_active" gorm:"not null;index"`
	LineGroupID string `json:"line_group_id,omitempty" gorm:"size:64"`

	// Relationships
	ReportTypes []ReportType           `json:"reporttypes,omitempty" gorm:"many2many:department_reporttypes;constraint:OnDelete:CASCADE"`
	Memberships []DepartmentMembership `json:"memberships,omitempty" gorm:"foreignKey:DepartmentID;constraint:OnDelete:CASCADE"`
}

// IsManager reports whether d is the protected manager department.
func (d *Department) IsManager() bool {
	return d != nil && d.Slug == RoleManager
}

// DepartmentMembership links a teacher to a department as a member or its officer.
type DepartmentMembership struct {
	BaseModel
	DepartmentID uint   `json:"department_id" gorm:"not null;uniqueIndex:idx_membership_dept_teacher"`
	TeacherID    uint   `json:"teacher_id" gorm:"not null;uniqueIndex:idx_membership_dept_teacher;index"`
	RoleType     string `json:"role_type" gorm:"size:16;not null;default:'teacher'"`

	// Relationships
	Department *Department `json:"department,omitempty" gorm:"foreignKey:DepartmentID"`
	Teacher    *Teacher    `json:"teacher,omitempty" gorm:"foreignKey:TeacherID;constraint:OnDelete:CASCADE"`
}

// IsValidMembershipRole checks if a membership role type is valid
func IsValidMembershipRole(roleType string) bool {
	return roleType == MembershipTeacher || roleType == MembershipOfficer
}
