package services

import (
	"errors"
	"strconv"
	"strings"

	"schoolreports_go/models"
	"schoolreports_go/utils"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DepartmentService manages departments, their mirrored roles and memberships.
type DepartmentService struct {
	db *gorm.DB
}

func NewDepartmentService(db *gorm.DB) *DepartmentService {
	return &DepartmentService{db: db}
}

// DepartmentInput is the create/update payload.
type DepartmentInput struct {
	Name          string  `json:"name" validate:"required,max=120"`
	Slug          string  `json:"slug" validate:"max=64"`
	RoleLabel     string  `json:"role_label" validate:"max=120"`
	IsActive      *bool   `json:"is_active"`
	ReportTypeIDs *[]uint `json:"reporttype_ids"`
	LineGroupID   *string `json:"line_group_id" validate:"omitempty,max=64"`
}

// DepartmentStats is a department row with member and ticket counters.
type DepartmentStats struct {
	models.Department
	MembersCount int64  `json:"members_count"`
	OpenTickets  int64  `json:"open_tickets"`
	InProgress   int64  `json:"in_progress_tickets"`
	DoneTickets  int64  `json:"done_tickets"`
	OfficerName  string `json:"officer_name,omitempty"`
}

// Get finds a department by numeric id or slug.
func (s *DepartmentService) Get(code string) (*models.Department, error) {
	code = strings.TrimSpace(code)
	var d models.Department
	q := s.db.Preload("ReportTypes", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order, name") })
	var err error
	if id, convErr := strconv.ParseUint(code, 10, 64); convErr == nil {
		err = q.First(&d, uint(id)).Error
	} else {
		err = q.Where("slug = ?", strings.ToLower(code)).First(&d).Error
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Create validates in and saves a new department.
func (s *DepartmentService) Create(in DepartmentInput) (*models.Department, error) {
	if err := utils.ValidateStruct(in); err != nil {
		return nil, err
	}
	d := &models.Department{IsActive: true}
	applyDepartmentInput(d, in)
	var ids []uint
	if in.ReportTypeIDs != nil {
		ids = *in.ReportTypeIDs
	}
	if err := s.Save(d, ids, in.ReportTypeIDs != nil); err != nil {
		return nil, err
	}
	return d, nil
}

// Update applies in to the department identified by code.
func (s *DepartmentService) Update(code string, in DepartmentInput) (*models.Department, error) {
	if err := utils.ValidateStruct(in); err != nil {
		return nil, err
	}
	d, err := s.Get(code)
	if err != nil {
		return nil, err
	}
	applyDepartmentInput(d, in)
	var ids []uint
	if in.ReportTypeIDs != nil {
		ids = *in.ReportTypeIDs
	}
	if err := s.Save(d, ids, in.ReportTypeIDs != nil); err != nil {
		return nil, err
	}
	return d, nil
}

func applyDepartmentInput(d *models.Department, in DepartmentInput) {
	d.Name = utils.SanitizeString(in.Name)
	// An edit without a slug keeps the current one.
	if slug := strings.TrimSpace(in.Slug); slug != "" || d.ID == 0 {
		d.Slug = slug
	}
	d.RoleLabel = utils.SanitizeString(in.RoleLabel)
	if in.IsActive != nil {
		d.IsActive = *in.IsActive
	}
	if in.LineGroupID != nil {
		d.LineGroupID = strings.TrimSpace(*in.LineGroupID)
	}
}

// Save normalizes and persists d, replaces its report types when setTypes is true, and
// synchronizes the mirrored role. A failed role sync is logged and never fails the save.
func (s *DepartmentService) Save(d *models.Department, reportTypeIDs []uint, setTypes bool) error {
	d.Name = strings.TrimSpace(d.Name)
	d.Slug = utils.NormalizeSlug(d.Slug, d.Name)
	if d.Slug == "" {
		return utils.NewValidationError("slug", "تعذّر توليد معرّف للقسم، أدخله يدويًا")
	}
	if d.RoleLabel == "" {
		d.RoleLabel = d.Name
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		oldSlug := ""
		if d.ID != 0 {
			if err := tx.Model(&models.Department{}).Where("id = ?", d.ID).Pluck("slug", &oldSlug).Error; err != nil {
				return err
			}
		}
		if oldSlug == models.RoleManager && d.Slug != models.RoleManager {
			return ErrProtectedDepartment
		}
		if d.Slug == models.RoleManager {
			d.IsActive = true
		}

		var taken int64
		if err := tx.Model(&models.Department{}).Where("slug = ? AND id <> ?", d.Slug, d.ID).Count(&taken).Error; err != nil {
			return err
		}
		if taken > 0 {
			return ErrSlugTaken
		}

		if err := tx.Omit(clause.Associations).Save(d).Error; err != nil {
			return err
		}

		if setTypes {
			var types []models.ReportType
			if len(reportTypeIDs) > 0 {
				if err := tx.Where("id IN ?", reportTypeIDs).Find(&types).Error; err != nil {
					return err
				}
			}
			assoc := tx.Model(d).Association("ReportTypes")
			var err error
			if len(types) == 0 {
				err = assoc.Clear()
			} else {
				err = assoc.Replace(types)
			}
			if err != nil {
				return err
			}
			d.ReportTypes = types
		}

		mirror := setTypes || oldSlug == "" || oldSlug != d.Slug
		if err := tx.Transaction(func(inner *gorm.DB) error {
			return syncDepartmentRole(inner, d, oldSlug, mirror)
		}); err != nil {
			logrus.WithError(err).WithField("department", d.Slug).Warn("role sync failed; role not updated this cycle")
		}
		return nil
	})
}

// Delete removes a department. Tickets keep existing with no department, memberships go,
// and the mirrored role is deactivated.
func (s *DepartmentService) Delete(code string) error {
	d, err := s.Get(code)
	if err != nil {
		return err
	}
	if d.IsManager() {
		return ErrProtectedDepartment
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Ticket{}).Where("department_id = ?", d.ID).Update("department_id", nil).Error; err != nil {
			return err
		}
		if err := tx.Where("department_id = ?", d.ID).Delete(&models.DepartmentMembership{}).Error; err != nil {
			return err
		}
		if err := tx.Model(d).Association("ReportTypes").Clear(); err != nil {
			return err
		}
		if err := tx.Delete(&models.Department{}, d.ID).Error; err != nil {
			return err
		}
		return tx.Model(&models.Role{}).Where("slug = ?", d.Slug).Update("is_active", false).Error
	})
}

// List returns departments with member counts and ticket stats.
func (s *DepartmentService) List() ([]DepartmentStats, error) {
	var depts []models.Department
	if err := s.db.Preload("ReportTypes").Order("name").Find(&depts).Error; err != nil {
		return nil, err
	}

	type ticketRow struct {
		DepartmentID uint
		Status       string
		N            int64
	}
	var rows []ticketRow
	if err := s.db.Model(&models.Ticket{}).
		Select("department_id, status, COUNT(*) AS n").
		Where("department_id IS NOT NULL").
		Group("department_id, status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	counts := map[uint]map[string]int64{}
	for _, r := range rows {
		if counts[r.DepartmentID] == nil {
			counts[r.DepartmentID] = map[string]int64{}
		}
		counts[r.DepartmentID][r.Status] = r.N
	}

	out := make([]DepartmentStats, 0, len(depts))
	for _, d := range depts {
		st := DepartmentStats{Department: d}
		s.membersQuery(&d).Count(&st.MembersCount)
		if c := counts[d.ID]; c != nil {
			st.OpenTickets = c[models.TicketOpen]
			st.InProgress = c[models.TicketInProgress]
			st.DoneTickets = c[models.TicketDone]
		}
		var officer models.Teacher
		if err := s.db.Joins("JOIN department_memberships dm ON dm.teacher_id = teachers.id").
			Where("dm.department_id = ? AND dm.role_type = ?", d.ID, models.MembershipOfficer).
			Order("teachers.name").First(&officer).Error; err == nil {
			st.OfficerName = officer.Name
		}
		out = append(out, st)
	}
	return out, nil
}

// membersQuery selects active teachers that hold the department's role or a membership in it.
func (s *DepartmentService) membersQuery(d *models.Department) *gorm.DB {
	return s.db.Model(&models.Teacher{}).
		Where("teachers.is_active = ?", true).
		Where("(teachers.role_id IN (?) OR teachers.id IN (?))",
			s.db.Model(&models.Role{}).Select("id").Where("slug = ?", d.Slug),
			s.db.Model(&models.DepartmentMembership{}).Select("teacher_id").Where("department_id = ?", d.ID))
}

// Members returns the active members of the department, ordered by name.
func (s *DepartmentService) Members(d *models.Department) ([]models.Teacher, error) {
	var teachers []models.Teacher
	err := s.membersQuery(d).
		Preload("Memberships", "department_id = ?", d.ID).
		Order("teachers.name").
		Find(&teachers).Error
	return teachers, err
}

// MembersBySlug backs the members JSON endpoint; unknown or empty slugs yield no members.
func (s *DepartmentService) MembersBySlug(slug string) ([]models.Teacher, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	if slug == "" {
		return nil, nil
	}
	var d models.Department
	err := s.db.Where("slug = ?", slug).First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var teachers []models.Teacher
	err = s.membersQuery(&d).Select("teachers.id", "teachers.name").Order("teachers.name").Find(&teachers).Error
	return teachers, err
}

// AvailableTeachers lists active teachers not yet in the department.
func (s *DepartmentService) AvailableTeachers(d *models.Department) ([]models.Teacher, error) {
	var teachers []models.Teacher
	err := s.db.Where("is_active = ?", true).
		Where("id NOT IN (?)", s.db.Model(&models.DepartmentMembership{}).Select("teacher_id").Where("department_id = ?", d.ID)).
		Order("name").
		Find(&teachers).Error
	return teachers, err
}

// AddMember upserts a membership. Officer memberships are refused on the manager department.
func (s *DepartmentService) AddMember(d *models.Department, teacherID uint, roleType string) (*models.DepartmentMembership, error) {
	if roleType == "" {
		roleType = models.MembershipTeacher
	}
	if !models.IsValidMembershipRole(roleType) {
		return nil, utils.NewValidationError("role_type", "نوع العضوية غير صالح")
	}
	if d.IsManager() {
		roleType = models.MembershipTeacher
	}
	var teacher models.Teacher
	if err := s.db.Select("id").First(&teacher, teacherID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	m := &models.DepartmentMembership{DepartmentID: d.ID, TeacherID: teacherID, RoleType: roleType}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "department_id"}, {Name: "teacher_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"role_type", "updated_at"}),
	}).Omit(clause.Associations).Create(m).Error
	if err != nil {
		return nil, err
	}
	return m, nil
}

// RemoveMember deletes the membership. Legacy members without a membership row who hold the
// department role are moved back to the plain teacher role.
func (s *DepartmentService) RemoveMember(d *models.Department, teacherID uint) error {
	res := s.db.Where("department_id = ? AND teacher_id = ?", d.ID, teacherID).Delete(&models.DepartmentMembership{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var t models.Teacher
	if err := s.db.Preload("Role").First(&t, teacherID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	if t.Role == nil || t.Role.Slug != d.Slug {
		return ErrNotFound
	}
	teacherRole, err := findRole(s.db, models.RoleTeacher)
	if err != nil {
		return err
	}
	if teacherRole == nil {
		t.RoleID = nil
	} else {
		t.RoleID = &teacherRole.ID
	}
	t.Role = teacherRole
	return s.db.Omit(clause.Associations).Save(&t).Error
}
