package services

import (
	"errors"
	"strings"

	"schoolreports_go/models"
	"schoolreports_go/utils"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TeacherService manages teacher accounts and their department placement.
type TeacherService struct {
	db *gorm.DB
}

func NewTeacherService(db *gorm.DB) *TeacherService {
	return &TeacherService{db: db}
}

// TeacherInput is the admin create/update payload. Department is a department slug.
type TeacherInput struct {
	Name           string `json:"name" validate:"required,max=150"`
	Phone          string `json:"phone" validate:"required,phone"`
	NationalID     string `json:"national_id" validate:"omitempty,national_id"`
	Password       string `json:"password" validate:"omitempty,min=6,max=128"`
	Department     string `json:"department" validate:"max=64"`
	MembershipRole string `json:"membership_role" validate:"omitempty,oneof=teacher officer"`
	IsActive       *bool  `json:"is_active"`
}

// TeacherListItem is a teacher row with the department mirrored by their role.
type TeacherListItem struct {
	models.Teacher
	DepartmentName string `json:"department_name,omitempty"`
}

// Get loads a teacher with role and memberships.
func (s *TeacherService) Get(id uint) (*models.Teacher, error) {
	var t models.Teacher
	err := s.db.Preload("Role").Preload("Memberships.Department").First(&t, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// List searches teachers by name, phone or national id.
func (s *TeacherService) List(q string, p utils.Pagination) ([]TeacherListItem, utils.Pagination, error) {
	query := s.db.Model(&models.Teacher{})
	if q = strings.TrimSpace(q); q != "" {
		like := "%" + q + "%"
		query = query.Where("name LIKE ? OR phone LIKE ? OR national_id LIKE ?", like, like, like)
	}
	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, p, err
	}
	var teachers []models.Teacher
	if err := query.Session(&gorm.Session{}).Preload("Role").Order("name").Scopes(utils.Paginate(p)).Find(&teachers).Error; err != nil {
		return nil, p, err
	}

	slugs := make([]string, 0, len(teachers))
	for _, t := range teachers {
		if t.Role != nil {
			slugs = append(slugs, t.Role.Slug)
		}
	}
	names := map[string]string{}
	if len(slugs) > 0 {
		var depts []models.Department
		s.db.Select("slug", "name").Where("slug IN ?", slugs).Find(&depts)
		for _, d := range depts {
			names[d.Slug] = d.Name
		}
	}

	out := make([]TeacherListItem, 0, len(teachers))
	for _, t := range teachers {
		item := TeacherListItem{Teacher: t}
		if t.Role != nil {
			item.DepartmentName = names[t.Role.Slug]
		}
		out = append(out, item)
	}
	return out, p.WithTotal(total), nil
}

// Create adds a teacher and places them in the requested department.
func (s *TeacherService) Create(in TeacherInput) (*models.Teacher, error) {
	if err := utils.ValidateStruct(in); err != nil {
		return nil, err
	}
	if in.Password == "" {
		return nil, utils.NewValidationError("password", "كلمة المرور مطلوبة")
	}
	t := &models.Teacher{IsActive: true}
	if err := s.save(t, in); err != nil {
		return nil, err
	}
	return t, nil
}

// Update edits a teacher; an empty password keeps the current one.
func (s *TeacherService) Update(id uint, in TeacherInput) (*models.Teacher, error) {
	if err := utils.ValidateStruct(in); err != nil {
		return nil, err
	}
	t, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if err := s.save(t, in); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *TeacherService) save(t *models.Teacher, in TeacherInput) error {
	t.Name = utils.SanitizeString(in.Name)
	t.Phone = strings.TrimSpace(in.Phone)
	if nid := strings.TrimSpace(in.NationalID); nid != "" {
		t.NationalID = &nid
	} else {
		t.NationalID = nil
	}
	if in.IsActive != nil {
		t.IsActive = *in.IsActive
	}
	if in.Password != "" {
		hash, err := utils.HashPassword(in.Password)
		if err != nil {
			return err
		}
		t.Password = hash
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := checkTeacherUnique(tx, t); err != nil {
			return err
		}

		var dept *models.Department
		if slug := strings.ToLower(strings.TrimSpace(in.Department)); slug != "" {
			var d models.Department
			if err := tx.Where("slug = ?", slug).First(&d).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return utils.NewValidationError("department", "القسم غير موجود")
				}
				return err
			}
			dept = &d

			roleSlug := d.Slug
			if models.IsTeacherDepartment(d.Slug) {
				roleSlug = models.RoleTeacher
			}
			role, err := findRole(tx, roleSlug)
			if err != nil {
				return err
			}
			if role == nil {
				return utils.NewValidationError("department", "لا يوجد دور مرتبط بهذا القسم")
			}
			t.RoleID = &role.ID
			t.Role = role
		} else if t.RoleID == nil {
			role, err := findRole(tx, models.RoleTeacher)
			if err != nil {
				return err
			}
			if role != nil {
				t.RoleID = &role.ID
				t.Role = role
			}
		}

		if err := tx.Omit(clause.Associations).Save(t).Error; err != nil {
			return err
		}

		if dept != nil {
			roleType := in.MembershipRole
			if roleType == "" || models.IsTeacherDepartment(dept.Slug) || dept.IsManager() {
				roleType = models.MembershipTeacher
			}
			m := models.DepartmentMembership{DepartmentID: dept.ID, TeacherID: t.ID, RoleType: roleType}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "department_id"}, {Name: "teacher_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"role_type", "updated_at"}),
			}).Omit(clause.Associations).Create(&m).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func checkTeacherUnique(tx *gorm.DB, t *models.Teacher) error {
	ve := utils.ValidationErrors{}
	var n int64
	tx.Model(&models.Teacher{}).Where("phone = ? AND id <> ?", t.Phone, t.ID).Count(&n)
	if n > 0 {
		ve.Add("phone", "رقم الجوال مستخدم مسبقًا")
	}
	if t.NationalID != nil {
		tx.Model(&models.Teacher{}).Where("national_id = ? AND id <> ?", *t.NationalID, t.ID).Count(&n)
		if n > 0 {
			ve.Add("national_id", "رقم الهوية مستخدم مسبقًا")
		}
	}
	return ve.OrNil()
}

// Delete removes a teacher with everything they own. Tickets assigned to them become unassigned.
func (s *TeacherService) Delete(id uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var t models.Teacher
		if err := tx.Select("id").First(&t, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if err := tx.Model(&models.Ticket{}).Where("assignee_id = ?", id).Update("assignee_id", nil).Error; err != nil {
			return err
		}
		created := tx.Model(&models.Ticket{}).Select("id").Where("creator_id = ?", id)
		steps := []struct {
			query interface{}
			args  []interface{}
			model interface{}
		}{
			{"ticket_id IN (?) OR author_id = ?", []interface{}{created, id}, &models.TicketNote{}},
			{"creator_id = ?", []interface{}{id}, &models.Ticket{}},
			{"teacher_id = ?", []interface{}{id}, &models.Report{}},
			{"teacher_id = ?", []interface{}{id}, &models.DepartmentMembership{}},
			{"teacher_id = ?", []interface{}{id}, &models.NotificationRecipient{}},
		}
		for _, st := range steps {
			if err := tx.Where(st.query, st.args...).Delete(st.model).Error; err != nil {
				return err
			}
		}
		if err := tx.Model(&models.Notification{}).Where("created_by_id = ?", id).Update("created_by_id", nil).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Teacher{}, id).Error
	})
}

// Authenticate checks phone and password for an active teacher.
func (s *TeacherService) Authenticate(phone, password string) (*models.Teacher, error) {
	var t models.Teacher
	err := s.db.Preload("Role").Where("phone = ? AND is_active = ?", strings.TrimSpace(phone), true).First(&t).Error
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if utils.CheckPassword(password, t.Password) != nil {
		return nil, ErrInvalidCredentials
	}
	return &t, nil
}

// CreateSuperuser creates an active superuser holding the manager role when it exists.
func (s *TeacherService) CreateSuperuser(phone, name, password string) (*models.Teacher, error) {
	if !utils.IsValidPhone(phone) {
		return nil, utils.NewValidationError("phone", "رقم الجوال يجب أن يبدأ بـ0 ويتكون من 10 أرقام")
	}
	hash, err := utils.HashPassword(password)
	if err != nil {
		return nil, err
	}
	t := &models.Teacher{
		Phone:       phone,
		Name:        name,
		Password:    hash,
		IsActive:    true,
		IsStaff:     true,
		IsSuperuser: true,
	}
	if role, err := findRole(s.db, models.RoleManager); err == nil && role != nil {
		t.RoleID = &role.ID
		t.Role = role
	}
	if err := s.db.Omit(clause.Associations).Create(t).Error; err != nil {
		return nil, err
	}
	return t, nil
}

// ChangePassword verifies the current password before setting a new one.
func (s *TeacherService) ChangePassword(t *models.Teacher, current, next string) error {
	if utils.CheckPassword(current, t.Password) != nil {
		return utils.NewValidationError("current_password", "كلمة المرور الحالية غير صحيحة")
	}
	if len(next) < 6 {
		return utils.NewValidationError("new_password", "القيمة أقصر من المسموح")
	}
	hash, err := utils.HashPassword(next)
	if err != nil {
		return err
	}
	return s.db.Model(&models.Teacher{}).Where("id = ?", t.ID).Update("password", hash).Error
}
