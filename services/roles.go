package services

import (
	"errors"
	"strings"

	"schoolreports_go/models"
	"schoolreports_go/utils"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RoleService struct {
	db *gorm.DB
}

func NewRoleService(db *gorm.DB) *RoleService {
	return &RoleService{db: db}
}

// RoleInput is the role admin payload. Slug is read on create only; roles mirrored from a
// department are renamed through the department.
type RoleInput struct {
	Slug                 string  `json:"slug" validate:"max=64"`
	Name                 string  `json:"name" validate:"required,max=120"`
	IsStaffByDefault     *bool   `json:"is_staff_by_default"`
	CanViewAllReports    *bool   `json:"can_view_all_reports"`
	IsActive             *bool   `json:"is_active"`
	AllowedReportTypeIDs *[]uint `json:"allowed_reporttype_ids"`
}

type RoleWithCount struct {
	models.Role
	TeachersCount int64 `json:"teachers_count"`
}

// RoleFilter narrows the role list. Nil flags are ignored.
type RoleFilter struct {
	Q                 string
	IsActive          *bool
	IsStaffByDefault  *bool
	CanViewAllReports *bool
}

// List returns roles ordered by slug with their allowed report types and teacher counts.
func (s *RoleService) List(f RoleFilter) ([]RoleWithCount, error) {
	q := s.db.Model(&models.Role{}).Preload("AllowedReportTypes", func(db *gorm.DB) *gorm.DB {
		return db.Order("sort_order, name")
	})
	if f.Q = strings.TrimSpace(f.Q); f.Q != "" {
		like := "%" + f.Q + "%"
		q = q.Where("name LIKE ? OR slug LIKE ?", like, like)
	}
	if f.IsActive != nil {
		q = q.Where("is_active = ?", *f.IsActive)
	}
	if f.IsStaffByDefault != nil {
		q = q.Where("is_staff_by_default = ?", *f.IsStaffByDefault)
	}
	if f.CanViewAllReports != nil {
		q = q.Where("can_view_all_reports = ?", *f.CanViewAllReports)
	}
	var roles []models.Role
	if err := q.Order("slug").Find(&roles).Error; err != nil {
		return nil, err
	}

	var rows []struct {
		RoleID uint
		N      int64
	}
	if err := s.db.Model(&models.Teacher{}).
		Select("role_id, COUNT(*) AS n").
		Where("role_id IS NOT NULL").
		Group("role_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	counts := make(map[uint]int64, len(rows))
	for _, r := range rows {
		counts[r.RoleID] = r.N
	}

	out := make([]RoleWithCount, 0, len(roles))
	for _, r := range roles {
		out = append(out, RoleWithCount{Role: r, TeachersCount: counts[r.ID]})
	}
	return out, nil
}

func (s *RoleService) Get(id uint) (*models.Role, error) {
	var r models.Role
	err := s.db.Preload("AllowedReportTypes").First(&r, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *RoleService) Create(in RoleInput) (*models.Role, error) {
	if err := utils.ValidateStruct(in); err != nil {
		return nil, err
	}
	r := &models.Role{IsActive: true, Slug: utils.NormalizeSlug(in.Slug, in.Name)}
	if r.Slug == "" {
		return nil, utils.NewValidationError("slug", "تعذّر توليد معرّف للدور، أدخله يدويًا")
	}
	var n int64
	if err := s.db.Model(&models.Role{}).Where("slug = ?", r.Slug).Count(&n).Error; err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, ErrSlugTaken
	}
	if err := s.save(r, in); err != nil {
		return nil, err
	}
	return r, nil
}

// Update changes a role's name and flags. When is_staff_by_default changes, every teacher
// holding the role follows it.
func (s *RoleService) Update(id uint, in RoleInput) (*models.Role, error) {
	if err := utils.ValidateStruct(in); err != nil {
		return nil, err
	}
	r, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if err := s.save(r, in); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *RoleService) save(r *models.Role, in RoleInput) error {
	r.Name = utils.SanitizeString(in.Name)
	if in.IsStaffByDefault != nil {
		r.IsStaffByDefault = *in.IsStaffByDefault
	}
	if in.CanViewAllReports != nil {
		r.CanViewAllReports = *in.CanViewAllReports
	}
	if in.IsActive != nil {
		r.IsActive = *in.IsActive
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Save(r).Error; err != nil {
			return err
		}

		if in.AllowedReportTypeIDs != nil {
			var types []models.ReportType
			if ids := *in.AllowedReportTypeIDs; len(ids) > 0 {
				if err := tx.Where("id IN ?", ids).Find(&types).Error; err != nil {
					return err
				}
			}
			assoc := tx.Model(r).Association("AllowedReportTypes")
			var err error
			if len(types) == 0 {
				err = assoc.Clear()
			} else {
				err = assoc.Replace(types)
			}
			if err != nil {
				return err
			}
			r.AllowedReportTypes = types
		}

		// Teacher.BeforeSave must not run here.
		res := tx.Model(&models.Teacher{}).
			Where("role_id = ? AND is_staff <> ?", r.ID, r.IsStaffByDefault).
			UpdateColumn("is_staff", r.IsStaffByDefault)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			logrus.WithFields(logrus.Fields{
				"role":     r.Slug,
				"is_staff": r.IsStaffByDefault,
				"teachers": res.RowsAffected,
			}).Info("teacher staff flags follow role")
		}
		return nil
	})
}
