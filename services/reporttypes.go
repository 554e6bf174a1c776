package services

import (
	"errors"
	"fmt"
	"strings"

	"schoolreports_go/models"
	"schoolreports_go/utils"

	"gorm.io/gorm"
)

type ReportTypeService struct {
	db *gorm.DB
}

func NewReportTypeService(db *gorm.DB) *ReportTypeService {
	return &ReportTypeService{db: db}
}

type ReportTypeInput struct {
	Code        string `json:"code" validate:"required,max=40"`
	Name        string `json:"name" validate:"required,max=120"`
	Description string `json:"description"`
	Order       int    `json:"order" validate:"gte=0"`
	IsActive    *bool  `json:"is_active"`
}

type ReportTypeWithCount struct {
	models.ReportType
	ReportsCount int64 `json:"reports_count"`
}

// List returns every report type ordered by order then name, with usage counts.
func (s *ReportTypeService) List() ([]ReportTypeWithCount, error) {
	var out []ReportTypeWithCount
	err := s.db.Model(&models.ReportType{}).
		Select("report_types.*, (SELECT COUNT(*) FROM reports WHERE reports.category_id = report_types.id) AS reports_count").
		Order("sort_order, name").
		Scan(&out).Error
	return out, err
}

// Active returns active report types in display order.
func (s *ReportTypeService) Active() ([]models.ReportType, error) {
	var types []models.ReportType
	err := s.db.Where("is_active = ?", true).Order("sort_order, name").Find(&types).Error
	return types, err
}

func (s *ReportTypeService) Get(id uint) (*models.ReportType, error) {
	var rt models.ReportType
	err := s.db.First(&rt, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rt, nil
}

func (s *ReportTypeService) Create(in ReportTypeInput) (*models.ReportType, error) {
	rt := &models.ReportType{IsActive: true}
	if err := s.save(rt, in); err != nil {
		return nil, err
	}
	return rt, nil
}

func (s *ReportTypeService) Update(id uint, in ReportTypeInput) (*models.ReportType, error) {
	rt, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if err := s.save(rt, in); err != nil {
		return nil, err
	}
	return rt, nil
}

func (s *ReportTypeService) save(rt *models.ReportType, in ReportTypeInput) error {
	if err := utils.ValidateStruct(in); err != nil {
		return err
	}
	rt.Code = strings.ToLower(strings.TrimSpace(in.Code))
	rt.Name = utils.SanitizeString(in.Name)
	rt.Description = strings.TrimSpace(in.Description)
	rt.Order = in.Order
	if in.IsActive != nil {
		rt.IsActive = *in.IsActive
	}

	var n int64
	if err := s.db.Model(&models.ReportType{}).Where("code = ? AND id <> ?", rt.Code, rt.ID).Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return utils.NewValidationError("code", "الرمز مستخدم مسبقًا")
	}
	return s.db.Save(rt).Error
}

// Delete removes an unreferenced report type. Referenced types return an *InUseError
// wrapping ErrReportTypeInUse; they should be deactivated instead.
func (s *ReportTypeService) Delete(id uint) error {
	rt, err := s.Get(id)
	if err != nil {
		return err
	}
	var n int64
	if err := s.db.Model(&models.Report{}).Where("category_id = ?", rt.ID).Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return &InUseError{Name: rt.Name, Count: n, Err: ErrReportTypeInUse}
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM role_allowed_reporttypes WHERE report_type_id = ?", rt.ID).Error; err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM department_reporttypes WHERE report_type_id = ?", rt.ID).Error; err != nil {
			return err
		}
		return tx.Delete(&models.ReportType{}, rt.ID).Error
	})
}

// InUseMessage renders the user-facing refusal for an *InUseError.
func InUseMessage(e *InUseError) string {
	return fmt.Sprintf("لا يمكن حذف «%s» لوجود %d تقرير مرتبط. يمكنك تعطيله بدلًا من ذلك.", e.Name, e.Count)
}
