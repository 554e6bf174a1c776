package services

import (
	"errors"

	"schoolreports_go/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// syncDepartmentRole keeps the Role mirrored by dept in step with it. oldSlug is the slug the
// department had before this save ("" on create). mirrorTypes copies the department's report
// types onto the role.
func syncDepartmentRole(tx *gorm.DB, dept *models.Department, oldSlug string, mirrorTypes bool) error {
	var role *models.Role

	if oldSlug != "" && oldSlug != dept.Slug {
		old, err := findRole(tx, oldSlug)
		if err != nil {
			return err
		}
		target, err := findRole(tx, dept.Slug)
		if err != nil {
			return err
		}
		switch {
		case old != nil && target != nil:
			if err := mergeRoles(tx, old, target); err != nil {
				return err
			}
			role = target
		case old != nil:
			old.Slug = dept.Slug
			role = old
		}
	}

	if role == nil {
		existing, err := findRole(tx, dept.Slug)
		if err != nil {
			return err
		}
		role = existing
	}
	if role == nil {
		role = &models.Role{Slug: dept.Slug}
	}

	role.Name = dept.RoleLabel
	if role.Name == "" {
		role.Name = dept.Name
	}
	role.IsActive = dept.IsActive
	if err := tx.Omit(clause.Associations).Save(role).Error; err != nil {
		return err
	}
	if err := refreshStaffFlags(tx, role); err != nil {
		return err
	}

	if mirrorTypes && !dept.IsManager() {
		var types []models.ReportType
		if err := tx.Model(dept).Association("ReportTypes").Find(&types); err != nil {
			return err
		}
		assoc := tx.Model(role).Association("AllowedReportTypes")
		if len(types) == 0 {
			return assoc.Clear()
		}
		return assoc.Replace(types)
	}
	return nil
}

func findRole(tx *gorm.DB, slug string) (*models.Role, error) {
	var r models.Role
	err := tx.Where("slug = ?", slug).First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// mergeRoles moves users and allowed report types from old onto target, then deletes old.
func mergeRoles(tx *gorm.DB, old, target *models.Role) error {
	if err := tx.Session(&gorm.Session{SkipHooks: true}).
		Model(&models.Teacher{}).
		Where("role_id = ?", old.ID).
		Updates(map[string]interface{}{"role_id": target.ID, "is_staff": target.IsStaffByDefault}).Error; err != nil {
		return err
	}

	var oldTypes []models.ReportType
	if err := tx.Model(old).Association("AllowedReportTypes").Find(&oldTypes); err != nil {
		return err
	}
	if len(oldTypes) > 0 {
		if err := tx.Model(target).Association("AllowedReportTypes").Append(oldTypes); err != nil {
			return err
		}
	}
	if err := tx.Model(old).Association("AllowedReportTypes").Clear(); err != nil {
		return err
	}
	return tx.Delete(old).Error
}

// refreshStaffFlags re-applies role.IsStaffByDefault to every holder of role.
func refreshStaffFlags(tx *gorm.DB, role *models.Role) error {
	return tx.Session(&gorm.Session{SkipHooks: true}).
		Model(&models.Teacher{}).
		Where("role_id = ? AND is_staff <> ?", role.ID, role.IsStaffByDefault).
		Update("is_staff", role.IsStaffByDefault).Error
}
