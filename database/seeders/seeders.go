package seeders

import (
	"log"

	"schoolreports_go/models"

	"gorm.io/gorm"
)

// SeedAll runs every idempotent seeding and repair step. Each step may run any number of times.
func SeedAll(db *gorm.DB) error {
	log.Println("Starting database seeding...")

	steps := []struct {
		name string
		fn   func(*gorm.DB) error
	}{
		{"roles", SeedRoles},
		{"departments", SeedDepartments},
		{"report types", SeedReportTypes},
		{"dangling references", RepairDanglingReferences},
	}
	for _, s := range steps {
		if err := s.fn(db); err != nil {
			log.Printf("Seeding step %q failed: %v", s.name, err)
			return err
		}
	}

	log.Println("Database seeding completed successfully!")
	return nil
}

// SeedRoles ensures the manager and teacher roles exist with their fixed attributes.
func SeedRoles(db *gorm.DB) error {
	defaults := []models.Role{
		{Slug: models.RoleManager, Name: "المدير", IsStaffByDefault: true, CanViewAllReports: true, IsActive: true},
		{Slug: models.RoleTeacher, Name: "معلم", IsActive: true},
	}
	for _, r := range defaults {
		var existing models.Role
		err := db.Where("slug = ?", r.Slug).First(&existing).Error
		if err == gorm.ErrRecordNotFound {
			role := r
			if err := db.Create(&role).Error; err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return err
		}
		if r.Slug == models.RoleManager && (!existing.IsStaffByDefault || !existing.CanViewAllReports || !existing.IsActive) {
			existing.IsActive = true
			if err := db.Omit("AllowedReportTypes").Save(&existing).Error; err != nil {
				return err
			}
		}
	}
	log.Println("Roles seeded successfully")
	return nil
}

// SeedDepartments ensures the protected manager department exists.
func SeedDepartments(db *gorm.DB) error {
	var count int64
	db.Model(&models.Department{}).Where("slug = ?", models.RoleManager).Count(&count)
	if count > 0 {
		log.Println("Manager department already seeded, skipping...")
		return nil
	}
	dept := models.Department{
		Name:      "الإدارة",
		Slug:      models.RoleManager,
		RoleLabel: "المدير",
		IsActive:  true,
	}
	if err := db.Create(&dept).Error; err != nil {
		return err
	}
	log.Println("Departments seeded successfully")
	return nil
}

// SeedReportTypes seeds the default report categories when none exist.
func SeedReportTypes(db *gorm.DB) error {
	var count int64
	db.Model(&models.ReportType{}).Count(&count)
	if count > 0 {
		log.Println("Report types already seeded, skipping...")
		return nil
	}

	types := []models.ReportType{
		{Code: "activity", Name: "نشاط", Order: 1, IsActive: true},
		{Code: "initiative", Name: "مبادرة", Order: 2, IsActive: true},
		{Code: "visit", Name: "زيارة", Order: 3, IsActive: true},
		{Code: "program", Name: "برنامج", Order: 4, IsActive: true},
		{Code: "other", Name: "أخرى", Order: 99, IsActive: true},
	}
	for _, rt := range types {
		rt := rt
		if err := db.Create(&rt).Error; err != nil {
			log.Printf("Error seeding report type %s: %v", rt.Code, err)
		}
	}

	log.Println("Report types seeded successfully")
	return nil
}

// RepairDanglingReferences nulls foreign keys that point at rows that no longer exist.
func RepairDanglingReferences(db *gorm.DB) error {
	db = db.Session(&gorm.Session{SkipHooks: true})

	res := db.Model(&models.Teacher{}).
		Where("role_id IS NOT NULL AND role_id NOT IN (?)", db.Model(&models.Role{}).Select("id")).
		Update("role_id", nil)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		log.Printf("Repaired %d teachers with a missing role", res.RowsAffected)
	}

	res = db.Model(&models.Ticket{}).
		Where("department_id IS NOT NULL AND department_id NOT IN (?)", db.Model(&models.Department{}).Select("id")).
		Update("department_id", nil)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		log.Printf("Repaired %d tickets with a missing department", res.RowsAffected)
	}

	res = db.Model(&models.Ticket{}).
		Where("assignee_id IS NOT NULL AND assignee_id NOT IN (?)", db.Model(&models.Teacher{}).Select("id")).
		Update("assignee_id", nil)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		log.Printf("Repaired %d tickets with a missing assignee", res.RowsAffected)
	}
	return nil
}
