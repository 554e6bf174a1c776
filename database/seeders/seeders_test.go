package seeders

import (
	"testing"

	"schoolreports_go/database"
	"schoolreports_go/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenSQLite(":memory:", nil)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

func TestSeedAllIsIdempotent(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, SeedAll(db))
	require.NoError(t, SeedAll(db))

	var roles, depts, types int64
	db.Model(&models.Role{}).Count(&roles)
	db.Model(&models.Department{}).Count(&depts)
	db.Model(&models.ReportType{}).Count(&types)

	assert.Equal(t, int64(2), roles)
	assert.Equal(t, int64(1), depts)
	assert.Equal(t, int64(5), types)

	var manager models.Role
	require.NoError(t, db.Where("slug = ?", models.RoleManager).First(&manager).Error)
	assert.True(t, manager.IsStaffByDefault)
	assert.True(t, manager.CanViewAllReports)
}

func TestSeedRolesRepairsManagerFlags(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, SeedRoles(db))

	require.NoError(t, db.Session(&gorm.Session{SkipHooks: true}).
		Model(&models.Role{}).Where("slug = ?", models.RoleManager).
		Updates(map[string]interface{}{"can_view_all_reports": false, "is_active": false}).Error)

	require.NoError(t, SeedRoles(db))

	var manager models.Role
	require.NoError(t, db.Where("slug = ?", models.RoleManager).First(&manager).Error)
	assert.True(t, manager.CanViewAllReports)
	assert.True(t, manager.IsActive)
}

func TestRepairDanglingReferences(t *testing.T) {
	db := newTestDB(t)

	missing := uint(999)
	teacher := models.Teacher{Phone: "0500000001", Name: "A", Password: "x", IsActive: true}
	require.NoError(t, db.Create(&teacher).Error)
	require.NoError(t, db.Session(&gorm.Session{SkipHooks: true}).
		Model(&models.Teacher{}).Where("id = ?", teacher.ID).Update("role_id", missing).Error)

	ticket := models.Ticket{CreatorID: teacher.ID, Title: "t", Status: models.TicketOpen, DepartmentID: &missing}
	require.NoError(t, db.Create(&ticket).Error)

	require.NoError(t, RepairDanglingReferences(db))

	var gotTeacher models.Teacher
	require.NoError(t, db.First(&gotTeacher, teacher.ID).Error)
	assert.Nil(t, gotTeacher.RoleID)

	var gotTicket models.Ticket
	require.NoError(t, db.First(&gotTicket, ticket.ID).Error)
	assert.Nil(t, gotTicket.DepartmentID)
}
