package services

import (
	"time"

	"schoolreports_go/models"
	"schoolreports_go/utils"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const officerRecentDays = 7

type DashboardService struct {
	db    *gorm.DB
	perms *PermissionService
	loc   *time.Location
}

func NewDashboardService(db *gorm.DB, perms *PermissionService, loc *time.Location) *DashboardService {
	if loc == nil {
		loc = time.UTC
	}
	return &DashboardService{db: db, perms: perms, loc: loc}
}

// OfficerRecentReports counts reports dated within the last week in the categories of u's
// officer departments. Superusers count every report. Errors are logged and yield 0.
func (s *DashboardService) OfficerRecentReports(u *models.Teacher, now time.Time) int64 {
	if u == nil {
		return 0
	}
	since := utils.DateOnly(now.In(s.loc)).AddDate(0, 0, -officerRecentDays)
	q := s.db.Model(&models.Report{}).Where("reports.report_date >= ?", since)
	if !u.IsSuperuser {
		depts := s.perms.OfficerDepartments(u)
		if len(depts) == 0 {
			return 0
		}
		ids := make([]uint, 0, len(depts))
		for _, d := range depts {
			ids = append(ids, d.ID)
		}
		q = q.Where("reports.category_id IN (?)",
			s.db.Table("department_reporttypes").Select("report_type_id").Where("department_id IN ?", ids))
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		logrus.WithError(err).WithField("teacher_id", u.ID).Warn("officer recent reports count failed")
		return 0
	}
	return n
}

// AdminCounts backs the staff dashboard.
type AdminCounts struct {
	Reports           int64       `json:"reports"`
	Teachers          int64       `json:"teachers"`
	Tickets           TicketStats `json:"tickets"`
	ActiveReportTypes int64       `json:"active_report_types"`
}

func (s *DashboardService) AdminCounts() (*AdminCounts, error) {
	out := &AdminCounts{}
	if err := s.db.Model(&models.Report{}).Count(&out.Reports).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&models.Teacher{}).Count(&out.Teachers).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&models.ReportType{}).Where("is_active = ?", true).Count(&out.ActiveReportTypes).Error; err != nil {
		return nil, err
	}
	stats, err := ticketStats(s.db.Model(&models.Ticket{}))
	if err != nil {
		return nil, err
	}
	out.Tickets = stats
	return out, nil
}
