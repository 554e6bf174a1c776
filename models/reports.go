package models

import (
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"
)

// arabicWeekdays is keyed by ISO weekday (1=Monday .. 7=Sunday).
var arabicWeekdays = map[int]string{
	1: "الاثنين",
	2: "الثلاثاء",
	3: "الأربعاء",
	4: "الخميس",
	5: "الجمعة",
	6: "السبت",
	7: "الأحد",
}

// ISOWeekday converts time.Weekday (Sunday=0) into the ISO numbering.
func ISOWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

// ArabicDayName returns the Arabic weekday name of t.
func ArabicDayName(t time.Time) string {
	return arabicWeekdays[ISOWeekday(t)]
}

// ReportType is a dynamically managed report category.
type ReportType struct {
	BaseModel
	Code        string `json:"code" gorm:"size:40;not null;uniqueIndex"`
	Name        string `json:"name" gorm:"size:120;not null"`
	Description string `json:"description" gorm:"type:text"`
	Order       int    `json:"order" gorm:"column:sort_order;not null;default:0;index"`
	IsActive    bool   `json:"is_active" gorm:"not null;index"`
}

func (rt *ReportType) BeforeSave(tx *gorm.DB) error {
	rt.Code = strings.ToLower(strings.TrimSpace(rt.Code))
	rt.Name = strings.TrimSpace(rt.Name)
	return nil
}

const TeacherNameMaxLen = 120

// Report model
type Report struct {
	BaseModel
	TeacherID          uint      `json:"teacher_id" gorm:"not null;index"`
	TeacherName        string    `json:"teacher_name" gorm:"size:120"`
	Title              string    `json:"title" gorm:"size:255;not null"`
	ReportDate         time.Time `json:"report_date" gorm:"type:date;not null;index"`
	DayName            string    `json:"day_name" gorm:"size:20"`
	BeneficiariesCount *int      `json:"beneficiaries_count"`
	Idea               string    `json:"idea" gorm:"type:text"`
	CategoryID         *uint     `json:"category_id" gorm:"index"`
	Image1             string    `json:"image1,omitempty" gorm:"size:500"`
	Image2             string    `json:"image2,omitempty" gorm:"size:500"`
	Image3             string    `json:"image3,omitempty" gorm:"size:500"`
	Image4             string    `json:"image4,omitempty" gorm:"size:500"`

	// Relationships
	Teacher  *Teacher    `json:"teacher,omitempty" gorm:"foreignKey:TeacherID;constraint:OnDelete:CASCADE"`
	Category *ReportType `json:"category,omitempty" gorm:"foreignKey:CategoryID;constraint:OnDelete:RESTRICT"`
}

// BeforeSave derives day_name and freezes teacher_name.
func (r *Report) BeforeSave(tx *gorm.DB) error {
	if !r.ReportDate.IsZero() && strings.TrimSpace(r.DayName) == "" {
		r.DayName = ArabicDayName(r.ReportDate)
	}

	r.TeacherName = strings.TrimSpace(r.TeacherName)
	if r.TeacherName == "" && r.TeacherID != 0 {
		if r.Teacher != nil && r.Teacher.ID == r.TeacherID {
			r.TeacherName = r.Teacher.Name
		} else {
			var t Teacher
			if err := tx.Session(&gorm.Session{NewDB: true}).Select("id", "name").First(&t, r.TeacherID).Error; err == nil {
				r.TeacherName = t.Name
			}
		}
	}
	r.TeacherName = TruncateRunes(strings.TrimSpace(r.TeacherName), TeacherNameMaxLen)
	return nil
}

// Images returns the non-empty image URLs in slot order.
func (r *Report) Images() []string {
	out := make([]string, 0, 4)
	for _, u := range []string{r.Image1, r.Image2, r.Image3, r.Image4} {
		if u != "" {
			out = append(out, u)
		}
	}
	return out
}

// DisplayTeacherName prefers the frozen snapshot over the live name.
func (r *Report) DisplayTeacherName() string {
	if r.TeacherName != "" {
		return r.TeacherName
	}
	if r.Teacher != nil {
		return r.Teacher.Name
	}
	return ""
}

// TruncateRunes cuts s to at most n runes.
func TruncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
