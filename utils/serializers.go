package utils

import (
	"time"

	"schoolreports_go/models"
)

// Compact representations used across APIs
type TeacherShort struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

type DepartmentShort struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type CategoryShort struct {
	ID   uint   `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

func ToTeacherShort(t *models.Teacher) *TeacherShort {
	if t == nil || t.ID == 0 {
		return nil
	}
	return &TeacherShort{ID: t.ID, Name: t.Name}
}

func ToDepartmentShort(d *models.Department) *DepartmentShort {
	if d == nil || d.ID == 0 {
		return nil
	}
	return &DepartmentShort{ID: d.ID, Name: d.Name, Slug: d.Slug}
}

func ToCategoryShort(rt *models.ReportType) *CategoryShort {
	if rt == nil || rt.ID == 0 {
		return nil
	}
	return &CategoryShort{ID: rt.ID, Code: rt.Code, Name: rt.Name}
}

type ReportDTO struct {
	ID                 uint           `json:"id"`
	Title              string         `json:"title"`
	TeacherID          uint           `json:"teacher_id"`
	TeacherName        string         `json:"teacher_name"`
	ReportDate         string         `json:"report_date"`
	DayName            string         `json:"day_name"`
	BeneficiariesCount *int           `json:"beneficiaries_count"`
	Idea               string         `json:"idea"`
	Category           *CategoryShort `json:"category"`
	Images             []string       `json:"images"`
	CreatedAt          time.Time      `json:"created_at"`
}

// ToReportDTO maps a report; Category and Teacher are used when preloaded.
func ToReportDTO(r models.Report) ReportDTO {
	return ReportDTO{
		ID:                 r.ID,
		Title:              r.Title,
		TeacherID:          r.TeacherID,
		TeacherName:        r.DisplayTeacherName(),
		ReportDate:         r.ReportDate.Format("2006-01-02"),
		DayName:            r.DayName,
		BeneficiariesCount: r.BeneficiariesCount,
		Idea:               r.Idea,
		Category:           ToCategoryShort(r.Category),
		Images:             r.Images(),
		CreatedAt:          r.CreatedAt,
	}
}

func ToReportDTOs(rs []models.Report) []ReportDTO {
	out := make([]ReportDTO, 0, len(rs))
	for _, r := range rs {
		out = append(out, ToReportDTO(r))
	}
	return out
}

type TicketDTO struct {
	ID          uint             `json:"id"`
	Title       string           `json:"title"`
	Body        string           `json:"body"`
	Status      string           `json:"status"`
	StatusLabel string           `json:"status_label"`
	Attachment  string           `json:"attachment,omitempty"`
	Creator     *TeacherShort    `json:"creator"`
	Assignee    *TeacherShort    `json:"assignee"`
	Department  *DepartmentShort `json:"department"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

func ToTicketDTO(t models.Ticket) TicketDTO {
	return TicketDTO{
		ID:          t.ID,
		Title:       t.Title,
		Body:        t.Body,
		Status:      t.Status,
		StatusLabel: models.TicketStatusLabel(t.Status),
		Attachment:  t.Attachment,
		Creator:     ToTeacherShort(t.Creator),
		Assignee:    ToTeacherShort(t.Assignee),
		Department:  ToDepartmentShort(t.Department),
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func ToTicketDTOs(ts []models.Ticket) []TicketDTO {
	out := make([]TicketDTO, 0, len(ts))
	for _, t := range ts {
		out = append(out, ToTicketDTO(t))
	}
	return out
}

type TicketNoteDTO struct {
	ID        uint          `json:"id"`
	Body      string        `json:"body"`
	IsPublic  bool          `json:"is_public"`
	Author    *TeacherShort `json:"author"`
	CreatedAt time.Time     `json:"created_at"`
}

func ToTicketNoteDTOs(notes []models.TicketNote) []TicketNoteDTO {
	out := make([]TicketNoteDTO, 0, len(notes))
	for _, n := range notes {
		out = append(out, TicketNoteDTO{
			ID:        n.ID,
			Body:      n.Body,
			IsPublic:  n.IsPublic,
			Author:    ToTeacherShort(n.Author),
			CreatedAt: n.CreatedAt,
		})
	}
	return out
}

const (
	DefaultNotificationTitle  = "إشعار"
	DefaultNotificationSender = "الإدارة"
)

type NotificationDTO struct {
	ID          uint       `json:"id"`
	Title       string     `json:"title"`
	Message     string     `json:"message"`
	IsImportant bool       `json:"is_important"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	SenderName  string     `json:"sender_name"`
	IsRead      bool       `json:"is_read"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// ToNotificationDTO maps a recipient row; Notification and Notification.CreatedBy should be preloaded.
func ToNotificationDTO(r models.NotificationRecipient) NotificationDTO {
	dto := NotificationDTO{
		IsRead:     r.IsRead,
		ReadAt:     r.ReadAt,
		Title:      DefaultNotificationTitle,
		SenderName: DefaultNotificationSender,
	}
	if n := r.Notification; n != nil {
		dto.ID = n.ID
		dto.Message = n.Message
		dto.IsImportant = n.IsImportant
		dto.ExpiresAt = n.ExpiresAt
		dto.CreatedAt = n.CreatedAt
		if n.Title != "" {
			dto.Title = n.Title
		}
		if n.CreatedBy != nil && n.CreatedBy.Name != "" {
			dto.SenderName = n.CreatedBy.Name
		}
	}
	return dto
}

func ToNotificationDTOs(rs []models.NotificationRecipient) []NotificationDTO {
	out := make([]NotificationDTO, 0, len(rs))
	for _, r := range rs {
		out = append(out, ToNotificationDTO(r))
	}
	return out
}
