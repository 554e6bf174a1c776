package models

import "time"

const (
	TicketOpen       = "open"
	TicketInProgress = "in_progress"
	TicketDone       = "done"
	TicketRejected   = "rejected"
)

// TicketStatuses lists every valid status in display order.
var TicketStatuses = []string{TicketOpen, TicketInProgress, TicketDone, TicketRejected}

var ticketStatusLabels = map[string]string{
	TicketOpen:       "جديد",
	TicketInProgress: "قيد المعالجة",
	TicketDone:       "مكتمل",
	TicketRejected:   "مرفوض",
}

// IsValidTicketStatus checks if a ticket status is valid
func IsValidTicketStatus(status string) bool {
	_, ok := ticketStatusLabels[status]
	return ok
}

// TicketStatusLabel returns the display label of a status.
func TicketStatusLabel(status string) string {
	if l, ok := ticketStatusLabels[status]; ok {
		return l
	}
	return status
}

// Ticket is a request routed from a teacher to a department or assignee.
type Ticket struct {
	BaseModel
	CreatorID    uint   `json:"creator_id" gorm:"not null;index"`
	DepartmentID *uint  `json:"department_id" gorm:"index"`
	AssigneeID   *uint  `json:"assignee_id" gorm:"index"`
	Title        string `json:"title" gorm:"size:255;not null"`
	Body         string `json:"body" gorm:"type:text"`
	Attachment   string `json:"attachment,omitempty" gorm:"size:500"`
	Status       string `json:"status" gorm:"size:20;not null;default:'open';index"`

	// Relationships
	Creator    *Teacher     `json:"creator,omitempty" gorm:"foreignKey:CreatorID;constraint:OnDelete:CASCADE"`
	Department *Department  `json:"department,omitempty" gorm:"foreignKey:DepartmentID;constraint:OnDelete:SET NULL"`
	Assignee   *Teacher     `json:"assignee,omitempty" gorm:"foreignKey:AssigneeID;constraint:OnDelete:SET NULL"`
	Notes      []TicketNote `json:"notes,omitempty" gorm:"foreignKey:TicketID;constraint:OnDelete:CASCADE"`
}

// IsOpen reports whether the ticket still awaits work.
func (t *Ticket) IsOpen() bool {
	return t.Status == TicketOpen || t.Status == TicketInProgress
}

// TicketNote is an append-only entry on a ticket's thread.
type TicketNote struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	TicketID  uint      `json:"ticket_id" gorm:"not null;index"`
	AuthorID  uint      `json:"author_id" gorm:"not null;index"`
	Body      string    `json:"body" gorm:"type:text;not null"`
	IsPublic  bool      `json:"is_public" gorm:"not null"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`

	// Relationships
	Author *Teacher `json:"author,omitempty" gorm:"foreignKey:AuthorID;constraint:OnDelete:CASCADE"`
}
