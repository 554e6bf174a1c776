package models

import "time"

// Notification is a broadcast message fanned out to recipients.
type Notification struct {
	BaseModel
	Title       string     `json:"title" gorm:"size:120"`
	Message     string     `json:"message" gorm:"type:text;not null"`
	IsImportant bool       `json:"is_important" gorm:"not null"`
	IsActive    bool       `json:"is_active" gorm:"not null;index"`
	ExpiresAt   *time.Time `json:"expires_at" gorm:"index"`
	CreatedByID *uint      `json:"created_by_id" gorm:"index"`

	// Relationships
	CreatedBy  *Teacher                `json:"created_by,omitempty" gorm:"foreignKey:CreatedByID;constraint:OnDelete:SET NULL"`
	Recipients []NotificationRecipient `json:"recipients,omitempty" gorm:"foreignKey:NotificationID;constraint:OnDelete:CASCADE"`
}

// IsExpired reports whether the notification passed its expiry at now.
func (n *Notification) IsExpired(now time.Time) bool {
	return n.ExpiresAt != nil && !n.ExpiresAt.After(now)
}

// NotificationRecipient holds one teacher's read state for a notification.
type NotificationRecipient struct {
	ID             uint       `json:"id" gorm:"primaryKey"`
	NotificationID uint       `json:"notification_id" gorm:"not null;uniqueIndex:idx_recipient_notif_teacher"`
	TeacherID      uint       `json:"teacher_id" gorm:"not null;uniqueIndex:idx_recipient_notif_teacher;index"`
	IsRead         bool       `json:"is_read" gorm:"not null;index"`
	ReadAt         *time.Time `json:"read_at"`
	CreatedAt      time.Time  `json:"created_at"`

	// Relationships
	Notification *Notification `json:"notification,omitempty" gorm:"foreignKey:NotificationID"`
	Teacher      *Teacher      `json:"teacher,omitempty" gorm:"foreignKey:TeacherID;constraint:OnDelete:CASCADE"`
}
