package services

import (
	"errors"
	"fmt"
	"mime/multipart"
	"strconv"
	"strings"

	"schoolreports_go/models"
	"schoolreports_go/services/websocket"
	"schoolreports_go/storage"
	"schoolreports_go/utils"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	MyRequestsPageSize = 12
	inboxLimit         = 200

	warnStatusNotAssignee = "فقط المكلّف بالطلب يمكنه تغيير حالته"
	warnNoteNotAllowed    = "لا يمكنك إضافة ملاحظة على هذا الطلب"
)

// UserNotifier pushes realtime events to a teacher's open sessions.
type UserNotifier interface {
	SendToUser(teacherID uint, eventType string, data interface{})
}

type TicketService struct {
	db            *gorm.DB
	perms         *PermissionService
	store         FileStore
	line          GroupPusher
	notifier      UserNotifier
	maxAttachment int64
}

func NewTicketService(db *gorm.DB, perms *PermissionService, store FileStore, line GroupPusher, notifier UserNotifier, maxAttachment int64) *TicketService {
	return &TicketService{db: db, perms: perms, store: store, line: line, notifier: notifier, maxAttachment: maxAttachment}
}

type TicketInput struct {
	Title      string `json:"title" form:"title" validate:"required,max=255"`
	Body       string `json:"body" form:"body"`
	Department string `json:"department" form:"department" validate:"max=64"`
	AssigneeID *uint  `json:"assignee_id" form:"assignee_id"`
}

// Create opens a ticket for u.
func (s *TicketService) Create(u *models.Teacher, in TicketInput, attachment *multipart.FileHeader) (*models.Ticket, error) {
	ve := utils.ValidationErrors{}
	if err := utils.ValidateStruct(in); err != nil {
		fields, ok := err.(utils.ValidationErrors)
		if !ok {
			return nil, err
		}
		ve = fields
	}

	t := &models.Ticket{
		CreatorID: u.ID,
		Creator:   u,
		Title:     utils.SanitizeString(in.Title),
		Body:      strings.TrimSpace(in.Body),
		Status:    models.TicketOpen,
	}

	var dept *models.Department
	if slug := strings.ToLower(strings.TrimSpace(in.Department)); slug != "" {
		var d models.Department
		if err := s.db.Where("slug = ? AND is_active = ?", slug, true).First(&d).Error; err != nil {
			ve.Add("department", "القسم غير متاح")
		} else {
			dept = &d
			t.DepartmentID = &d.ID
			t.Department = dept
		}
	}

	if in.AssigneeID != nil && *in.AssigneeID != 0 {
		var a models.Teacher
		switch {
		case s.db.Where("id = ? AND is_active = ?", *in.AssigneeID, true).First(&a).Error != nil:
			ve.Add("assignee_id", "المستخدم غير موجود")
		case dept == nil || !s.perms.IsDepartmentMember(dept, a.ID):
			ve.Add("assignee_id", "المكلّف ليس من أعضاء القسم المحدد")
		default:
			t.AssigneeID = &a.ID
			t.Assignee = &a
		}
	}

	if attachment != nil {
		if err := storage.Validate(attachment, storage.AttachmentRule(s.maxAttachment)); err != nil {
			if errors.Is(err, storage.ErrFileTooLarge) {
				ve.Add("attachment", "حجم المرفق يتجاوز 5 ميجابايت")
			} else {
				ve.Add("attachment", "نوع المرفق غير مسموح")
			}
		}
	}
	if err := ve.OrNil(); err != nil {
		return nil, err
	}

	if attachment != nil {
		url, err := s.store.UploadFile(attachment, "tickets", u.ID)
		if err != nil {
			return nil, fmt.Errorf("upload attachment: %w", err)
		}
		t.Attachment = url
	}

	if err := s.db.Omit(clause.Associations).Create(t).Error; err != nil {
		return nil, err
	}

	if dept != nil && dept.LineGroupID != "" && s.line != nil {
		text := fmt.Sprintf("طلب جديد #%d: %s\nمن: %s", t.ID, t.Title, u.Name)
		if err := s.line.PushToGroup(dept.LineGroupID, text); err != nil {
			logrus.WithError(err).WithField("department", dept.Slug).Warn("LINE ticket notice failed")
		}
	}
	return t, nil
}

func (s *TicketService) load(db *gorm.DB, id uint) (*models.Ticket, error) {
	var t models.Ticket
	err := db.Preload("Creator").Preload("Assignee").Preload("Department").First(&t, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func isAssignee(t *models.Ticket, u *models.Teacher) bool {
	return t.AssigneeID != nil && *t.AssigneeID == u.ID
}

// handles reports whether u works on t: assignee, staff or a member of its department.
func (s *TicketService) handles(t *models.Ticket, u *models.Teacher) bool {
	return isAssignee(t, u) || u.IsStaff || u.IsSuperuser || s.perms.IsDepartmentMember(t.Department, u.ID)
}

func (s *TicketService) canView(t *models.Ticket, u *models.Teacher) bool {
	return t.CreatorID == u.ID || s.handles(t, u)
}

// TicketDetail is a ticket with its visible notes, newest first.
type TicketDetail struct {
	Ticket models.Ticket
	Notes  []models.TicketNote
}

func (s *TicketService) Detail(u *models.Teacher, id uint) (*TicketDetail, error) {
	t, err := s.load(s.db, id)
	if err != nil {
		return nil, err
	}
	if !s.canView(t, u) {
		return nil, ErrForbidden
	}
	q := s.db.Preload("Author").Where("ticket_id = ?", t.ID)
	if !s.handles(t, u) {
		q = q.Where("is_public = ?", true)
	}
	var notes []models.TicketNote
	if err := q.Order("created_at DESC, id DESC").Find(&notes).Error; err != nil {
		return nil, err
	}
	return &TicketDetail{Ticket: *t, Notes: notes}, nil
}

// ActInput is a status change and/or a note.
type ActInput struct {
	Status   string `json:"status" form:"status"`
	Note     string `json:"note" form:"note"`
	IsPublic *bool  `json:"is_public" form:"is_public"`
}

// ActResult tells the caller what happened.
type ActResult struct {
	Ticket   models.Ticket `json:"-"`
	Visible  bool          `json:"-"`
	Changed  bool          `json:"changed"`
	NoteID   uint          `json:"note_id,omitempty"`
	Warnings []string      `json:"warnings"`
}

// StatusChangeNote is the body of the system note written on each status change.
func StatusChangeNote(from, to string) string {
	return fmt.Sprintf("تغيير الحالة: %s → %s", from, to)
}

// Act applies a status change and/or note. Only the assignee may change the status; anyone
// else gets a warning and the status is left alone. Notes come from the creator or assignee.
// The result's Visible field reports whether u may see the ticket itself.
func (s *TicketService) Act(u *models.Teacher, id uint, in ActInput) (*ActResult, error) {
	in.Status = strings.TrimSpace(in.Status)
	in.Note = strings.TrimSpace(in.Note)
	if in.Status == "" && in.Note == "" {
		return nil, ErrEmptyAction
	}
	if in.Status != "" && !models.IsValidTicketStatus(in.Status) {
		return nil, ErrInvalidStatus
	}

	t, err := s.load(s.db, id)
	if err != nil {
		return nil, err
	}
	// Unrelated teachers are answered with warnings, never an error.
	res := &ActResult{Warnings: []string{}, Visible: s.canView(t, u)}
	var oldStatus string
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Ticket{}).Select("status").Where("id = ?", t.ID).Scan(&oldStatus).Error; err != nil {
			return err
		}
		t.Status = oldStatus

		if in.Status != "" {
			switch {
			case !isAssignee(t, u):
				res.Warnings = append(res.Warnings, warnStatusNotAssignee)
			case in.Status != t.Status:
				t.Status = in.Status
				if err := tx.Model(&models.Ticket{}).Where("id = ?", t.ID).Update("status", t.Status).Error; err != nil {
					return err
				}
				sys := models.TicketNote{TicketID: t.ID, AuthorID: u.ID, Body: StatusChangeNote(oldStatus, t.Status), IsPublic: true}
				if err := tx.Omit(clause.Associations).Create(&sys).Error; err != nil {
					return err
				}
				res.Changed = true
			}
		}

		if in.Note != "" {
			if t.CreatorID == u.ID || isAssignee(t, u) {
				public := true
				if in.IsPublic != nil {
					public = *in.IsPublic
				}
				note := models.TicketNote{TicketID: t.ID, AuthorID: u.ID, Body: in.Note, IsPublic: public}
				if err := tx.Omit(clause.Associations).Create(&note).Error; err != nil {
					return err
				}
				res.NoteID = note.ID
			} else {
				res.Warnings = append(res.Warnings, warnNoteNotAllowed)
			}
		}
		res.Ticket = *t
		return nil
	})
	if err != nil {
		return nil, err
	}

	if res.Changed && s.notifier != nil && res.Ticket.CreatorID != u.ID {
		s.notifier.SendToUser(res.Ticket.CreatorID, websocket.EventTicketStatus, map[string]interface{}{
			"ticket_id":    res.Ticket.ID,
			"title":        res.Ticket.Title,
			"from":         oldStatus,
			"status":       res.Ticket.Status,
			"status_label": models.TicketStatusLabel(res.Ticket.Status),
		})
	}
	return res, nil
}

// TicketStats counts tickets per status.
type TicketStats struct {
	Open       int64 `json:"open"`
	InProgress int64 `json:"in_progress"`
	Done       int64 `json:"done"`
	Rejected   int64 `json:"rejected"`
	Total      int64 `json:"total"`
}

func ticketStats(q *gorm.DB) (TicketStats, error) {
	var rows []struct {
		Status string
		N      int64
	}
	var st TicketStats
	if err := q.Session(&gorm.Session{}).Select("tickets.status AS status, COUNT(*) AS n").Group("tickets.status").Scan(&rows).Error; err != nil {
		return st, err
	}
	for _, r := range rows {
		switch r.Status {
		case models.TicketOpen:
			st.Open = r.N
		case models.TicketInProgress:
			st.InProgress = r.N
		case models.TicketDone:
			st.Done = r.N
		case models.TicketRejected:
			st.Rejected = r.N
		}
		st.Total += r.N
	}
	return st, nil
}

// TicketFilter holds listing filters. Order is only honored when whitelisted.
type TicketFilter struct {
	Q      string
	Status string
	Order  string
	Mine   bool
}

var ticketOrders = map[string]string{
	"-created_at": "tickets.created_at DESC, tickets.id DESC",
	"created_at":  "tickets.created_at, tickets.id",
	"-updated_at": "tickets.updated_at DESC, tickets.id DESC",
	"updated_at":  "tickets.updated_at, tickets.id",
	"status":      "tickets.status, tickets.id DESC",
	"title":       "tickets.title, tickets.id",
}

func (f TicketFilter) order() string {
	if o, ok := ticketOrders[f.Order]; ok {
		return o
	}
	return ticketOrders["-created_at"]
}

func (f TicketFilter) apply(q *gorm.DB) *gorm.DB {
	if models.IsValidTicketStatus(f.Status) {
		q = q.Where("tickets.status = ?", f.Status)
	}
	if term := strings.TrimSpace(f.Q); term != "" {
		like := "%" + term + "%"
		assignees := q.Session(&gorm.Session{NewDB: true}).Model(&models.Teacher{}).Select("id").Where("name LIKE ?", like)
		if id, err := strconv.ParseUint(strings.TrimPrefix(term, "#"), 10, 64); err == nil {
			q = q.Where("(tickets.title LIKE ? OR tickets.id = ? OR tickets.assignee_id IN (?))", like, id, assignees)
		} else {
			q = q.Where("(tickets.title LIKE ? OR tickets.assignee_id IN (?))", like, assignees)
		}
	}
	return q
}

func preloadTicketList(q *gorm.DB) *gorm.DB {
	return q.Preload("Creator").Preload("Assignee").Preload("Department")
}

// TicketListing is a page of tickets with counts per status over the unfiltered scope.
type TicketListing struct {
	Tickets    []models.Ticket
	Stats      TicketStats
	Pagination utils.Pagination
}

// MyRequests lists tickets created by u.
func (s *TicketService) MyRequests(u *models.Teacher, f TicketFilter, p utils.Pagination) (*TicketListing, error) {
	base := s.db.Model(&models.Ticket{}).Where("tickets.creator_id = ?", u.ID)
	stats, err := ticketStats(base)
	if err != nil {
		return nil, err
	}
	q := f.apply(base.Session(&gorm.Session{}))
	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, err
	}
	var tickets []models.Ticket
	if err := preloadTicketList(q).Order(f.order()).Scopes(utils.Paginate(p)).Find(&tickets).Error; err != nil {
		return nil, err
	}
	return &TicketListing{Tickets: tickets, Stats: stats, Pagination: p.WithTotal(total)}, nil
}

func (s *TicketService) inDepartments(codes []string) *gorm.DB {
	return s.db.Model(&models.Department{}).Select("id").Where("slug IN ?", codes)
}

// Inbox lists tickets handled by staff member u: managers see everything, others what is
// assigned to them or routed to their departments.
func (s *TicketService) Inbox(u *models.Teacher, f TicketFilter) (*TicketListing, error) {
	base := s.db.Model(&models.Ticket{})
	if !s.perms.IsManager(u) {
		codes := s.perms.DepartmentCodes(u)
		if len(codes) > 0 {
			base = base.Where("(tickets.assignee_id = ? OR tickets.department_id IN (?))", u.ID, s.inDepartments(codes))
		} else {
			base = base.Where("tickets.assignee_id = ?", u.ID)
		}
	}
	if f.Mine {
		base = base.Where("tickets.assignee_id = ?", u.ID)
	}
	return s.list(base, f)
}

// AssignedToMe lists tickets assigned to u plus unassigned ones in u's departments.
func (s *TicketService) AssignedToMe(u *models.Teacher, f TicketFilter) (*TicketListing, error) {
	base := s.db.Model(&models.Ticket{})
	codes := s.perms.DepartmentCodes(u)
	if len(codes) > 0 {
		base = base.Where("(tickets.assignee_id = ? OR (tickets.assignee_id IS NULL AND tickets.department_id IN (?)))", u.ID, s.inDepartments(codes))
	} else {
		base = base.Where("tickets.assignee_id = ?", u.ID)
	}
	return s.list(base, f)
}

func (s *TicketService) list(base *gorm.DB, f TicketFilter) (*TicketListing, error) {
	stats, err := ticketStats(base)
	if err != nil {
		return nil, err
	}
	var tickets []models.Ticket
	q := f.apply(base.Session(&gorm.Session{}))
	if err := preloadTicketList(q).Order(f.order()).Limit(inboxLimit).Find(&tickets).Error; err != nil {
		return nil, err
	}
	return &TicketListing{Tickets: tickets, Stats: stats, Pagination: utils.NewPagination(1, inboxLimit).WithTotal(int64(len(tickets)))}, nil
}

// OpenCounts returns how many of u's own and assigned tickets are still open.
func (s *TicketService) OpenCounts(u *models.Teacher) (mine, assigned int64) {
	open := []string{models.TicketOpen, models.TicketInProgress}
	if err := s.db.Model(&models.Ticket{}).Where("creator_id = ? AND status IN ?", u.ID, open).Count(&mine).Error; err != nil {
		logrus.WithError(err).Warn("open ticket count failed")
	}
	if err := s.db.Model(&models.Ticket{}).Where("assignee_id = ? AND status IN ?", u.ID, open).Count(&assigned).Error; err != nil {
		logrus.WithError(err).Warn("assigned ticket count failed")
	}
	return mine, assigned
}

// Recent returns u's latest created tickets with aggregates.
func (s *TicketService) Recent(u *models.Teacher, n int) ([]models.Ticket, TicketStats, error) {
	base := s.db.Model(&models.Ticket{}).Where("tickets.creator_id = ?", u.ID)
	stats, err := ticketStats(base)
	if err != nil {
		return nil, stats, err
	}
	var tickets []models.Ticket
	err = preloadTicketList(base.Session(&gorm.Session{})).Order("tickets.created_at DESC, tickets.id DESC").Limit(n).Find(&tickets).Error
	return tickets, stats, err
}
