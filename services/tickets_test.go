package services

import (
	"errors"
	"fmt"
	"testing"

	"schoolreports_go/models"
	"schoolreports_go/services/websocket"
	"schoolreports_go/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type ticketFixture struct {
	db       *gorm.DB
	svc      *TicketService
	line     *fakeLine
	notifier *fakeNotifier
	dept     *models.Department
	creator  *models.Teacher
	assignee *models.Teacher
	member   *models.Teacher
	outsider *models.Teacher
}

func newTicketFixture(t *testing.T) *ticketFixture {
	t.Helper()
	db := newTestDB(t)
	f := &ticketFixture{db: db, line: &fakeLine{}, notifier: &fakeNotifier{}}
	f.svc = NewTicketService(db, NewPermissionService(db), &fakeStore{}, f.line, f.notifier, 5<<20)
	f.dept = makeDepartment(t, db, "شؤون الطلاب", "students")
	require.NoError(t, db.Model(f.dept).Update("line_group_id", "C123").Error)
	f.dept.LineGroupID = "C123"

	f.creator = makeTeacher(t, db, "صاحب الطلب", models.RoleTeacher)
	f.assignee = makeTeacher(t, db, "المكلّف", models.RoleTeacher)
	addMember(t, db, f.dept, f.assignee, models.MembershipOfficer)
	f.member = makeTeacher(t, db, "عضو", models.RoleTeacher)
	addMember(t, db, f.dept, f.member, models.MembershipTeacher)
	f.outsider = makeTeacher(t, db, "خارجي", models.RoleTeacher)
	return f
}

func (f *ticketFixture) open(t *testing.T, title string, assigned bool) *models.Ticket {
	t.Helper()
	in := TicketInput{Title: title, Body: "تفاصيل", Department: "students"}
	if assigned {
		in.AssigneeID = &f.assignee.ID
	}
	tk, err := f.svc.Create(f.creator, in, nil)
	require.NoError(t, err)
	return tk
}

func TestTicketCreatePushesToLineGroup(t *testing.T) {
	f := newTicketFixture(t)
	tk := f.open(t, "طابعة معطلة", true)
	assert.Equal(t, models.TicketOpen, tk.Status)
	require.NotNil(t, tk.AssigneeID)

	require.Len(t, f.line.groups, 1)
	assert.Equal(t, "C123", f.line.groups[0])
	assert.Contains(t, f.line.texts[0], "طابعة معطلة")
	assert.Contains(t, f.line.texts[0], "صاحب الطلب")
}

func TestTicketCreateValidation(t *testing.T) {
	f := newTicketFixture(t)

	_, err := f.svc.Create(f.creator, TicketInput{Title: "x", Department: "students", AssigneeID: &f.outsider.ID}, nil)
	var ve utils.ValidationErrors
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve, "assignee_id")

	_, err = f.svc.Create(f.creator, TicketInput{Title: "x", AssigneeID: &f.assignee.ID}, nil)
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve, "assignee_id", "assignee needs a department")

	_, err = f.svc.Create(f.creator, TicketInput{Title: "x", Department: "missing"}, nil)
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve, "department")

	_, err = f.svc.Create(f.creator, TicketInput{Department: "students"}, nil)
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve, "title")

	exe := fileHeader(t, "run.exe", "application/octet-stream", []byte("MZ"))
	_, err = f.svc.Create(f.creator, TicketInput{Title: "x"}, exe)
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve, "attachment")

	pdf := fileHeader(t, "form.pdf", "application/pdf", []byte("%PDF-1.4"))
	tk, err := f.svc.Create(f.creator, TicketInput{Title: "x"}, pdf)
	require.NoError(t, err)
	assert.NotEmpty(t, tk.Attachment)
	assert.Empty(t, f.line.groups, "no department, no LINE notice")
}

func TestTicketActOnlyAssigneeChangesStatus(t *testing.T) {
	f := newTicketFixture(t)
	tk := f.open(t, "t", true)

	res, err := f.svc.Act(f.creator, tk.ID, ActInput{Status: models.TicketDone})
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, []string{warnStatusNotAssignee}, res.Warnings)

	var stored models.Ticket
	require.NoError(t, f.db.First(&stored, tk.ID).Error)
	assert.Equal(t, models.TicketOpen, stored.Status)
	assert.Empty(t, f.notifier.sent)

	res, err = f.svc.Act(f.outsider, tk.ID, ActInput{Status: models.TicketRejected, Note: "ignored"})
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.False(t, res.Visible)
	assert.Equal(t, []string{warnStatusNotAssignee, warnNoteNotAllowed}, res.Warnings)
	var noteCount int64
	f.db.Model(&models.TicketNote{}).Where("ticket_id = ?", tk.ID).Count(&noteCount)
	assert.Zero(t, noteCount)

	res, err = f.svc.Act(f.assignee, tk.ID, ActInput{Status: models.TicketDone})
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Empty(t, res.Warnings)

	require.NoError(t, f.db.First(&stored, tk.ID).Error)
	assert.Equal(t, models.TicketDone, stored.Status)

	var notes []models.TicketNote
	require.NoError(t, f.db.Where("ticket_id = ?", tk.ID).Find(&notes).Error)
	require.Len(t, notes, 1)
	assert.Equal(t, "تغيير الحالة: open → done", notes[0].Body)
	assert.Equal(t, f.assignee.ID, notes[0].AuthorID)

	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, f.creator.ID, f.notifier.sent[0].teacherID)
	assert.Equal(t, websocket.EventTicketStatus, f.notifier.sent[0].event)

	res, err = f.svc.Act(f.assignee, tk.ID, ActInput{Status: models.TicketDone})
	require.NoError(t, err)
	assert.False(t, res.Changed, "same status is a no-op")
	assert.Len(t, f.notifier.sent, 1)
}

func TestTicketActNotes(t *testing.T) {
	f := newTicketFixture(t)
	tk := f.open(t, "t", true)

	_, err := f.svc.Act(f.creator, tk.ID, ActInput{})
	assert.ErrorIs(t, err, ErrEmptyAction)
	_, err = f.svc.Act(f.creator, tk.ID, ActInput{Status: "closed"})
	assert.ErrorIs(t, err, ErrInvalidStatus)
	res, err := f.svc.Act(f.outsider, tk.ID, ActInput{Note: "hi"})
	require.NoError(t, err)
	assert.False(t, res.Visible)
	assert.Zero(t, res.NoteID)
	assert.Equal(t, []string{warnNoteNotAllowed}, res.Warnings)
	_, err = f.svc.Act(f.creator, 9999, ActInput{Note: "hi"})
	assert.ErrorIs(t, err, ErrNotFound)

	res, err = f.svc.Act(f.creator, tk.ID, ActInput{Note: "متى؟"})
	require.NoError(t, err)
	assert.NotZero(t, res.NoteID)

	private := false
	res, err = f.svc.Act(f.assignee, tk.ID, ActInput{Note: "داخلي", IsPublic: &private})
	require.NoError(t, err)
	assert.NotZero(t, res.NoteID)

	res, err = f.svc.Act(f.member, tk.ID, ActInput{Note: "من عضو"})
	require.NoError(t, err)
	assert.Zero(t, res.NoteID)
	assert.Equal(t, []string{warnNoteNotAllowed}, res.Warnings)

	forCreator, err := f.svc.Detail(f.creator, tk.ID)
	require.NoError(t, err)
	require.Len(t, forCreator.Notes, 1, "private notes hidden from the creator")
	assert.Equal(t, "متى؟", forCreator.Notes[0].Body)

	forMember, err := f.svc.Detail(f.member, tk.ID)
	require.NoError(t, err)
	require.Len(t, forMember.Notes, 2)
	assert.Equal(t, "داخلي", forMember.Notes[0].Body, "newest first")

	_, err = f.svc.Detail(f.outsider, tk.ID)
	assert.True(t, errors.Is(err, ErrForbidden))
}

func TestTicketListings(t *testing.T) {
	f := newTicketFixture(t)
	assigned := f.open(t, "مكلّف", true)
	unassigned := f.open(t, "غير مكلّف", false)
	mine, err := f.svc.Create(f.outsider, TicketInput{Title: "خاص"}, nil)
	require.NoError(t, err)
	_, err = f.svc.Act(f.assignee, assigned.ID, ActInput{Status: models.TicketInProgress})
	require.NoError(t, err)

	manager := makeTeacher(t, f.db, "مدير", models.RoleManager)
	all, err := f.svc.Inbox(manager, TicketFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 3, all.Stats.Total)

	inbox, err := f.svc.Inbox(f.member, TicketFilter{})
	require.NoError(t, err)
	assert.Len(t, inbox.Tickets, 2)
	assert.EqualValues(t, 1, inbox.Stats.Open)
	assert.EqualValues(t, 1, inbox.Stats.InProgress)

	onlyMine, err := f.svc.Inbox(f.assignee, TicketFilter{Mine: true})
	require.NoError(t, err)
	require.Len(t, onlyMine.Tickets, 1)
	assert.Equal(t, assigned.ID, onlyMine.Tickets[0].ID)

	queue, err := f.svc.AssignedToMe(f.member, TicketFilter{})
	require.NoError(t, err)
	require.Len(t, queue.Tickets, 1)
	assert.Equal(t, unassigned.ID, queue.Tickets[0].ID)

	byID, err := f.svc.Inbox(manager, TicketFilter{Q: fmt.Sprintf("#%d", mine.ID)})
	require.NoError(t, err)
	require.Len(t, byID.Tickets, 1)
	assert.Equal(t, mine.ID, byID.Tickets[0].ID)

	byAssignee, err := f.svc.Inbox(manager, TicketFilter{Q: "المكلّف"})
	require.NoError(t, err)
	assert.Len(t, byAssignee.Tickets, 1)

	requests, err := f.svc.MyRequests(f.creator, TicketFilter{Status: models.TicketOpen}, utils.NewPagination(1, MyRequestsPageSize))
	require.NoError(t, err)
	assert.Len(t, requests.Tickets, 1)
	assert.EqualValues(t, 1, requests.Pagination.Total)
	assert.EqualValues(t, 2, requests.Stats.Total, "stats ignore the status filter")

	open, assignedOpen := f.svc.OpenCounts(f.assignee)
	assert.Zero(t, open)
	assert.EqualValues(t, 1, assignedOpen)

	recent, stats, err := f.svc.Recent(f.creator, 1)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
	assert.EqualValues(t, 2, stats.Total)
}
