package services

import (
	"regexp"
	"strings"

	"schoolreports_go/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// BindCommand is the chat message that links a LINE group to a department: "#dept <slug or name>".
const BindCommand = "#dept"

var spaces = regexp.MustCompile(`\s+`)

// normalizeName lowercases s and collapses whitespace so names compare loosely.
func normalizeName(s string) string {
	return spaces.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), " ")
}

// ParseBindCommand extracts the department reference from a "#dept <ref>" message.
func ParseBindCommand(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(strings.ToLower(text), BindCommand) {
		return "", false
	}
	rest := text[len(BindCommand):]
	if rest == "" || (rest[0] != ' ' && rest[0] != '\t') {
		return "", false
	}
	ref := strings.TrimSpace(rest)
	return ref, ref != ""
}

// LineGroupMatcher links LINE chat groups to departments so ticket notices reach them.
type LineGroupMatcher struct {
	db *gorm.DB
}

func NewLineGroupMatcher(db *gorm.DB) *LineGroupMatcher {
	return &LineGroupMatcher{db: db}
}

// Match finds the active department whose slug or name equals ref, ignoring case and spacing.
func (m *LineGroupMatcher) Match(ref string) (*models.Department, error) {
	var d models.Department
	err := m.db.Where("slug = ? AND is_active = ?", strings.ToLower(strings.TrimSpace(ref)), true).First(&d).Error
	if err == nil {
		return &d, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	var depts []models.Department
	if err := m.db.Where("is_active = ?", true).Find(&depts).Error; err != nil {
		return nil, err
	}
	want := normalizeName(ref)
	for i := range depts {
		if normalizeName(depts[i].Name) == want {
			return &depts[i], nil
		}
	}
	return nil, ErrNotFound
}

// Bind stores groupID on the department matched by ref. A group serves one department:
// any other department holding the same group id is unlinked.
func (m *LineGroupMatcher) Bind(groupID, ref string) (*models.Department, error) {
	d, err := m.Match(ref)
	if err != nil {
		return nil, err
	}
	err = m.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Department{}).
			Where("line_group_id = ? AND id <> ?", groupID, d.ID).
			Update("line_group_id", "").Error; err != nil {
			return err
		}
		return tx.Model(&models.Department{}).Where("id = ?", d.ID).Update("line_group_id", groupID).Error
	})
	if err != nil {
		return nil, err
	}
	d.LineGroupID = groupID
	logrus.WithFields(logrus.Fields{"department": d.Slug, "group_id": groupID}).Info("LINE group bound to department")
	return d, nil
}
