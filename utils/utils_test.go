package utils

import (
	"testing"
	"time"

	"schoolreports_go/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSlug(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"  Student Affairs ", "student-affairs"},
		{"IT--Dept!!", "it-dept"},
		{"شؤون الطلاب", "شؤون-الطلاب"},
		{"---", ""},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, GenerateSlug(tc.input), tc.input)
	}
}

func TestNormalizeSlug(t *testing.T) {
	assert.Equal(t, "labs", NormalizeSlug("  LABS ", "ignored"))
	assert.Equal(t, "science-lab", NormalizeSlug("", "Science Lab"))
}

type teacherForm struct {
	Phone      string `json:"phone" validate:"required,phone"`
	NationalID string `json:"national_id" validate:"omitempty,national_id"`
	Name       string `json:"name" validate:"required,max=150"`
}

func TestValidateStruct(t *testing.T) {
	err := ValidateStruct(teacherForm{Phone: "0512345678", Name: "معلم"})
	assert.NoError(t, err)

	err = ValidateStruct(teacherForm{Phone: "512345678", NationalID: "12", Name: ""})
	require.Error(t, err)
	ve, ok := err.(ValidationErrors)
	require.True(t, ok)
	assert.Contains(t, ve, "phone")
	assert.Contains(t, ve, "national_id")
	assert.Contains(t, ve, "name")
}

func TestValidationErrorsOrNil(t *testing.T) {
	assert.NoError(t, ValidationErrors{}.OrNil())
	ve := ValidationErrors{}
	ve.Add("title", "first")
	ve.Add("title", "second")
	assert.Equal(t, "first", ve["title"])
	assert.Error(t, ve.OrNil())
}

func TestIsValidFileExtension(t *testing.T) {
	allowed := []string{"pdf", "docx"}
	assert.True(t, IsValidFileExtension("Plan.PDF", allowed))
	assert.False(t, IsValidFileExtension("plan.exe", allowed))
	assert.False(t, IsValidFileExtension("noext", allowed))
}

func TestPagination(t *testing.T) {
	p := NewPagination(0, 500)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, maxPageSize, p.Limit)

	p = NewPagination(3, 10).WithTotal(25)
	assert.Equal(t, 20, p.Offset())
	assert.Equal(t, 3, p.Pages)
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("", time.UTC)
	assert.NoError(t, err)
	assert.Nil(t, d)

	d, err = ParseDate("2024-03-04", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Monday, d.Weekday())

	_, err = ParseDate("04/03/2024", time.UTC)
	assert.Error(t, err)
}

func TestToNotificationDTODefaults(t *testing.T) {
	dto := ToNotificationDTO(models.NotificationRecipient{
		Notification: &models.Notification{BaseModel: models.BaseModel{ID: 7}, Message: "hello"},
	})
	assert.Equal(t, uint(7), dto.ID)
	assert.Equal(t, DefaultNotificationTitle, dto.Title)
	assert.Equal(t, DefaultNotificationSender, dto.SenderName)
}
