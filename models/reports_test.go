package models

import (
	"testing"
	"time"
)

func TestArabicDayName(t *testing.T) {
	tests := []struct {
		name string
		date string
		want string
	}{
		{name: "monday", date: "2024-03-04", want: "الاثنين"},
		{name: "tuesday", date: "2024-03-05", want: "الثلاثاء"},
		{name: "wednesday", date: "2024-03-06", want: "الأربعاء"},
		{name: "thursday", date: "2024-03-07", want: "الخميس"},
		{name: "friday", date: "2024-03-08", want: "الجمعة"},
		{name: "saturday", date: "2024-03-09", want: "السبت"},
		{name: "sunday", date: "2024-03-10", want: "الأحد"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			d, err := time.Parse("2006-01-02", tc.date)
			if err != nil {
				t.Fatalf("bad fixture: %v", err)
			}
			if got := ArabicDayName(d); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestISOWeekdaySunday(t *testing.T) {
	d := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	if got := ISOWeekday(d); got != 7 {
		t.Fatalf("expected 7 for sunday, got %d", got)
	}
}

func TestReportBeforeSaveKeepsExplicitValues(t *testing.T) {
	r := &Report{
		TeacherID:   1,
		TeacherName: "  اسم محفوظ ",
		ReportDate:  time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
		DayName:     "يوم مخصص",
	}
	if err := r.BeforeSave(nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.DayName != "يوم مخصص" {
		t.Fatalf("explicit day name overwritten: %s", r.DayName)
	}
	if r.TeacherName != "اسم محفوظ" {
		t.Fatalf("teacher name not trimmed: %q", r.TeacherName)
	}
}

func TestReportBeforeSaveUsesLoadedTeacher(t *testing.T) {
	r := &Report{
		TeacherID:  5,
		Teacher:    &Teacher{BaseModel: BaseModel{ID: 5}, Name: "معلم التجربة"},
		ReportDate: time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
	}
	if err := r.BeforeSave(nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.DayName != "الاثنين" {
		t.Fatalf("expected monday, got %s", r.DayName)
	}
	if r.TeacherName != "معلم التجربة" {
		t.Fatalf("expected frozen teacher name, got %q", r.TeacherName)
	}
}

func TestTicketStatuses(t *testing.T) {
	for _, s := range TicketStatuses {
		if !IsValidTicketStatus(s) {
			t.Fatalf("status %s should be valid", s)
		}
	}
	if IsValidTicketStatus("pending") {
		t.Fatalf("pending is not a ticket status")
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := TruncateRunes("مرحبا", 3); got != "مرح" {
		t.Fatalf("unexpected truncation: %q", got)
	}
	if got := TruncateRunes("abc", 10); got != "abc" {
		t.Fatalf("unexpected truncation: %q", got)
	}
}
