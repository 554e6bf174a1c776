package services

import "errors"

var (
	ErrNotFound                = errors.New("not found")
	ErrForbidden               = errors.New("not allowed")
	ErrProtectedDepartment     = errors.New("the manager department is protected")
	ErrSlugTaken               = errors.New("slug already in use")
	ErrReportTypeInUse         = errors.New("report type is referenced by reports")
	ErrAssigneeNotInDepartment = errors.New("assignee does not belong to the department")
	ErrInvalidStatus           = errors.New("invalid ticket status")
	ErrEmptyAction             = errors.New("nothing to do")
	ErrInvalidCredentials      = errors.New("invalid credentials")
	ErrNotOfficer              = errors.New("user is not an officer of any department")
	ErrUseAdminReports         = errors.New("superusers review reports from the admin listing")
)

// InUseError carries the number of rows still referencing a record.
type InUseError struct {
	Name  string
	Count int64
	Err   error
}

func (e *InUseError) Error() string { return e.Err.Error() }
func (e *InUseError) Unwrap() error { return e.Err }
