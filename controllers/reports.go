package controllers

import (
	"fmt"
	"mime/multipart"
	"strconv"
	"time"

	"schoolreports_go/middleware"
	"schoolreports_go/services"
	"schoolreports_go/utils"

	"github.com/gofiber/fiber/v2"
)

type ReportController struct {
	reports *services.ReportService
	loc     *time.Location
}

func NewReportController(reports *services.ReportService, loc *time.Location) *ReportController {
	if loc == nil {
		loc = time.UTC
	}
	return &ReportController{reports: reports, loc: loc}
}

func (rc *ReportController) filter(c *fiber.Ctx) (services.ReportFilter, error) {
	f, err := services.ReportFilterFromQuery(func(k string) string { return c.Query(k) }, rc.loc)
	if err != nil {
		return f, err
	}
	if id, convErr := strconv.ParseUint(c.Query("category"), 10, 64); convErr == nil {
		f.CategoryID = uint(id)
	}
	return f, nil
}

// reportForm reads the report fields plus up to four images sent as "images" or image1..image4.
func reportForm(c *fiber.Ctx) (services.ReportInput, []*multipart.FileHeader, error) {
	var in services.ReportInput
	if err := c.BodyParser(&in); err != nil {
		return in, nil, err
	}
	var images []*multipart.FileHeader
	if form, err := c.MultipartForm(); err == nil {
		images = append(images, form.File["images"]...)
		for i := 1; i <= 4; i++ {
			images = append(images, form.File[fmt.Sprintf("image%d", i)]...)
		}
	}
	return in, images, nil
}

// MyReports lists the current teacher's reports, ten per page.
func (rc *ReportController) MyReports(c *fiber.Ctx) error {
	f, err := rc.filter(c)
	if err != nil {
		return respondError(c, err)
	}
	reports, p, err := rc.reports.MyReports(currentTeacher(c), f, utils.FixedPage(c, services.MyReportsPageSize))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"reports": utils.ToReportDTOs(reports), "pagination": p})
}

func (rc *ReportController) Create(c *fiber.Ctx) error {
	in, images, err := reportForm(c)
	if err != nil {
		return badRequest(c, "Invalid request body")
	}
	r, err := rc.reports.Create(currentTeacher(c), in, images)
	if err != nil {
		return respondError(c, err)
	}
	middleware.LogActivity(c, "CREATE", "reports", r.ID, fiber.Map{"title": r.Title})
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"report": utils.ToReportDTO(*r)})
}

func (rc *ReportController) Get(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	r, err := rc.reports.ReportForUser(currentTeacher(c), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"report": utils.ToReportDTO(*r)})
}

func (rc *ReportController) Update(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	in, images, err := reportForm(c)
	if err != nil {
		return badRequest(c, "Invalid request body")
	}
	r, err := rc.reports.Update(currentTeacher(c), id, in, images)
	if err != nil {
		return respondError(c, err)
	}
	middleware.LogActivity(c, "UPDATE", "reports", r.ID, fiber.Map{"title": r.Title})
	return c.JSON(fiber.Map{"report": utils.ToReportDTO(*r)})
}

func (rc *ReportController) Delete(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	if err := rc.reports.DeleteMine(currentTeacher(c), id); err != nil {
		return respondError(c, err)
	}
	middleware.LogActivity(c, "DELETE", "reports", id, nil)
	return c.JSON(fiber.Map{"message": "تم حذف التقرير"})
}

// Print returns the report with the signer label of its category's department.
func (rc *ReportController) Print(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	data, err := rc.reports.Print(currentTeacher(c), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"report": utils.ToReportDTO(data.Report), "signer_label": data.SignerLabel})
}

// AdminReports is the staff listing, twenty per page.
func (rc *ReportController) AdminReports(c *fiber.Ctx) error {
	f, err := rc.filter(c)
	if err != nil {
		return respondError(c, err)
	}
	listing, err := rc.reports.AdminReports(currentTeacher(c), f, utils.FixedPage(c, services.AdminReportsPageSize))
	if err != nil {
		return respondError(c, err)
	}
	categories := make([]*utils.CategoryShort, 0, len(listing.Categories))
	for i := range listing.Categories {
		categories = append(categories, utils.ToCategoryShort(&listing.Categories[i]))
	}
	return c.JSON(fiber.Map{
		"reports":           utils.ToReportDTOs(listing.Reports),
		"pagination":        listing.Pagination,
		"categories":        categories,
		"selected_category": listing.Category,
	})
}

// Export streams the admin listing as an XLSX workbook.
func (rc *ReportController) Export(c *fiber.Ctx) error {
	f, err := rc.filter(c)
	if err != nil {
		return respondError(c, err)
	}
	data, err := rc.reports.Export(currentTeacher(c), f)
	if err != nil {
		return respondError(c, err)
	}
	c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="reports_%s.xlsx"`, time.Now().In(rc.loc).Format("20060102")))
	return c.Send(data)
}

func (rc *ReportController) AdminDelete(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	if err := rc.reports.AdminDelete(id); err != nil {
		return respondError(c, err)
	}
	middleware.LogActivity(c, "DELETE", "reports", id, fiber.Map{"scope": "admin"})
	return c.JSON(fiber.Map{"message": "تم حذف التقرير"})
}

// OfficerReports lists reports in the officer's department categories, 25 per page.
func (rc *ReportController) OfficerReports(c *fiber.Ctx) error {
	f, err := rc.filter(c)
	if err != nil {
		return respondError(c, err)
	}
	listing, err := rc.reports.OfficerReports(currentTeacher(c), f, utils.FixedPage(c, services.OfficerReportsPageSize))
	if err != nil {
		return respondError(c, err)
	}
	depts := make([]*utils.DepartmentShort, 0, len(listing.Departments))
	for i := range listing.Departments {
		depts = append(depts, utils.ToDepartmentShort(&listing.Departments[i]))
	}
	categories := make([]*utils.CategoryShort, 0, len(listing.Categories))
	for i := range listing.Categories {
		categories = append(categories, utils.ToCategoryShort(&listing.Categories[i]))
	}
	return c.JSON(fiber.Map{
		"departments": depts,
		"categories":  categories,
		"reports":     utils.ToReportDTOs(listing.Reports),
		"pagination":  listing.Pagination,
	})
}

func (rc *ReportController) OfficerDelete(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	if err := rc.reports.OfficerDelete(currentTeacher(c), id); err != nil {
		return respondError(c, err)
	}
	middleware.LogActivity(c, "DELETE", "reports", id, fiber.Map{"scope": "officer"})
	return c.JSON(fiber.Map{"message": "تم حذف التقرير"})
}
