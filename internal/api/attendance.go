package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"atttracker/internal/attendance"
)

// ownOrAdmin lets admins through and students only for their own id.
func ownOrAdmin(c *gin.Context, studentID string) bool {
	if isAdmin(c) || studentID == identity(c).UserID {
		return true
	}
	forbid(c, "students may only access their own attendance")
	return false
}

// stamp fills the marker and, for students, pins the record to themselves.
func stamp(c *gin.Context, in *attendance.NewRecord) {
	id := identity(c)
	in.MarkedBy = id.UserID
	if !isAdmin(c) {
		in.StudentID = id.UserID
	}
}

func (h *handlers) markAttendance(c *gin.Context) {
	var in attendance.NewRecord
	if !bind(c, &in) {
		return
	}
	stamp(c, &in)
	r, err := h.Attendance.Mark(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

func (h *handlers) markBulk(c *gin.Context) {
	var req struct {
		Records []attendance.NewRecord `json:"records"`
	}
	if !bind(c, &req) {
		return
	}
	for i := range req.Records {
		stamp(c, &req.Records[i])
	}
	results, err := h.Attendance.MarkBulk(c.Request.Context(), req.Records)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (h *handlers) listAttendance(c *gin.Context) {
	from, to, err := h.dateRange(c, "from", "to")
	if err != nil {
		h.fail(c, err)
		return
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		h.fail(c, err)
		return
	}
	offset, err := queryInt(c, "offset")
	if err != nil {
		h.fail(c, err)
		return
	}
	f := attendance.Filter{
		StudentID: c.Query("student"),
		SubjectID: c.Query("subject"),
		Status:    c.Query("status"),
		From:      from,
		To:        to,
		Limit:     limit,
		Offset:    offset,
	}
	if !isAdmin(c) {
		f.StudentID = identity(c).UserID
	}
	records, err := h.Attendance.List(c.Request.Context(), f)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

func (h *handlers) modifyStatus(c *gin.Context) {
	var req struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	}
	if !bind(c, &req) {
		return
	}
	ctx := c.Request.Context()
	if !isAdmin(c) {
		existing, err := h.Attendance.Get(ctx, c.Param("id"))
		if err != nil {
			h.fail(c, err)
			return
		}
		if !ownOrAdmin(c, existing.StudentID) {
			return
		}
	}
	r, changed, err := h.Attendance.ModifyStatus(ctx, c.Param("id"), req.Status, identity(c).UserID, req.Reason)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"record": r, "changed": changed})
}

func (h *handlers) studentSummary(c *gin.Context) {
	student := c.Param("id")
	if !ownOrAdmin(c, student) {
		return
	}
	from, to, err := h.dateRange(c, "from", "to")
	if err != nil {
		h.fail(c, err)
		return
	}
	sums, err := h.Attendance.StudentSummary(c.Request.Context(), student, c.Query("subject"), from, to)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"student": student, "subjects": sums})
}

func (h *handlers) subjectSummary(c *gin.Context) {
	from, to, err := h.dateRange(c, "from", "to")
	if err != nil {
		h.fail(c, err)
		return
	}
	sums, err := h.Attendance.SubjectSummary(c.Request.Context(), c.Param("id"), from, to, c.Query("order"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"subject": c.Param("id"), "students": sums})
}

func (h *handlers) dailyCount(c *gin.Context) {
	date, err := h.queryDate(c, "date")
	if err != nil {
		h.fail(c, err)
		return
	}
	count, err := h.Attendance.DailyCount(c.Request.Context(), date)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, count)
}

func (h *handlers) trends(c *gin.Context) {
	student := c.Param("id")
	if !ownOrAdmin(c, student) {
		return
	}
	days, err := queryInt(c, "days")
	if err != nil {
		h.fail(c, err)
		return
	}
	points, err := h.Attendance.Trends(c.Request.Context(), student, days)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"student": student, "trend": points})
}

func (h *handlers) shortages(c *gin.Context) {
	student := c.Query("student")
	if !isAdmin(c) {
		student = identity(c).UserID
	}
	list, err := h.Shortages.List(c.Request.Context(), student)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"shortages": list})
}
