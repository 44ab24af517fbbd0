package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"atttracker/internal/calendar"
)

func (h *handlers) listEvents(c *gin.Context) {
	semester, err := queryInt(c, "semester")
	if err != nil {
		h.fail(c, err)
		return
	}
	events, err := h.Calendar.List(c.Request.Context(), calendar.Filter{
		AcademicYear: c.Query("academicYear"),
		Type:         c.Query("type"),
		HolidaysOnly: queryBool(c, "holidays"),
		BranchID:     c.Query("branch"),
		Semester:     semester,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (h *handlers) createEvent(c *gin.Context) {
	var in calendar.NewEvent
	if !bind(c, &in) {
		return
	}
	in.CreatedBy = identity(c).UserID
	e, err := h.Calendar.Create(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, e)
}

type rangeQuery struct {
	start, end time.Time
	branch     string
	semester   int
}

func (h *handlers) readRange(c *gin.Context) (rangeQuery, error) {
	start, end, err := h.dateRange(c, "start", "end")
	if err != nil {
		return rangeQuery{}, err
	}
	semester, err := queryInt(c, "semester")
	if err != nil {
		return rangeQuery{}, err
	}
	return rangeQuery{start: start, end: end, branch: c.Query("branch"), semester: semester}, nil
}

func (h *handlers) eventsForRange(c *gin.Context) {
	q, err := h.readRange(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	events, err := h.Calendar.EventsForRange(c.Request.Context(), q.start, q.end, q.branch, q.semester)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (h *handlers) holidaysForRange(c *gin.Context) {
	q, err := h.readRange(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	events, err := h.Calendar.HolidaysForRange(c.Request.Context(), q.start, q.end, q.branch, q.semester)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"holidays": events})
}

func (h *handlers) getEvent(c *gin.Context) {
	e, err := h.Calendar.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

func (h *handlers) updateEvent(c *gin.Context) {
	var in calendar.NewEvent
	if !bind(c, &in) {
		return
	}
	e, err := h.Calendar.Update(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

func (h *handlers) deleteEvent(c *gin.Context) {
	if err := h.Calendar.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) createRecurrences(c *gin.Context) {
	var req struct {
		Count int `json:"count"`
	}
	if !bind(c, &req) {
		return
	}
	events, err := h.Calendar.CreateRecurring(c.Request.Context(), c.Param("id"), req.Count)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"events": events})
}
