package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"atttracker/internal/apperr"
	"atttracker/internal/timetable"
)

// branchSemester reads branch/semester from the query. Students default to
// their own.
func branchSemester(c *gin.Context) (string, int, error) {
	id := identity(c)
	branch := c.DefaultQuery("branch", id.BranchID)
	semester, err := queryInt(c, "semester")
	if err != nil {
		return "", 0, err
	}
	if semester == 0 {
		semester = id.Semester
	}
	if branch == "" || semester == 0 {
		return "", 0, apperr.Field("branch", "branch and semester are required")
	}
	return branch, semester, nil
}

func (h *handlers) listTimetables(c *gin.Context) {
	semester, err := queryInt(c, "semester")
	if err != nil {
		h.fail(c, err)
		return
	}
	list, err := h.Timetables.List(c.Request.Context(), timetable.Filter{
		BranchID:     c.Query("branch"),
		Semester:     semester,
		AcademicYear: c.Query("academicYear"),
		ActiveOnly:   queryBool(c, "active"),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"timetables": list})
}

func (h *handlers) createTimetable(c *gin.Context) {
	var in timetable.NewTimetable
	if !bind(c, &in) {
		return
	}
	in.CreatedBy = identity(c).UserID
	tt, err := h.Timetables.Create(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, tt)
}

func (h *handlers) currentTimetable(c *gin.Context) {
	branch, semester, err := branchSemester(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	tt, err := h.Timetables.GetCurrent(c.Request.Context(), branch, semester)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tt)
}

func (h *handlers) todaySchedule(c *gin.Context) {
	branch, semester, err := branchSemester(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	view, err := h.Timetables.Today(c.Request.Context(), branch, semester)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *handlers) nextClass(c *gin.Context) {
	branch, semester, err := branchSemester(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	next, err := h.Timetables.Next(c.Request.Context(), branch, semester)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"next": next})
}

func (h *handlers) timetableHistory(c *gin.Context) {
	branch, semester, err := branchSemester(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	list, err := h.Timetables.History(c.Request.Context(), branch, semester, c.Query("academicYear"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"timetables": list})
}

func (h *handlers) getTimetable(c *gin.Context) {
	tt, err := h.Timetables.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tt)
}

func (h *handlers) weeklyCount(c *gin.Context) {
	counts, err := h.Timetables.WeeklyCount(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"counts": counts})
}

func (h *handlers) addSlot(c *gin.Context) {
	var req struct {
		Day      string             `json:"day"`
		Revision int                `json:"revision"`
		Slot     timetable.TimeSlot `json:"slot"`
	}
	if !bind(c, &req) {
		return
	}
	tt, slot, err := h.Timetables.AddSlot(c.Request.Context(), c.Param("id"), req.Day, req.Slot, req.Revision)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"timetable": tt, "slot": slot})
}

func (h *handlers) updateSlot(c *gin.Context) {
	var req struct {
		timetable.SlotRef
		Revision int                 `json:"revision"`
		Changes  timetable.SlotPatch `json:"changes"`
	}
	if !bind(c, &req) {
		return
	}
	tt, slot, err := h.Timetables.UpdateSlot(c.Request.Context(), c.Param("id"), req.SlotRef, req.Changes, req.Revision)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"timetable": tt, "slot": slot})
}

// deleteSlot addresses the slot by ?slotId= or ?day=&index=.
func (h *handlers) deleteSlot(c *gin.Context) {
	ref := timetable.SlotRef{ID: c.Query("slotId"), Day: c.Query("day")}
	if c.Query("index") != "" {
		idx, err := queryInt(c, "index")
		if err != nil {
			h.fail(c, err)
			return
		}
		ref.Index = &idx
	}
	revision, err := queryInt(c, "revision")
	if err != nil {
		h.fail(c, err)
		return
	}
	tt, err := h.Timetables.DeleteSlot(c.Request.Context(), c.Param("id"), ref, revision)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tt)
}

func (h *handlers) replaceSchedule(c *gin.Context) {
	var req struct {
		Schedule []timetable.DaySchedule `json:"schedule"`
		Revision int                     `json:"revision"`
	}
	if !bind(c, &req) {
		return
	}
	tt, err := h.Timetables.ReplaceSchedule(c.Request.Context(), c.Param("id"), req.Schedule, req.Revision)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tt)
}

func (h *handlers) createVersion(c *gin.Context) {
	var in timetable.NewVersion
	if !bind(c, &in) {
		return
	}
	in.CreatedBy = identity(c).UserID
	tt, err := h.Timetables.CreateNewVersion(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, tt)
}

func (h *handlers) deactivateTimetable(c *gin.Context) {
	tt, err := h.Timetables.Deactivate(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tt)
}
