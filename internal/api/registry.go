package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"atttracker/internal/registry"
)

func (h *handlers) listBranches(c *gin.Context) {
	branches, err := h.Registry.ListBranches(c.Request.Context(), queryBool(c, "active"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"branches": branches})
}

func (h *handlers) createBranch(c *gin.Context) {
	var in registry.NewBranch
	if !bind(c, &in) {
		return
	}
	b, err := h.Registry.CreateBranch(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

func (h *handlers) getBranch(c *gin.Context) {
	b, err := h.Registry.GetBranch(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *handlers) updateBranch(c *gin.Context) {
	var in registry.UpdateBranch
	if !bind(c, &in) {
		return
	}
	b, err := h.Registry.UpdateBranch(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *handlers) deactivateBranch(c *gin.Context) {
	b, err := h.Registry.SetBranchActive(c.Request.Context(), c.Param("id"), false)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *handlers) listSubjects(c *gin.Context) {
	semester, err := queryInt(c, "semester")
	if err != nil {
		h.fail(c, err)
		return
	}
	subjects, err := h.Registry.ListSubjects(c.Request.Context(), registry.SubjectFilter{
		BranchID:   c.Query("branch"),
		Semester:   semester,
		ActiveOnly: queryBool(c, "active"),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"subjects": subjects})
}

func (h *handlers) createSubject(c *gin.Context) {
	var in registry.NewSubject
	if !bind(c, &in) {
		return
	}
	s, err := h.Registry.CreateSubject(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, s)
}

func (h *handlers) getSubject(c *gin.Context) {
	s, err := h.Registry.GetSubject(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *handlers) updateSubject(c *gin.Context) {
	var in registry.UpdateSubject
	if !bind(c, &in) {
		return
	}
	s, err := h.Registry.UpdateSubject(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *handlers) deactivateSubject(c *gin.Context) {
	s, err := h.Registry.SetSubjectActive(c.Request.Context(), c.Param("id"), false)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}
