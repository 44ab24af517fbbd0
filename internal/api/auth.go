package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"atttracker/internal/auth"
	"atttracker/internal/user"
)

func identityOf(u user.User) auth.Identity {
	return auth.Identity{UserID: u.ID, Role: u.Role, BranchID: u.BranchID, Semester: u.Semester}
}

func (h *handlers) issue(c *gin.Context, status int, u user.User) {
	tokens, err := h.Tokens.Issue(identityOf(u))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(status, gin.H{"user": u, "tokens": tokens})
}

// register creates student accounts only; admins are provisioned by cmd/seed.
func (h *handlers) register(c *gin.Context) {
	var in user.Registration
	if !bind(c, &in) {
		return
	}
	in.Role = user.RoleStudent
	u, err := h.Users.Register(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.issue(c, http.StatusCreated, u)
}

func (h *handlers) login(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !bind(c, &req) {
		return
	}
	u, err := h.Users.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.issue(c, http.StatusOK, u)
}

func (h *handlers) refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if !bind(c, &req) {
		return
	}
	claims, err := h.Tokens.Parse(req.RefreshToken, auth.KindRefresh)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	u, err := h.Users.Get(c.Request.Context(), claims.Subject)
	if err != nil || !u.IsActive {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	h.issue(c, http.StatusOK, u)
}

func (h *handlers) me(c *gin.Context) {
	u, err := h.Users.Get(c.Request.Context(), identity(c).UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}
