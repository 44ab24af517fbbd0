package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"atttracker/internal/apperr"
	"atttracker/internal/auth"
	"atttracker/internal/user"
)

// fail maps domain errors to HTTP responses.
func (h *handlers) fail(c *gin.Context, err error) {
	var (
		verr *apperr.ValidationError
		derr *apperr.DomainConflictError
	)
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": verr.Map()})
	case errors.As(err, &derr):
		c.JSON(http.StatusConflict, gin.H{
			"error":    derr.Error(),
			"conflict": gin.H{"day": derr.Day, "startTime": derr.StartTime, "endTime": derr.EndTime, "with": derr.With},
		})
	case apperr.IsConflict(err):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case apperr.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, apperr.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, user.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	default:
		h.Log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// bind decodes the JSON body, answering 400 itself when it cannot.
func bind(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body: " + err.Error()})
		return false
	}
	return true
}

func forbid(c *gin.Context, msg string) {
	c.JSON(http.StatusForbidden, gin.H{"error": msg})
}

func identity(c *gin.Context) auth.Identity {
	id, _ := auth.FromContext(c)
	return id
}

func isAdmin(c *gin.Context) bool {
	return identity(c).Role == user.RoleAdmin
}

func queryInt(c *gin.Context, name string) (int, error) {
	v := c.Query(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperr.Field(name, name+" must be an integer")
	}
	return n, nil
}

func queryBool(c *gin.Context, name string) bool {
	b, _ := strconv.ParseBool(c.Query(name))
	return b
}

// queryDate parses a YYYY-MM-DD parameter to local midnight; empty is zero.
func (h *handlers) queryDate(c *gin.Context, name string) (time.Time, error) {
	v := c.Query(name)
	if v == "" {
		return time.Time{}, nil
	}
	d, err := time.ParseInLocation("2006-01-02", v, h.Location)
	if err != nil {
		return time.Time{}, apperr.Field(name, name+" must have the format YYYY-MM-DD")
	}
	return d, nil
}

// dateRange reads from/to (or start/end) as inclusive whole days.
func (h *handlers) dateRange(c *gin.Context, fromName, toName string) (time.Time, time.Time, error) {
	from, err := h.queryDate(c, fromName)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := h.queryDate(c, toName)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !to.IsZero() {
		to = to.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return from, to, nil
}
