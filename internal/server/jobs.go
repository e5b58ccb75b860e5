package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/cashback/internal/scheduler"
)

// RunJob runs one scheduler job synchronously and returns its result.
// The optional date query parameter overrides the current date.
func (s *Server) RunJob(c *gin.Context) {
	job := c.Param("job")
	if !scheduler.IsKnownJob(job) {
		AbortWithError(c, ErrNotFound)
		return
	}
	at, err := parseOptionalDate(c.Query("date"))
	if err != nil {
		AbortWithError(c, newValidationError("date", "invalid_date", "date must be YYYY-MM-DD"))
		return
	}

	result, err := s.jobs.RunJob(c.Request.Context(), job, at)
	if err != nil {
		if errors.Is(err, scheduler.ErrJobLocked) {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": errorPayload{Type: "job_failed", Message: err.Error()},
			"data":  result,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}
