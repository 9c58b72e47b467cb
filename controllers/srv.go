// controllers/srv.go
package controllers

import (
	"asset_lending_tool/app"
	"asset_lending_tool/apperr"
	"asset_lending_tool/db"
	"asset_lending_tool/lifecycle"
	"asset_lending_tool/sweep"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

type Srv struct {
	Repo   *db.Repo
	Engine *lifecycle.Engine
	Sweep  *sweep.Runner
	Logger *slog.Logger
}

func GetSrv(a *app.App) *Srv {
	logger := a.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Srv{Repo: a.Repo, Engine: a.Engine, Sweep: a.Sweep, Logger: logger}
}

// --- helpers ---

// StatusOf maps an error category to its HTTP status.
func StatusOf(err error) int {
	var (
		ve *apperr.ValidationError
		ce *apperr.ConflictError
		se *apperr.StateTransitionError
	)
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.As(err, &ce), errors.As(err, &se):
		return http.StatusConflict
	case apperr.Retryable(err):
		return http.StatusServiceUnavailable
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// 统一错误响应：只返回分类消息，细节写日志
func (s *Srv) fail(c *gin.Context, err error) {
	status := StatusOf(err)
	body := app.H{"error": apperr.Message(err)}

	var ce *apperr.ConflictError
	if errors.As(err, &ce) && ce.LoanID != "" {
		body["conflict"] = app.H{
			"loanId":    ce.LoanID,
			"startDate": ce.Start.Format(time.DateOnly),
			"dueDate":   ce.Due.Format(time.DateOnly),
		}
	}
	switch {
	case status == http.StatusServiceUnavailable:
		c.Header("Retry-After", "1")
		s.Logger.WarnContext(c.Request.Context(), "request hit a busy asset", "path", c.FullPath(), "err", err)
	case status >= http.StatusInternalServerError:
		s.Logger.ErrorContext(c.Request.Context(), "request failed", "path", c.FullPath(), "err", err)
	}
	c.AbortWithStatusJSON(status, body)
}

func actorID(c *gin.Context) string { return c.GetString("userID") }

// parseDate reads a YYYY-MM-DD value; empty gives the zero time.
func parseDate(field, v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, apperr.Invalid(field, "must be a date like 2006-01-02")
	}
	return t, nil
}
