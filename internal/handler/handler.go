// Package handler implements the JSON API served under /api.
package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"subzone/internal/activity"
	"subzone/internal/auth"
	"subzone/internal/provider"
	"subzone/internal/quota"
	"subzone/internal/service"
)

type handlerFunc func(c *gin.Context) (any, error)

// created marks a result that should be answered with 201.
type created struct {
	v any
}

// httpError is an error raised by the handler layer itself.
type httpError struct {
	status int
	msg    string
}

func (e *httpError) Error() string { return e.msg }

func badRequest(msg string) error {
	return &httpError{status: http.StatusBadRequest, msg: msg}
}

var statusTable = []struct {
	err    error
	status int
}{
	{service.ErrInvalidInput, http.StatusBadRequest},
	{service.ErrEmailTaken, http.StatusBadRequest},
	{quota.ErrUnknownPlan, http.StatusBadRequest},
	{service.ErrInvalidCredentials, http.StatusUnauthorized},
	{auth.ErrUnauthenticated, http.StatusUnauthorized},
	{auth.ErrExpired, http.StatusUnauthorized},
	{service.ErrQuotaExceeded, http.StatusForbidden},
	{service.ErrNotFound, http.StatusNotFound},
	{service.ErrDuplicateRecord, http.StatusConflict},
	{service.ErrPlanInUse, http.StatusConflict},
	{service.ErrPlanExists, http.StatusConflict},
	{service.ErrSetupDone, http.StatusConflict},
}

// statusFor maps an error to the response status and the message shown to
// the caller. Unrecognised errors are reported as a bare 500.
func statusFor(err error) (int, string) {
	var he *httpError
	if errors.As(err, &he) {
		return he.status, he.msg
	}
	var pe *provider.Error
	if errors.As(err, &pe) {
		return http.StatusBadGateway, pe.Message
	}
	for _, e := range statusTable {
		if errors.Is(err, e.err) {
			return e.status, err.Error()
		}
	}
	return http.StatusInternalServerError, "Internal server error"
}

func wrap(fn handlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		data, err := fn(c)
		if err != nil {
			status, msg := statusFor(err)
			if status >= http.StatusInternalServerError {
				_ = c.Error(err)
			}
			c.JSON(status, gin.H{"detail": msg})
			return
		}
		switch v := data.(type) {
		case nil:
			c.Status(http.StatusNoContent)
		case created:
			c.JSON(http.StatusCreated, v.v)
		default:
			c.JSON(http.StatusOK, v)
		}
	}
}

// requestContext outlives the client connection and carries the caller IP
// for the activity log.
func requestContext(c *gin.Context) context.Context {
	return activity.WithIP(context.WithoutCancel(c.Request.Context()), c.ClientIP())
}

func bindJSON(c *gin.Context, v any) error {
	if err := c.ShouldBindJSON(v); err != nil {
		return badRequest("Invalid request: " + err.Error())
	}
	return nil
}

// pageQuery caps a page at the admin listing limit.
type pageQuery struct {
	Limit  int `form:"limit,default=50" binding:"min=1,max=1000"`
	Offset int `form:"offset,default=0" binding:"min=0"`
}

func bindPage(c *gin.Context) (pageQuery, error) {
	var q pageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		return q, badRequest("Invalid paging parameters")
	}
	return q, nil
}

func message(msg string) gin.H {
	return gin.H{"message": msg}
}
