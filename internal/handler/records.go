package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"subzone/internal/auth"
	"subzone/internal/model"
	"subzone/internal/service"
)

type RecordHandler struct {
	records RecordService
	checker PropagationChecker
}

func NewRecordHandler(records RecordService, checker PropagationChecker) *RecordHandler {
	return &RecordHandler{records: records, checker: checker}
}

type recordRequest struct {
	Name    string `json:"name" binding:"required"`
	Type    string `json:"record_type" binding:"required"`
	Content string `json:"content" binding:"required"`
	TTL     *int   `json:"ttl"`
	Proxied bool   `json:"proxied"`
}

func (r recordRequest) input() service.RecordInput {
	in := service.RecordInput{
		Name:    r.Name,
		Type:    r.Type,
		Content: r.Content,
		TTL:     model.AutoTTL,
		Proxied: r.Proxied,
	}
	if r.TTL != nil {
		in.TTL = *r.TTL
	}
	return in
}

func (h *RecordHandler) List(c *gin.Context) (any, error) {
	recs, err := h.records.List(c.Request.Context(), auth.CurrentAccount(c))
	if err != nil {
		return nil, err
	}
	return gin.H{"records": recs, "count": len(recs)}, nil
}

func (h *RecordHandler) Create(c *gin.Context) (any, error) {
	var req recordRequest
	if err := bindJSON(c, &req); err != nil {
		return nil, err
	}
	rec, err := h.records.Create(requestContext(c), auth.CurrentAccount(c), req.input())
	if err != nil {
		return nil, err
	}
	return created{rec}, nil
}

func (h *RecordHandler) Update(c *gin.Context) (any, error) {
	var patch model.RecordPatch
	if err := bindJSON(c, &patch); err != nil {
		return nil, err
	}
	return h.records.Update(requestContext(c), auth.CurrentAccount(c), c.Param("id"), patch)
}

func (h *RecordHandler) Delete(c *gin.Context) (any, error) {
	if err := h.records.Delete(requestContext(c), auth.CurrentAccount(c), c.Param("id")); err != nil {
		return nil, err
	}
	return message("Record deleted successfully"), nil
}

// Check asks the configured resolver whether the record is visible yet.
func (h *RecordHandler) Check(c *gin.Context) (any, error) {
	ctx := c.Request.Context()
	rec, err := h.records.Get(ctx, auth.CurrentAccount(c), c.Param("id"))
	if err != nil {
		return nil, err
	}
	res, err := h.checker.Check(ctx, rec.FullName, rec.Type, rec.Content)
	if err != nil {
		_ = c.Error(err)
		return nil, &httpError{status: http.StatusBadGateway, msg: fmt.Sprintf("Could not resolve %s", rec.FullName)}
	}
	return res, nil
}
