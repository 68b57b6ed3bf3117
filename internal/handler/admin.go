package handler

import (
	"github.com/gin-gonic/gin"

	"subzone/internal/auth"
	"subzone/internal/model"
	"subzone/internal/service"
)

type AdminHandler struct {
	accounts AccountAdmin
	records  RecordAdmin
	catalog  CatalogService
	activity ActivityLister
}

func NewAdminHandler(accounts AccountAdmin, records RecordAdmin, catalog CatalogService, activity ActivityLister) *AdminHandler {
	return &AdminHandler{accounts: accounts, records: records, catalog: catalog, activity: activity}
}

type planRequest struct {
	Plan string `json:"plan" binding:"required"`
}

type passwordRequest struct {
	Password string `json:"password" binding:"required"`
}

type roleRequest struct {
	Role string `json:"role" binding:"required,oneof=user admin"`
}

type bulkPlanRequest struct {
	UserIDs []string `json:"user_ids" binding:"required,min=1"`
	Plan    string   `json:"plan" binding:"required"`
}

type adminRecordRequest struct {
	UserID string `json:"user_id" binding:"required"`
	recordRequest
}

type bulkDeleteRequest struct {
	RecordIDs []string `json:"record_ids" binding:"required,min=1"`
}

// Users

func (h *AdminHandler) ListUsers(c *gin.Context) (any, error) {
	page, err := bindPage(c)
	if err != nil {
		return nil, err
	}
	users, total, err := h.accounts.List(c.Request.Context(), page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	return gin.H{"users": users, "total": total}, nil
}

func (h *AdminHandler) GetUser(c *gin.Context) (any, error) {
	return h.accounts.Get(c.Request.Context(), c.Param("id"))
}

// DeleteUser removes the account together with its records, provider side
// first.
func (h *AdminHandler) DeleteUser(c *gin.Context) (any, error) {
	return h.records.DeleteAccount(requestContext(c), auth.CurrentAccount(c), c.Param("id"))
}

func (h *AdminHandler) SetPlan(c *gin.Context) (any, error) {
	var req planRequest
	if err := bindJSON(c, &req); err != nil {
		return nil, err
	}
	return h.accounts.SetPlan(requestContext(c), auth.CurrentAccount(c), c.Param("id"), req.Plan)
}

func (h *AdminHandler) ResetPassword(c *gin.Context) (any, error) {
	var req passwordRequest
	if err := bindJSON(c, &req); err != nil {
		return nil, err
	}
	if err := h.accounts.ResetPassword(requestContext(c), auth.CurrentAccount(c), c.Param("id"), req.Password); err != nil {
		return nil, err
	}
	return message("Password updated"), nil
}

func (h *AdminHandler) SetRole(c *gin.Context) (any, error) {
	var req roleRequest
	if err := bindJSON(c, &req); err != nil {
		return nil, err
	}
	return h.accounts.SetRole(requestContext(c), auth.CurrentAccount(c), c.Param("id"), req.Role)
}

func (h *AdminHandler) Recount(c *gin.Context) (any, error) {
	n, err := h.records.Recount(requestContext(c), auth.CurrentAccount(c), c.Param("id"))
	if err != nil {
		return nil, err
	}
	return gin.H{"record_count": n}, nil
}

func (h *AdminHandler) BulkSetPlan(c *gin.Context) (any, error) {
	var req bulkPlanRequest
	if err := bindJSON(c, &req); err != nil {
		return nil, err
	}
	return h.accounts.BulkSetPlan(requestContext(c), auth.CurrentAccount(c), req.UserIDs, req.Plan)
}

func (h *AdminHandler) RecountAll(c *gin.Context) (any, error) {
	n, err := h.records.RecountAll(requestContext(c), auth.CurrentAccount(c))
	if err != nil {
		return nil, err
	}
	return gin.H{"corrected": n}, nil
}

func (h *AdminHandler) Drift(c *gin.Context) (any, error) {
	drift, err := h.records.DriftReport(c.Request.Context())
	if err != nil {
		return nil, err
	}
	return gin.H{"drift": drift}, nil
}

// Records

func (h *AdminHandler) ListRecords(c *gin.Context) (any, error) {
	page, err := bindPage(c)
	if err != nil {
		return nil, err
	}
	recs, total, err := h.records.AdminList(c.Request.Context(), page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	return gin.H{"records": recs, "total": total}, nil
}

func (h *AdminHandler) CreateRecord(c *gin.Context) (any, error) {
	var req adminRecordRequest
	if err := bindJSON(c, &req); err != nil {
		return nil, err
	}
	rec, err := h.records.AdminCreate(requestContext(c), auth.CurrentAccount(c), req.UserID, req.input())
	if err != nil {
		return nil, err
	}
	return created{rec}, nil
}

func (h *AdminHandler) UpdateRecord(c *gin.Context) (any, error) {
	var patch model.RecordPatch
	if err := bindJSON(c, &patch); err != nil {
		return nil, err
	}
	return h.records.AdminUpdate(requestContext(c), auth.CurrentAccount(c), c.Param("id"), patch)
}

func (h *AdminHandler) DeleteRecord(c *gin.Context) (any, error) {
	if err := h.records.AdminDelete(requestContext(c), auth.CurrentAccount(c), c.Param("id")); err != nil {
		return nil, err
	}
	return message("Record deleted successfully"), nil
}

func (h *AdminHandler) BulkDeleteRecords(c *gin.Context) (any, error) {
	var req bulkDeleteRequest
	if err := bindJSON(c, &req); err != nil {
		return nil, err
	}
	return h.records.AdminBulkDelete(requestContext(c), auth.CurrentAccount(c), req.RecordIDs), nil
}

func (h *AdminHandler) Reconcile(c *gin.Context) (any, error) {
	return h.records.ReconcileReport(c.Request.Context())
}

// Plans

func (h *AdminHandler) ListPlans(c *gin.Context) (any, error) {
	plans, err := h.catalog.Plans(c.Request.Context())
	if err != nil {
		return nil, err
	}
	return gin.H{"plans": plans}, nil
}

func (h *AdminHandler) CreatePlan(c *gin.Context) (any, error) {
	var p model.Plan
	if err := bindJSON(c, &p); err != nil {
		return nil, err
	}
	plan, err := h.catalog.CreatePlan(requestContext(c), auth.CurrentAccount(c), p)
	if err != nil {
		return nil, err
	}
	return created{plan}, nil
}

func (h *AdminHandler) UpdatePlan(c *gin.Context) (any, error) {
	var p model.Plan
	if err := bindJSON(c, &p); err != nil {
		return nil, err
	}
	return h.catalog.UpdatePlan(requestContext(c), auth.CurrentAccount(c), c.Param("id"), p)
}

func (h *AdminHandler) DeletePlan(c *gin.Context) (any, error) {
	if err := h.catalog.DeletePlan(requestContext(c), auth.CurrentAccount(c), c.Param("id")); err != nil {
		return nil, err
	}
	return message("Plan deleted"), nil
}

// ApplyPlan pushes the plan's current limit to every account on it.
func (h *AdminHandler) ApplyPlan(c *gin.Context) (any, error) {
	n, err := h.accounts.ApplyPlanLimit(requestContext(c), auth.CurrentAccount(c), c.Param("id"))
	if err != nil {
		return nil, err
	}
	return gin.H{"updated": n}, nil
}

// Settings and activity

func (h *AdminHandler) Settings(c *gin.Context) (any, error) {
	return h.catalog.Settings(c.Request.Context())
}

func (h *AdminHandler) UpdateSettings(c *gin.Context) (any, error) {
	var patch service.SettingsPatch
	if err := bindJSON(c, &patch); err != nil {
		return nil, err
	}
	return h.catalog.UpdateSettings(requestContext(c), auth.CurrentAccount(c), patch)
}

func (h *AdminHandler) Activity(c *gin.Context) (any, error) {
	page, err := bindPage(c)
	if err != nil {
		return nil, err
	}
	entries, total, err := h.activity.ListActivity(c.Request.Context(), page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []model.Activity{}
	}
	return gin.H{"activity": entries, "total": total}, nil
}
