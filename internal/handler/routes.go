package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"subzone/internal/auth"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type Handlers struct {
	Setup   *SetupHandler
	Auth    *AuthHandler
	Records *RecordHandler
	Zone    *ZoneHandler
	Admin   *AdminHandler
}

// Register mounts the API on r. requireAuth resolves the caller; the
// setup gate keeps every account route closed until the first admin
// exists.
func Register(r gin.IRouter, h Handlers, accounts AccountService, requireAuth gin.HandlerFunc, db Pinger) {
	r.GET("/healthz", Health(db))

	api := r.Group("/api")
	api.GET("/setup", wrap(h.Setup.Status))
	api.POST("/setup", wrap(h.Setup.Setup))
	api.GET("/config", wrap(h.Zone.Config))
	api.GET("/plans", wrap(h.Zone.Plans))
	api.GET("/telegram/status", wrap(h.Zone.TelegramStatus))

	open := api.Group("", RequireSetupComplete(accounts))
	open.POST("/auth/register", wrap(h.Auth.Register))
	open.POST("/auth/login", wrap(h.Auth.Login))

	user := open.Group("", requireAuth)
	user.GET("/auth/me", wrap(h.Auth.Me))
	user.GET("/referral", wrap(h.Auth.Referral))
	user.GET("/dns/records", wrap(h.Records.List))
	user.POST("/dns/records", wrap(h.Records.Create))
	user.PUT("/dns/records/:id", wrap(h.Records.Update))
	user.DELETE("/dns/records/:id", wrap(h.Records.Delete))
	user.GET("/dns/records/:id/check", wrap(h.Records.Check))

	admin := user.Group("/admin", auth.RequireAdmin())
	admin.GET("/users", wrap(h.Admin.ListUsers))
	admin.POST("/users/bulk-plan", wrap(h.Admin.BulkSetPlan))
	admin.GET("/users/:id", wrap(h.Admin.GetUser))
	admin.DELETE("/users/:id", wrap(h.Admin.DeleteUser))
	admin.PUT("/users/:id/plan", wrap(h.Admin.SetPlan))
	admin.PUT("/users/:id/password", wrap(h.Admin.ResetPassword))
	admin.PUT("/users/:id/role", wrap(h.Admin.SetRole))
	admin.POST("/users/:id/recount", wrap(h.Admin.Recount))
	admin.POST("/recount", wrap(h.Admin.RecountAll))
	admin.GET("/drift", wrap(h.Admin.Drift))

	admin.GET("/records", wrap(h.Admin.ListRecords))
	admin.POST("/records", wrap(h.Admin.CreateRecord))
	admin.POST("/records/bulk-delete", wrap(h.Admin.BulkDeleteRecords))
	admin.PUT("/records/:id", wrap(h.Admin.UpdateRecord))
	admin.DELETE("/records/:id", wrap(h.Admin.DeleteRecord))
	admin.GET("/reconcile", wrap(h.Admin.Reconcile))

	admin.GET("/plans", wrap(h.Admin.ListPlans))
	admin.POST("/plans", wrap(h.Admin.CreatePlan))
	admin.PUT("/plans/:id", wrap(h.Admin.UpdatePlan))
	admin.DELETE("/plans/:id", wrap(h.Admin.DeletePlan))
	admin.POST("/plans/:id/apply", wrap(h.Admin.ApplyPlan))

	admin.GET("/settings", wrap(h.Admin.Settings))
	admin.PUT("/settings", wrap(h.Admin.UpdateSettings))
	admin.GET("/activity", wrap(h.Admin.Activity))
	admin.GET("/zones", wrap(h.Zone.Info))
	admin.GET("/bot/status", wrap(h.Zone.BotStatus))
}

func Health(db Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "detail": "database unreachable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
