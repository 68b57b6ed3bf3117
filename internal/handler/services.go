package handler

import (
	"context"

	"subzone/internal/bot"
	"subzone/internal/model"
	"subzone/internal/resolve"
	"subzone/internal/service"
)

type RecordService interface {
	Zone() string
	Create(ctx context.Context, owner *model.Account, in service.RecordInput) (*model.Record, error)
	Get(ctx context.Context, owner *model.Account, id string) (*model.Record, error)
	Update(ctx context.Context, owner *model.Account, id string, patch model.RecordPatch) (*model.Record, error)
	Delete(ctx context.Context, owner *model.Account, id string) error
	List(ctx context.Context, owner *model.Account) ([]model.Record, error)
}

type AccountService interface {
	SetupRequired(ctx context.Context) (bool, error)
	Setup(ctx context.Context, email, password, name string) (*service.Session, error)
	Register(ctx context.Context, in service.RegisterInput) (*service.Session, error)
	Login(ctx context.Context, email, password string) (*service.Session, error)
	Referral(ctx context.Context, a *model.Account) (*service.ReferralView, error)
}

type RecordAdmin interface {
	AdminList(ctx context.Context, limit, offset int) ([]model.Record, int, error)
	AdminCreate(ctx context.Context, admin *model.Account, ownerID string, in service.RecordInput) (*model.Record, error)
	AdminUpdate(ctx context.Context, admin *model.Account, id string, patch model.RecordPatch) (*model.Record, error)
	AdminDelete(ctx context.Context, admin *model.Account, id string) error
	AdminBulkDelete(ctx context.Context, admin *model.Account, ids []string) *service.BulkResult
	DeleteAccount(ctx context.Context, admin *model.Account, accountID string) (*service.AccountRemoval, error)
	Recount(ctx context.Context, actor *model.Account, accountID string) (int, error)
	RecountAll(ctx context.Context, actor *model.Account) (int, error)
	DriftReport(ctx context.Context) ([]model.CountDrift, error)
	ReconcileReport(ctx context.Context) (*service.Reconciliation, error)
}

type AccountAdmin interface {
	Get(ctx context.Context, id string) (*model.Account, error)
	List(ctx context.Context, limit, offset int) ([]model.Account, int, error)
	SetPlan(ctx context.Context, admin *model.Account, id, planID string) (*model.Account, error)
	BulkSetPlan(ctx context.Context, admin *model.Account, ids []string, planID string) (*service.BulkResult, error)
	ApplyPlanLimit(ctx context.Context, admin *model.Account, planID string) (int, error)
	ResetPassword(ctx context.Context, admin *model.Account, id, password string) error
	SetRole(ctx context.Context, admin *model.Account, id, role string) (*model.Account, error)
}

type CatalogService interface {
	Plans(ctx context.Context) ([]model.Plan, error)
	CreatePlan(ctx context.Context, admin *model.Account, p model.Plan) (*model.Plan, error)
	UpdatePlan(ctx context.Context, admin *model.Account, id string, p model.Plan) (*model.Plan, error)
	DeletePlan(ctx context.Context, admin *model.Account, id string) error
	Settings(ctx context.Context) (model.Settings, error)
	UpdateSettings(ctx context.Context, admin *model.Account, patch service.SettingsPatch) (model.Settings, error)
	PublicConfig(ctx context.Context) (*service.PublicConfig, error)
}

type ActivityLister interface {
	ListActivity(ctx context.Context, limit, offset int) ([]model.Activity, int, error)
}

type BotStatus interface {
	Status() bot.Status
}

type PropagationChecker interface {
	Check(ctx context.Context, name, recordType, expected string) (*resolve.Result, error)
}
