package service

import (
	"context"

	"subzone/internal/model"
)

type RecordStore interface {
	CountRecordsByOwner(ctx context.Context, ownerID string) (int, error)
	FindDuplicateRecord(ctx context.Context, fullName, recordType string) (*model.Record, error)
	InsertRecord(ctx context.Context, r *model.Record) error
	UpdateRecord(ctx context.Context, id, content string, ttl int, proxied bool) error
	DeleteRecord(ctx context.Context, id string) (clamped bool, err error)
	GetRecord(ctx context.Context, id string) (*model.Record, error)
	GetOwnedRecord(ctx context.Context, id, ownerID string) (*model.Record, error)
	ListRecordsByOwner(ctx context.Context, ownerID string, limit int) ([]model.Record, error)
	ListAllRecords(ctx context.Context, limit, offset int) ([]model.Record, int, error)
	RecountRecords(ctx context.Context, ownerID string) (int, error)
	RecountAllRecords(ctx context.Context) (int, error)
	RecordCountDrift(ctx context.Context) ([]model.CountDrift, error)
}

type AccountStore interface {
	CreateAccount(ctx context.Context, a *model.Account, password string) error
	AuthenticateAccount(ctx context.Context, email, password string) (*model.Account, error)
	GetAccount(ctx context.Context, id string) (*model.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*model.Account, error)
	GetAccountByReferralCode(ctx context.Context, code string) (*model.Account, error)
	GetAccountByTelegram(ctx context.Context, chatID int64) (*model.Account, error)
	ListAccounts(ctx context.Context, limit, offset int) ([]model.Account, int, error)
	CountAccounts(ctx context.Context) (int, error)
	CountAccountsOnPlan(ctx context.Context, planID string) (int, error)
	SetAccountPlan(ctx context.Context, id, plan string, limit int) error
	SetAccountPassword(ctx context.Context, id, password string) error
	SetAccountRole(ctx context.Context, id, role string) error
	LinkTelegram(ctx context.Context, id string, chatID int64) error
	CreditReferrer(ctx context.Context, id string, bonus int) error
	ApplyPlanLimit(ctx context.Context, planID string, limit int) (int, error)
	DeleteAccount(ctx context.Context, id string) error
}

type PlanStore interface {
	ListPlans(ctx context.Context) ([]model.Plan, error)
	GetPlan(ctx context.Context, id string) (*model.Plan, error)
	CreatePlan(ctx context.Context, p *model.Plan) error
	UpdatePlan(ctx context.Context, p *model.Plan) (bool, error)
	DeletePlan(ctx context.Context, id string) (bool, error)
}

type SettingsStore interface {
	GetSettings(ctx context.Context) (model.Settings, error)
	SaveSettings(ctx context.Context, s model.Settings) error
}

// Limits resolves the record limit a plan confers.
type Limits interface {
	LimitFor(ctx context.Context, planID string) (int, error)
}

// ActivityLogger is told about every mutating operation.
type ActivityLogger interface {
	Log(ctx context.Context, actor *model.Account, action, detail string)
}
