package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-logr/logr"

	"subzone/internal/database"
	"subzone/internal/model"
)

var planIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,31}$`)

type Invalidator interface {
	Invalidate()
}

// Catalog manages plans and the global settings document.
type Catalog struct {
	plans    PlanStore
	accounts AccountStore
	settings SettingsStore
	cache    Invalidator
	zone     string
	activity ActivityLogger
	log      logr.Logger
}

func NewCatalog(plans PlanStore, accounts AccountStore, settings SettingsStore, cache Invalidator, zone string, activity ActivityLogger, log logr.Logger) *Catalog {
	return &Catalog{
		plans:    plans,
		accounts: accounts,
		settings: settings,
		cache:    cache,
		zone:     zone,
		activity: activity,
		log:      log,
	}
}

func (s *Catalog) Plans(ctx context.Context) ([]model.Plan, error) {
	plans, err := s.plans.ListPlans(ctx)
	if err != nil {
		return nil, err
	}
	if plans == nil {
		plans = []model.Plan{}
	}
	return plans, nil
}

func validatePlan(p *model.Plan) error {
	p.ID = strings.TrimSpace(p.ID)
	p.Name = strings.TrimSpace(p.Name)
	if !planIDPattern.MatchString(p.ID) {
		return newError(ErrInvalidInput, "Plan id must be lowercase letters, digits, '-' or '_'")
	}
	if p.Name == "" {
		return newError(ErrInvalidInput, "Plan name is required")
	}
	if p.RecordLimit < 0 {
		return newError(ErrInvalidInput, "Record limit must not be negative")
	}
	if p.Features == nil {
		p.Features = []string{}
	}
	return nil
}

func (s *Catalog) CreatePlan(ctx context.Context, admin *model.Account, p model.Plan) (*model.Plan, error) {
	if err := validatePlan(&p); err != nil {
		return nil, err
	}
	if err := s.plans.CreatePlan(ctx, &p); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return nil, newError(ErrPlanExists, "Plan %s already exists", p.ID)
		}
		return nil, err
	}
	s.cache.Invalidate()
	s.activity.Log(ctx, admin, "create_plan", fmt.Sprintf("%s (%d records)", p.ID, p.RecordLimit))
	return &p, nil
}

// UpdatePlan replaces plan id. Accounts already on it keep their limit
// until ApplyPlanLimit is run.
func (s *Catalog) UpdatePlan(ctx context.Context, admin *model.Account, id string, p model.Plan) (*model.Plan, error) {
	p.ID = id
	if err := validatePlan(&p); err != nil {
		return nil, err
	}
	ok, err := s.plans.UpdatePlan(ctx, &p)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, newError(ErrNotFound, "Plan not found")
	}
	s.cache.Invalidate()
	s.activity.Log(ctx, admin, "update_plan", fmt.Sprintf("%s (%d records)", p.ID, p.RecordLimit))
	return &p, nil
}

func (s *Catalog) DeletePlan(ctx context.Context, admin *model.Account, id string) error {
	n, err := s.accounts.CountAccountsOnPlan(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return newError(ErrPlanInUse, "Plan %s is assigned to %d accounts", id, n)
	}
	ok, err := s.plans.DeletePlan(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return newError(ErrNotFound, "Plan not found")
	}
	s.cache.Invalidate()
	s.activity.Log(ctx, admin, "delete_plan", id)
	return nil
}

func (s *Catalog) Settings(ctx context.Context) (model.Settings, error) {
	return s.settings.GetSettings(ctx)
}

// SettingsPatch holds the settings fields to change; nil leaves a field
// as it is.
type SettingsPatch struct {
	TelegramID       *string `json:"telegram_id"`
	TelegramURL      *string `json:"telegram_url"`
	ContactMessageEN *string `json:"contact_message_en"`
	ContactMessageFA *string `json:"contact_message_fa"`
	ReferralBonus    *int    `json:"referral_bonus_per_invite"`
	FreeRecordLimit  *int    `json:"free_record_limit"`
}

func (s *Catalog) UpdateSettings(ctx context.Context, admin *model.Account, patch SettingsPatch) (model.Settings, error) {
	if patch.ReferralBonus != nil && *patch.ReferralBonus < 0 {
		return model.Settings{}, newError(ErrInvalidInput, "Referral bonus must not be negative")
	}
	if patch.FreeRecordLimit != nil && *patch.FreeRecordLimit < 0 {
		return model.Settings{}, newError(ErrInvalidInput, "Free record limit must not be negative")
	}

	st, err := s.settings.GetSettings(ctx)
	if err != nil {
		return model.Settings{}, err
	}
	setIf(&st.TelegramID, patch.TelegramID)
	setIf(&st.TelegramURL, patch.TelegramURL)
	setIf(&st.ContactMessageEN, patch.ContactMessageEN)
	setIf(&st.ContactMessageFA, patch.ContactMessageFA)
	setIf(&st.ReferralBonus, patch.ReferralBonus)
	setIf(&st.FreeRecordLimit, patch.FreeRecordLimit)

	if err := s.settings.SaveSettings(ctx, st); err != nil {
		return model.Settings{}, err
	}
	s.activity.Log(ctx, admin, "update_settings", "")
	return st, nil
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// PublicConfig is served to unauthenticated clients.
type PublicConfig struct {
	Domain           string   `json:"domain"`
	RecordTypes      []string `json:"record_types"`
	TelegramID       string   `json:"telegram_id"`
	TelegramURL      string   `json:"telegram_url"`
	ContactMessageEN string   `json:"contact_message_en"`
	ContactMessageFA string   `json:"contact_message_fa"`
	ReferralBonus    int      `json:"referral_bonus_per_invite"`
}

func (s *Catalog) PublicConfig(ctx context.Context) (*PublicConfig, error) {
	st, err := s.settings.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	return &PublicConfig{
		Domain:           s.zone,
		RecordTypes:      model.RecordTypes,
		TelegramID:       st.TelegramID,
		TelegramURL:      st.TelegramURL,
		ContactMessageEN: st.ContactMessageEN,
		ContactMessageFA: st.ContactMessageFA,
		ReferralBonus:    st.ReferralBonus,
	}, nil
}
