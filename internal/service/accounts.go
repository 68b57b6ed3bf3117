package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"subzone/internal/auth"
	"subzone/internal/database"
	"subzone/internal/model"
	"subzone/internal/quota"
)

const (
	DefaultPlan = "free"

	minPasswordLen = 6
	minNameLen     = 2

	referralCodeLen      = 8
	referralCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	referralCodeAttempts = 5
)

// Directory is an external identity source consulted before local
// passwords.
type Directory interface {
	Authenticate(email, password string) (*auth.LDAPResult, error)
	ResolveRole(groups []string) (string, bool)
}

type TokenIssuer interface {
	Issue(userID, email string) (string, error)
}

// Session is what a successful login or registration returns.
type Session struct {
	Token   string         `json:"token"`
	Account *model.Account `json:"user"`
}

type RegisterInput struct {
	Email        string
	Password     string
	Name         string
	ReferralCode string
}

type ReferralView struct {
	Code           string `json:"referral_code"`
	Count          int    `json:"referral_count"`
	Bonus          int    `json:"referral_bonus"`
	BonusPerInvite int    `json:"bonus_per_invite"`
}

type Accounts struct {
	store    AccountStore
	settings SettingsStore
	limits   Limits
	tokens   TokenIssuer
	dir      Directory
	activity ActivityLogger
	log      logr.Logger
}

func NewAccounts(store AccountStore, settings SettingsStore, limits Limits, tokens TokenIssuer, activity ActivityLogger, log logr.Logger) *Accounts {
	return &Accounts{
		store:    store,
		settings: settings,
		limits:   limits,
		tokens:   tokens,
		activity: activity,
		log:      log,
	}
}

// WithDirectory makes Login try dir before local passwords.
func (s *Accounts) WithDirectory(dir Directory) *Accounts {
	s.dir = dir
	return s
}

func validateCredentials(email, password string) error {
	if !strings.Contains(email, "@") || strings.ContainsAny(email, " \t\n") {
		return newError(ErrInvalidInput, "A valid email address is required")
	}
	if len(password) < minPasswordLen {
		return newError(ErrInvalidInput, "Password must be at least %d characters", minPasswordLen)
	}
	return nil
}

func validateName(name string) error {
	if len([]rune(name)) < minNameLen {
		return newError(ErrInvalidInput, "Name must be at least %d characters", minNameLen)
	}
	return nil
}

// freeLimit is the record limit of a newly registered account.
func (s *Accounts) freeLimit(ctx context.Context) (int, error) {
	st, err := s.settings.GetSettings(ctx)
	if err != nil {
		return 0, err
	}
	if st.FreeRecordLimit > 0 {
		return st.FreeRecordLimit, nil
	}
	return s.limits.LimitFor(ctx, DefaultPlan)
}

func (s *Accounts) newReferralCode(ctx context.Context) (string, error) {
	buf := make([]byte, referralCodeLen)
	for range referralCodeAttempts {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for i, b := range buf {
			buf[i] = referralCodeAlphabet[int(b)%len(referralCodeAlphabet)]
		}
		code := string(buf)
		taken, err := s.store.GetAccountByReferralCode(ctx, code)
		if err != nil {
			return "", err
		}
		if taken == nil {
			return code, nil
		}
	}
	return "", fmt.Errorf("no free referral code after %d attempts", referralCodeAttempts)
}

func (s *Accounts) session(a *model.Account) (*Session, error) {
	token, err := s.tokens.Issue(a.ID, a.Email)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, Account: a}, nil
}

// Register creates a free account. A known referral code credits its owner
// before the new account is written; an unknown one is ignored.
func (s *Accounts) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	in.Email = strings.TrimSpace(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	in.ReferralCode = strings.ToUpper(strings.TrimSpace(in.ReferralCode))
	if err := validateCredentials(in.Email, in.Password); err != nil {
		return nil, err
	}
	if err := validateName(in.Name); err != nil {
		return nil, err
	}

	existing, err := s.store.GetAccountByEmail(ctx, in.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, newError(ErrEmailTaken, "Email already registered")
	}

	limit, err := s.freeLimit(ctx)
	if err != nil {
		return nil, err
	}
	code, err := s.newReferralCode(ctx)
	if err != nil {
		return nil, err
	}

	acct := &model.Account{
		ID:           uuid.NewString(),
		Email:        in.Email,
		Name:         in.Name,
		Plan:         DefaultPlan,
		Role:         model.RoleUser,
		RecordLimit:  limit,
		ReferralCode: code,
	}

	if in.ReferralCode != "" {
		referrer, err := s.creditReferrer(ctx, in.ReferralCode)
		if err != nil {
			return nil, err
		}
		if referrer != nil {
			acct.ReferredBy = referrer.ID
		}
	}

	if err := s.store.CreateAccount(ctx, acct, in.Password); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return nil, newError(ErrEmailTaken, "Email already registered")
		}
		return nil, err
	}

	s.log.Info("account registered", "id", acct.ID, "email", acct.Email, "referredBy", acct.ReferredBy)
	s.activity.Log(ctx, acct, "register", acct.Email)
	return s.session(acct)
}

func (s *Accounts) creditReferrer(ctx context.Context, code string) (*model.Account, error) {
	referrer, err := s.store.GetAccountByReferralCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if referrer == nil {
		s.log.Info("unknown referral code ignored", "code", code)
		return nil, nil
	}

	st, err := s.settings.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	bonus := max(st.ReferralBonus, 0)
	if err := s.store.CreditReferrer(ctx, referrer.ID, bonus); err != nil {
		return nil, err
	}
	s.log.Info("referral credited", "referrer", referrer.ID, "bonus", bonus)
	return referrer, nil
}

// Login checks credentials against the directory first when one is
// configured, then against the local password hash.
func (s *Accounts) Login(ctx context.Context, email, password string) (*Session, error) {
	acct, err := s.authenticate(ctx, strings.TrimSpace(email), password)
	if err != nil {
		return nil, err
	}
	s.activity.Log(ctx, acct, "login", acct.AuthSource)
	return s.session(acct)
}

func (s *Accounts) authenticate(ctx context.Context, email, password string) (*model.Account, error) {
	if s.dir != nil {
		res, err := s.dir.Authenticate(email, password)
		if err == nil {
			return s.provisionDirectoryAccount(ctx, res)
		}
		s.log.V(1).Info("directory login failed, trying local", "email", email, "error", err.Error())
	}

	acct, err := s.store.AuthenticateAccount(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, newError(ErrInvalidCredentials, "Invalid email or password")
	}
	return acct, nil
}

func (s *Accounts) provisionDirectoryAccount(ctx context.Context, res *auth.LDAPResult) (*model.Account, error) {
	role, ok := s.dir.ResolveRole(res.Groups)
	if !ok {
		s.log.Info("directory user not in any mapped group", "email", res.Email)
		return nil, newError(ErrInvalidCredentials, "Invalid email or password")
	}

	acct, err := s.store.GetAccountByEmail(ctx, res.Email)
	if err != nil {
		return nil, err
	}
	if acct != nil {
		if acct.Role != role {
			if err := s.store.SetAccountRole(ctx, acct.ID, role); err != nil {
				return nil, err
			}
			acct.Role = role
		}
		return acct, nil
	}

	limit, err := s.freeLimit(ctx)
	if err != nil {
		return nil, err
	}
	code, err := s.newReferralCode(ctx)
	if err != nil {
		return nil, err
	}
	name := res.Name
	if name == "" {
		name = res.Email
	}
	acct = &model.Account{
		ID:           uuid.NewString(),
		Email:        res.Email,
		Name:         name,
		Plan:         DefaultPlan,
		Role:         role,
		RecordLimit:  limit,
		ReferralCode: code,
		AuthSource:   "ldap",
	}
	if err := s.store.CreateAccount(ctx, acct, ""); err != nil {
		return nil, err
	}
	s.log.Info("provisioned directory account", "email", acct.Email, "role", role)
	return acct, nil
}

// SetupRequired reports whether no account exists yet.
func (s *Accounts) SetupRequired(ctx context.Context) (bool, error) {
	n, err := s.store.CountAccounts(ctx)
	return n == 0, err
}

// Setup creates the first account as an admin. It fails once any account
// exists.
func (s *Accounts) Setup(ctx context.Context, email, password, name string) (*Session, error) {
	required, err := s.SetupRequired(ctx)
	if err != nil {
		return nil, err
	}
	if !required {
		return nil, newError(ErrSetupDone, "Setup already completed")
	}

	email, name = strings.TrimSpace(email), strings.TrimSpace(name)
	if err := validateCredentials(email, password); err != nil {
		return nil, err
	}
	if err := validateName(name); err != nil {
		return nil, err
	}

	limit, err := s.freeLimit(ctx)
	if err != nil {
		return nil, err
	}
	code, err := s.newReferralCode(ctx)
	if err != nil {
		return nil, err
	}
	acct := &model.Account{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		Plan:         DefaultPlan,
		Role:         model.RoleAdmin,
		RecordLimit:  limit,
		ReferralCode: code,
	}
	if err := s.store.CreateAccount(ctx, acct, password); err != nil {
		return nil, err
	}

	s.log.Info("initial admin created", "email", email)
	s.activity.Log(ctx, acct, "setup", email)
	return s.session(acct)
}

func (s *Accounts) Referral(ctx context.Context, a *model.Account) (*ReferralView, error) {
	st, err := s.settings.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	return &ReferralView{
		Code:           a.ReferralCode,
		Count:          a.ReferralCount,
		Bonus:          a.ReferralBonus,
		BonusPerInvite: st.ReferralBonus,
	}, nil
}

func (s *Accounts) Get(ctx context.Context, id string) (*model.Account, error) {
	if !validID(id) {
		return nil, newError(ErrNotFound, "User not found")
	}
	a, err := s.store.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, newError(ErrNotFound, "User not found")
	}
	return a, nil
}

func (s *Accounts) List(ctx context.Context, limit, offset int) ([]model.Account, int, error) {
	if limit <= 0 || limit > AdminListLimit {
		limit = AdminListLimit
	}
	if offset < 0 {
		offset = 0
	}
	accounts, total, err := s.store.ListAccounts(ctx, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	if accounts == nil {
		accounts = []model.Account{}
	}
	return accounts, total, nil
}

func (s *Accounts) planLimit(ctx context.Context, planID string) (int, error) {
	limit, err := s.limits.LimitFor(ctx, planID)
	if errors.Is(err, quota.ErrUnknownPlan) {
		return 0, newError(ErrInvalidInput, "Unknown plan %q", planID)
	}
	return limit, err
}

// SetPlan moves an account to planID. Its record_limit becomes the plan
// limit plus the referral bonus it has earned.
func (s *Accounts) SetPlan(ctx context.Context, admin *model.Account, id, planID string) (*model.Account, error) {
	limit, err := s.planLimit(ctx, planID)
	if err != nil {
		return nil, err
	}
	acct, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.setPlan(ctx, acct, planID, limit); err != nil {
		return nil, err
	}
	s.activity.Log(ctx, admin, "set_plan", fmt.Sprintf("%s -> %s (%d)", acct.Email, planID, acct.RecordLimit))
	return acct, nil
}

func (s *Accounts) setPlan(ctx context.Context, acct *model.Account, planID string, limit int) error {
	effective := limit + acct.ReferralBonus
	if err := s.store.SetAccountPlan(ctx, acct.ID, planID, effective); err != nil {
		return err
	}
	acct.Plan, acct.RecordLimit = planID, effective
	return nil
}

// BulkSetPlan applies SetPlan to every id, carrying on past failures.
func (s *Accounts) BulkSetPlan(ctx context.Context, admin *model.Account, ids []string, planID string) (*BulkResult, error) {
	limit, err := s.planLimit(ctx, planID)
	if err != nil {
		return nil, err
	}

	res := newBulkResult()
	for _, id := range ids {
		acct, err := s.Get(ctx, id)
		if err == nil {
			err = s.setPlan(ctx, acct, planID, limit)
		}
		if err != nil {
			s.log.Error(err, "bulk plan change skipped account", "id", id)
			res.Failed[id] = err.Error()
			continue
		}
		res.Succeeded = append(res.Succeeded, id)
	}
	s.activity.Log(ctx, admin, "bulk_set_plan",
		fmt.Sprintf("%s: %d changed, %d failed", planID, len(res.Succeeded), len(res.Failed)))
	return res, nil
}

// ApplyPlanLimit pushes the current limit of planID to every account on
// it. Nothing else propagates plan limit changes.
func (s *Accounts) ApplyPlanLimit(ctx context.Context, admin *model.Account, planID string) (int, error) {
	limit, err := s.planLimit(ctx, planID)
	if err != nil {
		return 0, err
	}
	n, err := s.store.ApplyPlanLimit(ctx, planID, limit)
	if err != nil {
		return 0, err
	}
	s.log.Info("plan limit applied", "plan", planID, "limit", limit, "accounts", n)
	s.activity.Log(ctx, admin, "apply_plan_limit", fmt.Sprintf("%s: %d accounts", planID, n))
	return n, nil
}

func (s *Accounts) ResetPassword(ctx context.Context, admin *model.Account, id, password string) error {
	if len(password) < minPasswordLen {
		return newError(ErrInvalidInput, "Password must be at least %d characters", minPasswordLen)
	}
	acct, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.SetAccountPassword(ctx, id, password); err != nil {
		return err
	}
	s.activity.Log(ctx, admin, "reset_password", acct.Email)
	return nil
}

func (s *Accounts) SetRole(ctx context.Context, admin *model.Account, id, role string) (*model.Account, error) {
	if role != model.RoleUser && role != model.RoleAdmin {
		return nil, newError(ErrInvalidInput, "Role must be %q or %q", model.RoleUser, model.RoleAdmin)
	}
	if admin != nil && admin.ID == id && role != model.RoleAdmin {
		return nil, newError(ErrInvalidInput, "Cannot remove your own admin role")
	}
	acct, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetAccountRole(ctx, id, role); err != nil {
		return nil, err
	}
	acct.Role = role
	s.activity.Log(ctx, admin, "set_role", fmt.Sprintf("%s -> %s", acct.Email, role))
	return acct, nil
}

// LinkTelegram ties chatID to the account owning the credentials.
func (s *Accounts) LinkTelegram(ctx context.Context, email, password string, chatID int64) (*model.Account, error) {
	acct, err := s.authenticate(ctx, strings.TrimSpace(email), password)
	if err != nil {
		return nil, err
	}
	if err := s.store.LinkTelegram(ctx, acct.ID, chatID); err != nil {
		return nil, err
	}
	acct.TelegramChatID = chatID
	s.activity.Log(ctx, acct, "link_telegram", "")
	return acct, nil
}

// ByTelegram returns the account linked to chatID, or nil.
func (s *Accounts) ByTelegram(ctx context.Context, chatID int64) (*model.Account, error) {
	return s.store.GetAccountByTelegram(ctx, chatID)
}
