package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"subzone/internal/auth"
	"subzone/internal/database"
	"subzone/internal/model"
	"subzone/internal/provider"
)

// memStore is an in-memory stand-in for database.DB, enforcing the same
// unique constraints.
type memStore struct {
	mu       sync.Mutex
	accounts map[string]*model.Account
	records  map[string]*model.Record
	plans    map[string]model.Plan
	settings model.Settings
	seq      int

	// failInsert, when set, is returned by InsertRecord.
	failInsert error
}

// checkID fails the way PostgreSQL does when a uuid column is compared
// against text it cannot parse.
func checkID(id string) error {
	if uuid.Validate(id) != nil {
		return fmt.Errorf("invalid input syntax for type uuid: %q (SQLSTATE 22P02)", id)
	}
	return nil
}

func newMemStore() *memStore {
	return &memStore{
		accounts: map[string]*model.Account{},
		records:  map[string]*model.Record{},
		plans:    map[string]model.Plan{},
		settings: model.DefaultSettings(),
	}
}

func (m *memStore) tick() time.Time {
	m.seq++
	return time.Unix(int64(m.seq), 0)
}

func copyAccount(a *model.Account) *model.Account {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}

func copyRecord(r *model.Record) *model.Record {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

func (m *memStore) sortedRecords(keep func(*model.Record) bool) []model.Record {
	var out []model.Record
	for _, r := range m.records {
		if keep(r) {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Records

func (m *memStore) CountRecordsByOwner(ctx context.Context, ownerID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.records {
		if r.OwnerID == ownerID {
			n++
		}
	}
	return n, nil
}

func (m *memStore) FindDuplicateRecord(ctx context.Context, fullName, recordType string) (*model.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.FullName == fullName && r.Type == recordType {
			return copyRecord(r), nil
		}
	}
	return nil, nil
}

func (m *memStore) InsertRecord(ctx context.Context, r *model.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failInsert != nil {
		return m.failInsert
	}
	for _, ex := range m.records {
		if ex.FullName == r.FullName && ex.Type == r.Type {
			return fmt.Errorf("%w: dns_records_full_name_type_key", database.ErrDuplicate)
		}
	}
	r.CreatedAt = m.tick()
	m.records[r.ID] = copyRecord(r)
	if a := m.accounts[r.OwnerID]; a != nil {
		a.RecordCount++
	}
	return nil
}

func (m *memStore) UpdateRecord(ctx context.Context, id, content string, ttl int, proxied bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r := m.records[id]; r != nil {
		r.Content, r.TTL, r.Proxied = content, ttl, proxied
	}
	return nil
}

func (m *memStore) DeleteRecord(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.records[id]
	if r == nil {
		return false, nil
	}
	delete(m.records, id)
	a := m.accounts[r.OwnerID]
	if a == nil {
		return false, nil
	}
	if a.RecordCount <= 0 {
		a.RecordCount = 0
		return true, nil
	}
	a.RecordCount--
	return false, nil
}

func (m *memStore) GetRecord(ctx context.Context, id string) (*model.Record, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyRecord(m.records[id]), nil
}

func (m *memStore) GetOwnedRecord(ctx context.Context, id, ownerID string) (*model.Record, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.records[id]
	if r == nil || r.OwnerID != ownerID {
		return nil, nil
	}
	return copyRecord(r), nil
}

func (m *memStore) ListRecordsByOwner(ctx context.Context, ownerID string, limit int) ([]model.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.sortedRecords(func(r *model.Record) bool { return r.OwnerID == ownerID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) ListAllRecords(ctx context.Context, limit, offset int) ([]model.Record, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.sortedRecords(func(*model.Record) bool { return true })
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, total, nil
}

func (m *memStore) trueCount(ownerID string) int {
	n := 0
	for _, r := range m.records {
		if r.OwnerID == ownerID {
			n++
		}
	}
	return n
}

func (m *memStore) RecountRecords(ctx context.Context, ownerID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.accounts[ownerID]
	if a == nil {
		return 0, nil
	}
	a.RecordCount = m.trueCount(ownerID)
	return a.RecordCount, nil
}

func (m *memStore) RecountAllRecords(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.accounts {
		if c := m.trueCount(a.ID); c != a.RecordCount {
			a.RecordCount = c
			n++
		}
	}
	return n, nil
}

func (m *memStore) RecordCountDrift(ctx context.Context) ([]model.CountDrift, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.CountDrift
	for _, a := range m.accounts {
		if c := m.trueCount(a.ID); c != a.RecordCount {
			out = append(out, model.CountDrift{AccountID: a.ID, Email: a.Email, Stored: a.RecordCount, Actual: c})
		}
	}
	return out, nil
}

// Accounts

func (m *memStore) CreateAccount(ctx context.Context, a *model.Account, password string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ex := range m.accounts {
		if ex.Email == a.Email || ex.ReferralCode == a.ReferralCode {
			return fmt.Errorf("%w: accounts_email_key", database.ErrDuplicate)
		}
	}
	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
		if err != nil {
			return err
		}
		a.PassHash = string(hash)
	}
	if a.AuthSource == "" {
		a.AuthSource = "local"
	}
	a.CreatedAt = m.tick()
	a.UpdatedAt = a.CreatedAt
	m.accounts[a.ID] = copyAccount(a)
	return nil
}

func (m *memStore) AuthenticateAccount(ctx context.Context, email, password string) (*model.Account, error) {
	a, _ := m.GetAccountByEmail(ctx, email)
	if a == nil || a.PassHash == "" {
		return nil, nil
	}
	if bcrypt.CompareHashAndPassword([]byte(a.PassHash), []byte(password)) != nil {
		return nil, nil
	}
	return a, nil
}

func (m *memStore) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyAccount(m.accounts[id]), nil
}

func (m *memStore) findAccount(match func(*model.Account) bool) *model.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if match(a) {
			return copyAccount(a)
		}
	}
	return nil
}

func (m *memStore) GetAccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	return m.findAccount(func(a *model.Account) bool { return a.Email == email }), nil
}

func (m *memStore) GetAccountByReferralCode(ctx context.Context, code string) (*model.Account, error) {
	return m.findAccount(func(a *model.Account) bool { return a.ReferralCode == code }), nil
}

func (m *memStore) GetAccountByTelegram(ctx context.Context, chatID int64) (*model.Account, error) {
	return m.findAccount(func(a *model.Account) bool { return a.TelegramChatID == chatID }), nil
}

func (m *memStore) ListAccounts(ctx context.Context, limit, offset int) ([]model.Account, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Account
	for _, a := range m.accounts {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	total := len(out)
	if offset >= total {
		return nil, total, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, total, nil
}

func (m *memStore) CountAccounts(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.accounts), nil
}

func (m *memStore) CountAccountsOnPlan(ctx context.Context, planID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.accounts {
		if a.Plan == planID {
			n++
		}
	}
	return n, nil
}

func (m *memStore) mutate(id string, fn func(a *model.Account)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a := m.accounts[id]; a != nil {
		fn(a)
	}
	return nil
}

func (m *memStore) SetAccountPlan(ctx context.Context, id, plan string, limit int) error {
	return m.mutate(id, func(a *model.Account) { a.Plan, a.RecordLimit = plan, limit })
}

func (m *memStore) SetAccountPassword(ctx context.Context, id, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return err
	}
	return m.mutate(id, func(a *model.Account) { a.PassHash = string(hash) })
}

func (m *memStore) SetAccountRole(ctx context.Context, id, role string) error {
	return m.mutate(id, func(a *model.Account) { a.Role = role })
}

func (m *memStore) LinkTelegram(ctx context.Context, id string, chatID int64) error {
	m.mu.Lock()
	for _, a := range m.accounts {
		if a.TelegramChatID == chatID {
			a.TelegramChatID = 0
		}
	}
	m.mu.Unlock()
	return m.mutate(id, func(a *model.Account) { a.TelegramChatID = chatID })
}

func (m *memStore) CreditReferrer(ctx context.Context, id string, bonus int) error {
	return m.mutate(id, func(a *model.Account) {
		a.RecordLimit += bonus
		a.ReferralBonus += bonus
		a.ReferralCount++
	})
}

func (m *memStore) ApplyPlanLimit(ctx context.Context, planID string, limit int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.accounts {
		if a.Plan == planID {
			a.RecordLimit = limit + a.ReferralBonus
			n++
		}
	}
	return n, nil
}

func (m *memStore) DeleteAccount(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for rid, r := range m.records {
		if r.OwnerID == id {
			delete(m.records, rid)
		}
	}
	delete(m.accounts, id)
	return nil
}

// Plans and settings

func (m *memStore) ListPlans(ctx context.Context) ([]model.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Plan
	for _, p := range m.plans {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out, nil
}

func (m *memStore) GetPlan(ctx context.Context, id string) (*model.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plans[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *memStore) CreatePlan(ctx context.Context, p *model.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.plans[p.ID]; ok {
		return fmt.Errorf("%w: plans_pkey", database.ErrDuplicate)
	}
	m.plans[p.ID] = *p
	return nil
}

func (m *memStore) UpdatePlan(ctx context.Context, p *model.Plan) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.plans[p.ID]; !ok {
		return false, nil
	}
	m.plans[p.ID] = *p
	return true, nil
}

func (m *memStore) DeletePlan(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.plans[id]; !ok {
		return false, nil
	}
	delete(m.plans, id)
	return true, nil
}

func (m *memStore) GetSettings(ctx context.Context) (model.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings, nil
}

func (m *memStore) SaveSettings(ctx context.Context, s model.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = s
	return nil
}

// fakeDNS is an in-memory provider.Client.
type fakeDNS struct {
	mu      sync.Mutex
	records map[string]provider.Record
	seq     int
	creates int

	createErr error
	updateErr error
	deleteErr map[string]error

	// beforeCreate runs outside the lock at the start of Create.
	beforeCreate func()
}

func newFakeDNS() *fakeDNS {
	return &fakeDNS{records: map[string]provider.Record{}, deleteErr: map[string]error{}}
}

func (f *fakeDNS) Create(ctx context.Context, name, recordType, content string, ttl int, proxied bool) (provider.Record, error) {
	if f.beforeCreate != nil {
		f.beforeCreate()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return provider.Record{}, f.createErr
	}
	f.seq++
	f.creates++
	rec := provider.Record{
		ID: fmt.Sprintf("cf-%d", f.seq), Name: name, Type: recordType,
		Content: content, TTL: ttl, Proxied: proxied,
	}
	f.records[rec.ID] = rec
	return rec, nil
}

func (f *fakeDNS) Update(ctx context.Context, providerID, recordType, name, content string, ttl int, proxied bool) (provider.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return provider.Record{}, f.updateErr
	}
	rec := provider.Record{ID: providerID, Name: name, Type: recordType, Content: content, TTL: ttl, Proxied: proxied}
	f.records[providerID] = rec
	return rec, nil
}

func (f *fakeDNS) Delete(ctx context.Context, providerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.deleteErr[providerID]; err != nil {
		return err
	}
	if _, ok := f.records[providerID]; !ok {
		return provider.Errorf("delete", 404, "Record does not exist.")
	}
	delete(f.records, providerID)
	return nil
}

func (f *fakeDNS) List(ctx context.Context) ([]provider.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []provider.Record
	for _, r := range f.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeDNS) ZoneName(ctx context.Context) (string, error) {
	return testZone, nil
}

func (f *fakeDNS) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

type activityEntry struct {
	ActorID string
	Action  string
	Detail  string
}

type memActivity struct {
	mu      sync.Mutex
	entries []activityEntry
}

func (m *memActivity) Log(ctx context.Context, actor *model.Account, action, detail string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := activityEntry{Action: action, Detail: detail}
	if actor != nil {
		e.ActorID = actor.ID
	}
	m.entries = append(m.entries, e)
}

func (m *memActivity) actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, e := range m.entries {
		out = append(out, e.Action)
	}
	return out
}

type fakeDirectory struct {
	users map[string]*auth.LDAPResult // email → result
	roles map[string]string           // group → role
	pass  string
}

func (d *fakeDirectory) Authenticate(email, password string) (*auth.LDAPResult, error) {
	res, ok := d.users[email]
	if !ok || password != d.pass {
		return nil, fmt.Errorf("ldap user bind: invalid credentials")
	}
	return res, nil
}

func (d *fakeDirectory) ResolveRole(groups []string) (string, bool) {
	for _, g := range groups {
		if role, ok := d.roles[g]; ok {
			return role, true
		}
	}
	return "", false
}
