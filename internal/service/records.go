package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"subzone/internal/database"
	"subzone/internal/model"
	"subzone/internal/provider"
)

const (
	OwnerListLimit = 100
	AdminListLimit = 1000

	// maxOwnedRecords bounds the cascade when an account is removed.
	maxOwnedRecords = 100000
)

type RecordInput struct {
	Name    string
	Type    string
	Content string
	TTL     int
	Proxied bool
}

// Records runs the record lifecycle: every change goes to the DNS provider
// first and is mirrored locally only once the provider accepted it.
type Records struct {
	store    RecordStore
	accounts AccountStore
	dns      provider.Client
	zone     string
	activity ActivityLogger
	log      logr.Logger
}

func NewRecords(store RecordStore, accounts AccountStore, dns provider.Client, zone string, activity ActivityLogger, log logr.Logger) *Records {
	return &Records{
		store:    store,
		accounts: accounts,
		dns:      dns,
		zone:     zone,
		activity: activity,
		log:      log,
	}
}

// Zone returns the managed zone domain.
func (s *Records) Zone() string {
	return s.zone
}

func validateInput(in *RecordInput) error {
	in.Name = strings.TrimSpace(in.Name)
	in.Content = strings.TrimSpace(in.Content)
	if in.Name == "" {
		return newError(ErrInvalidInput, "Record name is required")
	}
	if !model.ValidRecordType(in.Type) {
		return newError(ErrInvalidInput, "Only A, AAAA, and CNAME records are supported")
	}
	if in.Content == "" {
		return newError(ErrInvalidInput, "Record content is required")
	}
	return validateTTL(in.TTL)
}

func validateTTL(ttl int) error {
	if ttl < model.AutoTTL || ttl > model.MaxTTL {
		return newError(ErrInvalidInput, "TTL must be between %d and %d", model.AutoTTL, model.MaxTTL)
	}
	return nil
}

// Create adds a record owned by owner.
func (s *Records) Create(ctx context.Context, owner *model.Account, in RecordInput) (*model.Record, error) {
	rec, err := s.create(ctx, owner, in)
	if err != nil {
		return nil, err
	}
	s.activity.Log(ctx, owner, "create_record", fmt.Sprintf("%s %s -> %s", rec.FullName, rec.Type, rec.Content))
	return rec, nil
}

// AdminCreate adds a record on behalf of the account ownerID. The owner's
// quota still applies.
func (s *Records) AdminCreate(ctx context.Context, admin *model.Account, ownerID string, in RecordInput) (*model.Record, error) {
	owner, err := s.account(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	rec, err := s.create(ctx, owner, in)
	if err != nil {
		return nil, err
	}
	s.activity.Log(ctx, admin, "admin_create_record",
		fmt.Sprintf("%s %s -> %s for %s", rec.FullName, rec.Type, rec.Content, owner.Email))
	return rec, nil
}

func (s *Records) create(ctx context.Context, owner *model.Account, in RecordInput) (*model.Record, error) {
	if err := validateInput(&in); err != nil {
		return nil, err
	}

	count, err := s.store.CountRecordsByOwner(ctx, owner.ID)
	if err != nil {
		return nil, err
	}
	if count >= owner.RecordLimit {
		return nil, newError(ErrQuotaExceeded,
			"Record limit reached (%d). Upgrade your plan for more records.", owner.RecordLimit)
	}

	fullName := provider.FullName(in.Name, s.zone)
	existing, err := s.store.FindDuplicateRecord(ctx, fullName, in.Type)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, newError(ErrDuplicateRecord, "Record %s (%s) already exists", fullName, in.Type)
	}

	created, err := s.dns.Create(ctx, fullName, in.Type, in.Content, in.TTL, in.Proxied)
	if err != nil {
		return nil, err
	}

	rec := &model.Record{
		ID:         uuid.NewString(),
		ProviderID: created.ID,
		OwnerID:    owner.ID,
		Name:       in.Name,
		FullName:   fullName,
		Type:       in.Type,
		Content:    in.Content,
		TTL:        in.TTL,
		Proxied:    in.Proxied,
	}
	if err := s.store.InsertRecord(ctx, rec); err != nil {
		// The provider already holds the record and nothing removes it.
		s.log.Error(err, "orphaned provider record",
			"providerID", created.ID, "fullName", fullName, "type", in.Type, "owner", owner.ID)
		if errors.Is(err, database.ErrDuplicate) {
			return nil, newError(ErrDuplicateRecord, "Record %s (%s) already exists", fullName, in.Type)
		}
		return nil, err
	}

	s.log.Info("record created", "id", rec.ID, "fullName", fullName, "type", in.Type, "owner", owner.ID)
	return rec, nil
}

// account looks up an account by id. Ids that are not uuids match nothing.
func (s *Records) account(ctx context.Context, id string) (*model.Account, error) {
	if !validID(id) {
		return nil, newError(ErrNotFound, "User not found")
	}
	acct, err := s.accounts.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, newError(ErrNotFound, "User not found")
	}
	return acct, nil
}

func (s *Records) ownedRecord(ctx context.Context, owner *model.Account, id string) (*model.Record, error) {
	if !validID(id) {
		return nil, newError(ErrNotFound, "Record not found")
	}
	rec, err := s.store.GetOwnedRecord(ctx, id, owner.ID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, newError(ErrNotFound, "Record not found")
	}
	return rec, nil
}

func (s *Records) anyRecord(ctx context.Context, id string) (*model.Record, error) {
	if !validID(id) {
		return nil, newError(ErrNotFound, "Record not found")
	}
	rec, err := s.store.GetRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, newError(ErrNotFound, "Record not found")
	}
	return rec, nil
}

// Get returns a record owned by owner.
func (s *Records) Get(ctx context.Context, owner *model.Account, id string) (*model.Record, error) {
	return s.ownedRecord(ctx, owner, id)
}

// Update applies patch to a record owned by owner. Omitted fields keep
// their stored value.
func (s *Records) Update(ctx context.Context, owner *model.Account, id string, patch model.RecordPatch) (*model.Record, error) {
	rec, err := s.ownedRecord(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	if err := s.update(ctx, rec, patch); err != nil {
		return nil, err
	}
	s.activity.Log(ctx, owner, "update_record", fmt.Sprintf("%s %s -> %s", rec.FullName, rec.Type, rec.Content))
	return rec, nil
}

func (s *Records) AdminUpdate(ctx context.Context, admin *model.Account, id string, patch model.RecordPatch) (*model.Record, error) {
	rec, err := s.anyRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.update(ctx, rec, patch); err != nil {
		return nil, err
	}
	s.activity.Log(ctx, admin, "admin_update_record", fmt.Sprintf("%s %s -> %s", rec.FullName, rec.Type, rec.Content))
	return rec, nil
}

// update merges patch into rec and pushes the result to the provider, then
// to the store. rec is modified only after both succeed.
func (s *Records) update(ctx context.Context, rec *model.Record, patch model.RecordPatch) error {
	content, ttl, proxied := rec.Content, rec.TTL, rec.Proxied
	if patch.Content != nil {
		content = strings.TrimSpace(*patch.Content)
		if content == "" {
			return newError(ErrInvalidInput, "Record content is required")
		}
	}
	if patch.TTL != nil {
		if err := validateTTL(*patch.TTL); err != nil {
			return err
		}
		ttl = *patch.TTL
	}
	if patch.Proxied != nil {
		proxied = *patch.Proxied
	}

	if _, err := s.dns.Update(ctx, rec.ProviderID, rec.Type, rec.FullName, content, ttl, proxied); err != nil {
		return err
	}
	if err := s.store.UpdateRecord(ctx, rec.ID, content, ttl, proxied); err != nil {
		s.log.Error(err, "provider record ahead of local copy", "id", rec.ID, "providerID", rec.ProviderID)
		return err
	}

	rec.Content, rec.TTL, rec.Proxied = content, ttl, proxied
	s.log.Info("record updated", "id", rec.ID, "fullName", rec.FullName)
	return nil
}

// Delete removes a record owned by owner. Deleting twice yields ErrNotFound.
func (s *Records) Delete(ctx context.Context, owner *model.Account, id string) error {
	rec, err := s.ownedRecord(ctx, owner, id)
	if err != nil {
		return err
	}
	if err := s.delete(ctx, rec); err != nil {
		return err
	}
	s.activity.Log(ctx, owner, "delete_record", fmt.Sprintf("%s %s", rec.FullName, rec.Type))
	return nil
}

func (s *Records) AdminDelete(ctx context.Context, admin *model.Account, id string) error {
	rec, err := s.anyRecord(ctx, id)
	if err != nil {
		return err
	}
	if err := s.delete(ctx, rec); err != nil {
		return err
	}
	s.activity.Log(ctx, admin, "admin_delete_record", fmt.Sprintf("%s %s", rec.FullName, rec.Type))
	return nil
}

func (s *Records) delete(ctx context.Context, rec *model.Record) error {
	if err := s.dns.Delete(ctx, rec.ProviderID); err != nil {
		return err
	}
	clamped, err := s.store.DeleteRecord(ctx, rec.ID)
	if err != nil {
		s.log.Error(err, "local record left after provider delete", "id", rec.ID, "providerID", rec.ProviderID)
		return err
	}
	if clamped {
		s.log.Info("record count drift", "owner", rec.OwnerID, "reason", "count already zero on delete")
	}
	s.log.Info("record deleted", "id", rec.ID, "fullName", rec.FullName)
	return nil
}

// BulkResult reports a tolerant batch operation.
type BulkResult struct {
	Succeeded []string          `json:"succeeded"`
	Failed    map[string]string `json:"failed"`
}

func newBulkResult() *BulkResult {
	return &BulkResult{Succeeded: []string{}, Failed: map[string]string{}}
}

// AdminBulkDelete deletes every listed record, carrying on past failures.
func (s *Records) AdminBulkDelete(ctx context.Context, admin *model.Account, ids []string) *BulkResult {
	res := newBulkResult()
	for _, id := range ids {
		rec, err := s.anyRecord(ctx, id)
		if err == nil {
			err = s.delete(ctx, rec)
		}
		if err != nil {
			s.log.Error(err, "bulk delete skipped record", "id", id)
			res.Failed[id] = err.Error()
			continue
		}
		res.Succeeded = append(res.Succeeded, id)
	}
	s.activity.Log(ctx, admin, "admin_bulk_delete",
		fmt.Sprintf("%d deleted, %d failed", len(res.Succeeded), len(res.Failed)))
	return res
}

// List returns owner's records, at most OwnerListLimit of them.
func (s *Records) List(ctx context.Context, owner *model.Account) ([]model.Record, error) {
	recs, err := s.store.ListRecordsByOwner(ctx, owner.ID, OwnerListLimit)
	if err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []model.Record{}
	}
	return recs, nil
}

// AdminList pages through all records.
func (s *Records) AdminList(ctx context.Context, limit, offset int) ([]model.Record, int, error) {
	if limit <= 0 || limit > AdminListLimit {
		limit = AdminListLimit
	}
	if offset < 0 {
		offset = 0
	}
	recs, total, err := s.store.ListAllRecords(ctx, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	if recs == nil {
		recs = []model.Record{}
	}
	return recs, total, nil
}

// AccountRemoval summarizes DeleteAccount.
type AccountRemoval struct {
	Records          int `json:"records_deleted"`
	ProviderFailures int `json:"provider_failures"`
}

// DeleteAccount removes an account with all its records. Provider failures
// are logged and skipped so that local cleanup always completes.
func (s *Records) DeleteAccount(ctx context.Context, admin *model.Account, accountID string) (*AccountRemoval, error) {
	acct, err := s.account(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if admin != nil && admin.ID == acct.ID {
		return nil, newError(ErrInvalidInput, "Cannot delete your own account")
	}

	recs, err := s.store.ListRecordsByOwner(ctx, accountID, maxOwnedRecords)
	if err != nil {
		return nil, err
	}

	res := &AccountRemoval{Records: len(recs)}
	for _, rec := range recs {
		if err := s.dns.Delete(ctx, rec.ProviderID); err != nil {
			res.ProviderFailures++
			s.log.Error(err, "orphaned provider record", "providerID", rec.ProviderID,
				"fullName", rec.FullName, "type", rec.Type, "owner", accountID)
		}
	}

	if err := s.accounts.DeleteAccount(ctx, accountID); err != nil {
		return nil, err
	}

	s.log.Info("account deleted", "id", accountID, "records", res.Records, "providerFailures", res.ProviderFailures)
	s.activity.Log(ctx, admin, "delete_user",
		fmt.Sprintf("%s (%d records, %d provider failures)", acct.Email, res.Records, res.ProviderFailures))
	return res, nil
}

// Recount resets the account's record_count to its true record count.
func (s *Records) Recount(ctx context.Context, actor *model.Account, accountID string) (int, error) {
	acct, err := s.account(ctx, accountID)
	if err != nil {
		return 0, err
	}
	count, err := s.store.RecountRecords(ctx, accountID)
	if err != nil {
		return 0, err
	}
	if count != acct.RecordCount {
		s.log.Info("record count drift corrected", "account", accountID, "stored", acct.RecordCount, "actual", count)
	}
	s.activity.Log(ctx, actor, "recount", fmt.Sprintf("%s: %d -> %d", acct.Email, acct.RecordCount, count))
	return count, nil
}

// RecountAll recounts every account and returns how many were corrected.
func (s *Records) RecountAll(ctx context.Context, actor *model.Account) (int, error) {
	n, err := s.store.RecountAllRecords(ctx)
	if err != nil {
		return 0, err
	}
	s.activity.Log(ctx, actor, "recount_all", fmt.Sprintf("%d accounts corrected", n))
	return n, nil
}

// DriftReport lists accounts whose record_count is off.
func (s *Records) DriftReport(ctx context.Context) ([]model.CountDrift, error) {
	drift, err := s.store.RecordCountDrift(ctx)
	if err != nil {
		return nil, err
	}
	if drift == nil {
		drift = []model.CountDrift{}
	}
	return drift, nil
}

// Reconciliation compares the provider zone with the local store.
type Reconciliation struct {
	// ProviderOnly are supported records in the zone with no local owner.
	ProviderOnly []provider.Record `json:"provider_only"`
	// LocalOnly are local records the provider no longer has.
	LocalOnly []model.Record `json:"local_only"`
}

// ReconcileReport reports divergence between provider and store. It never
// changes either side.
func (s *Records) ReconcileReport(ctx context.Context) (*Reconciliation, error) {
	remote, err := s.dns.List(ctx)
	if err != nil {
		return nil, err
	}

	var local []model.Record
	for offset := 0; ; offset += AdminListLimit {
		page, total, err := s.store.ListAllRecords(ctx, AdminListLimit, offset)
		if err != nil {
			return nil, err
		}
		local = append(local, page...)
		if len(page) == 0 || offset+len(page) >= total {
			break
		}
	}

	remoteIDs := make(map[string]struct{}, len(remote))
	for _, r := range remote {
		remoteIDs[r.ID] = struct{}{}
	}
	localIDs := make(map[string]struct{}, len(local))
	for _, r := range local {
		localIDs[r.ProviderID] = struct{}{}
	}

	rep := &Reconciliation{ProviderOnly: []provider.Record{}, LocalOnly: []model.Record{}}
	for _, r := range remote {
		if !model.ValidRecordType(r.Type) {
			continue
		}
		if _, ok := localIDs[r.ID]; !ok {
			rep.ProviderOnly = append(rep.ProviderOnly, r)
			s.log.Info("orphaned provider record", "providerID", r.ID, "fullName", r.Name, "type", r.Type)
		}
	}
	for _, r := range local {
		if _, ok := remoteIDs[r.ProviderID]; !ok {
			rep.LocalOnly = append(rep.LocalOnly, r)
			s.log.Info("local record missing at provider", "id", r.ID, "providerID", r.ProviderID, "fullName", r.FullName)
		}
	}
	return rep, nil
}
