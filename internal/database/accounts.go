package database

import (
	"context"
	"database/sql"

	"golang.org/x/crypto/bcrypt"

	"subzone/internal/model"
)

const bcryptCost = 12

const accountColumns = `id, email, name, pass_hash, plan, role, record_count, record_limit,
	referral_code, referred_by, referral_count, referral_bonus, auth_source, telegram_chat_id,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*model.Account, error) {
	a := &model.Account{}
	var referredBy sql.NullString
	var chatID sql.NullInt64
	err := row.Scan(&a.ID, &a.Email, &a.Name, &a.PassHash, &a.Plan, &a.Role, &a.RecordCount, &a.RecordLimit,
		&a.ReferralCode, &referredBy, &a.ReferralCount, &a.ReferralBonus, &a.AuthSource, &chatID,
		&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.ReferredBy = referredBy.String
	a.TelegramChatID = chatID.Int64
	return a, nil
}

func (db *DB) getAccountWhere(ctx context.Context, where string, arg any) (*model.Account, error) {
	row := db.conn.QueryRowContext(ctx, "SELECT "+accountColumns+" FROM accounts WHERE "+where, arg)
	a, err := scanAccount(row)
	if noRows(err) {
		return nil, nil
	}
	return a, err
}

func (db *DB) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	return db.getAccountWhere(ctx, "id = $1", id)
}

func (db *DB) GetAccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	return db.getAccountWhere(ctx, "email = $1", email)
}

func (db *DB) GetAccountByReferralCode(ctx context.Context, code string) (*model.Account, error) {
	return db.getAccountWhere(ctx, "referral_code = $1", code)
}

func (db *DB) GetAccountByTelegram(ctx context.Context, chatID int64) (*model.Account, error) {
	return db.getAccountWhere(ctx, "telegram_chat_id = $1", chatID)
}

func (db *DB) ListAccounts(ctx context.Context, limit, offset int) ([]model.Account, int, error) {
	var total int
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM accounts").Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+accountColumns+" FROM accounts ORDER BY created_at DESC LIMIT $1 OFFSET $2", limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var accounts []model.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, 0, err
		}
		accounts = append(accounts, *a)
	}
	return accounts, total, rows.Err()
}

func (db *DB) CountAccounts(ctx context.Context) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM accounts").Scan(&count)
	return count, err
}

func (db *DB) CountAccountsOnPlan(ctx context.Context, planID string) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM accounts WHERE plan = $1", planID).Scan(&count)
	return count, err
}

// CreateAccount inserts a. A non-empty password is hashed with bcrypt;
// LDAP accounts are stored without one.
func (db *DB) CreateAccount(ctx context.Context, a *model.Account, password string) error {
	hash := ""
	if password != "" {
		b, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
		if err != nil {
			return err
		}
		hash = string(b)
	}
	if a.AuthSource == "" {
		a.AuthSource = "local"
	}

	var referredBy any
	if a.ReferredBy != "" {
		referredBy = a.ReferredBy
	}

	err := db.conn.QueryRowContext(ctx,
		`INSERT INTO accounts (id, email, name, pass_hash, plan, role, record_limit, referral_code, referred_by, auth_source)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING created_at, updated_at`,
		a.ID, a.Email, a.Name, hash, a.Plan, a.Role, a.RecordLimit, a.ReferralCode, referredBy, a.AuthSource,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return uniqueViolation(err)
	}
	a.PassHash = hash
	return nil
}

// AuthenticateAccount returns the account when password matches its hash,
// nil otherwise.
func (db *DB) AuthenticateAccount(ctx context.Context, email, password string) (*model.Account, error) {
	a, err := db.GetAccountByEmail(ctx, email)
	if err != nil || a == nil || a.PassHash == "" {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.PassHash), []byte(password)); err != nil {
		return nil, nil
	}
	return a, nil
}

func (db *DB) SetAccountPassword(ctx context.Context, id, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return err
	}
	_, err = db.conn.ExecContext(ctx, "UPDATE accounts SET pass_hash = $1, updated_at = NOW() WHERE id = $2",
		string(hash), id)
	return err
}

func (db *DB) SetAccountPlan(ctx context.Context, id, plan string, limit int) error {
	_, err := db.conn.ExecContext(ctx,
		"UPDATE accounts SET plan = $1, record_limit = $2, updated_at = NOW() WHERE id = $3",
		plan, limit, id)
	return err
}

func (db *DB) SetAccountRole(ctx context.Context, id, role string) error {
	_, err := db.conn.ExecContext(ctx, "UPDATE accounts SET role = $1, updated_at = NOW() WHERE id = $2", role, id)
	return err
}

func (db *DB) LinkTelegram(ctx context.Context, id string, chatID int64) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		// A chat follows the last account linked to it.
		if _, err := tx.ExecContext(ctx,
			"UPDATE accounts SET telegram_chat_id = NULL WHERE telegram_chat_id = $1", chatID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			"UPDATE accounts SET telegram_chat_id = $1, updated_at = NOW() WHERE id = $2", chatID, id)
		return err
	})
}

// CreditReferrer grants bonus records to the referrer in a single update.
func (db *DB) CreditReferrer(ctx context.Context, id string, bonus int) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE accounts SET record_limit = record_limit + $2, referral_bonus = referral_bonus + $2,
		 referral_count = referral_count + 1, updated_at = NOW() WHERE id = $1`,
		id, bonus)
	return err
}

// ApplyPlanLimit resets record_limit of every account on planID to the
// plan limit plus the account's own referral bonus.
func (db *DB) ApplyPlanLimit(ctx context.Context, planID string, limit int) (int, error) {
	res, err := db.conn.ExecContext(ctx,
		"UPDATE accounts SET record_limit = $2 + referral_bonus, updated_at = NOW() WHERE plan = $1",
		planID, limit)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// DeleteAccount removes the account and every record it still owns.
func (db *DB) DeleteAccount(ctx context.Context, id string) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM dns_records WHERE owner_id = $1", id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM accounts WHERE id = $1", id)
		return err
	})
}
