package database

import (
	"context"
	"database/sql"
	"errors"

	"subzone/internal/model"
)

// errNoMatch rolls back a transaction whose lookup matched nothing.
var errNoMatch = errors.New("no matching row")

const recordColumns = `id, provider_id, owner_id, name, full_name, record_type, content, ttl, proxied, created_at`

func scanRecord(row rowScanner) (*model.Record, error) {
	r := &model.Record{}
	err := row.Scan(&r.ID, &r.ProviderID, &r.OwnerID, &r.Name, &r.FullName, &r.Type,
		&r.Content, &r.TTL, &r.Proxied, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (db *DB) queryRecord(ctx context.Context, query string, args ...any) (*model.Record, error) {
	r, err := scanRecord(db.conn.QueryRowContext(ctx, query, args...))
	if noRows(err) {
		return nil, nil
	}
	return r, err
}

func (db *DB) queryRecords(ctx context.Context, query string, args ...any) ([]model.Record, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []model.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *r)
	}
	return records, rows.Err()
}

func (db *DB) CountRecordsByOwner(ctx context.Context, ownerID string) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM dns_records WHERE owner_id = $1", ownerID).Scan(&count)
	return count, err
}

func (db *DB) FindDuplicateRecord(ctx context.Context, fullName, recordType string) (*model.Record, error) {
	return db.queryRecord(ctx,
		"SELECT "+recordColumns+" FROM dns_records WHERE full_name = $1 AND record_type = $2", fullName, recordType)
}

func (db *DB) GetRecord(ctx context.Context, id string) (*model.Record, error) {
	return db.queryRecord(ctx, "SELECT "+recordColumns+" FROM dns_records WHERE id = $1", id)
}

func (db *DB) GetOwnedRecord(ctx context.Context, id, ownerID string) (*model.Record, error) {
	return db.queryRecord(ctx,
		"SELECT "+recordColumns+" FROM dns_records WHERE id = $1 AND owner_id = $2", id, ownerID)
}

func (db *DB) ListRecordsByOwner(ctx context.Context, ownerID string, limit int) ([]model.Record, error) {
	return db.queryRecords(ctx,
		"SELECT "+recordColumns+" FROM dns_records WHERE owner_id = $1 ORDER BY created_at LIMIT $2", ownerID, limit)
}

func (db *DB) ListAllRecords(ctx context.Context, limit, offset int) ([]model.Record, int, error) {
	var total int
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM dns_records").Scan(&total); err != nil {
		return nil, 0, err
	}
	records, err := db.queryRecords(ctx,
		"SELECT "+recordColumns+" FROM dns_records ORDER BY created_at DESC LIMIT $1 OFFSET $2", limit, offset)
	return records, total, err
}

// InsertRecord stores r and bumps its owner's record_count in one
// transaction. A clash on (full_name, record_type) yields ErrDuplicate.
func (db *DB) InsertRecord(ctx context.Context, r *model.Record) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`INSERT INTO dns_records (id, provider_id, owner_id, name, full_name, record_type, content, ttl, proxied)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 RETURNING created_at`,
			r.ID, r.ProviderID, r.OwnerID, r.Name, r.FullName, r.Type, r.Content, r.TTL, r.Proxied,
		).Scan(&r.CreatedAt)
		if err != nil {
			return uniqueViolation(err)
		}
		_, err = tx.ExecContext(ctx,
			"UPDATE accounts SET record_count = record_count + 1, updated_at = NOW() WHERE id = $1", r.OwnerID)
		return err
	})
}

func (db *DB) UpdateRecord(ctx context.Context, id, content string, ttl int, proxied bool) error {
	_, err := db.conn.ExecContext(ctx,
		"UPDATE dns_records SET content = $1, ttl = $2, proxied = $3 WHERE id = $4",
		content, ttl, proxied, id)
	return err
}

// DeleteRecord removes the record and decrements its owner's record_count
// in one transaction. The count never goes below zero; clamped reports
// that it would have.
func (db *DB) DeleteRecord(ctx context.Context, id string) (clamped bool, err error) {
	err = db.withTx(ctx, func(tx *sql.Tx) error {
		var ownerID string
		err := tx.QueryRowContext(ctx, "DELETE FROM dns_records WHERE id = $1 RETURNING owner_id", id).Scan(&ownerID)
		if noRows(err) {
			return errNoMatch
		}
		if err != nil {
			return err
		}

		var count int
		if err := tx.QueryRowContext(ctx,
			"SELECT record_count FROM accounts WHERE id = $1 FOR UPDATE", ownerID).Scan(&count); err != nil {
			return err
		}
		clamped = count <= 0
		_, err = tx.ExecContext(ctx,
			"UPDATE accounts SET record_count = GREATEST(record_count - 1, 0), updated_at = NOW() WHERE id = $1", ownerID)
		return err
	})
	if errors.Is(err, errNoMatch) {
		return false, nil
	}
	return clamped, err
}

// RecountRecords sets record_count of ownerID to its true record count.
func (db *DB) RecountRecords(ctx context.Context, ownerID string) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx,
		`UPDATE accounts SET record_count = (SELECT COUNT(*) FROM dns_records WHERE owner_id = $1), updated_at = NOW()
		 WHERE id = $1 RETURNING record_count`, ownerID).Scan(&count)
	if noRows(err) {
		return 0, nil
	}
	return count, err
}

// RecountAllRecords fixes every drifted account and returns how many changed.
func (db *DB) RecountAllRecords(ctx context.Context) (int, error) {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE accounts a SET record_count = c.n, updated_at = NOW()
		 FROM (SELECT acc.id, COUNT(r.id) AS n FROM accounts acc
		       LEFT JOIN dns_records r ON r.owner_id = acc.id GROUP BY acc.id) c
		 WHERE a.id = c.id AND a.record_count <> c.n`)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (db *DB) RecordCountDrift(ctx context.Context) ([]model.CountDrift, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT a.id, a.email, a.record_count, COUNT(r.id)
		 FROM accounts a LEFT JOIN dns_records r ON r.owner_id = a.id
		 GROUP BY a.id, a.email, a.record_count
		 HAVING a.record_count <> COUNT(r.id)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var drift []model.CountDrift
	for rows.Next() {
		var d model.CountDrift
		if err := rows.Scan(&d.AccountID, &d.Email, &d.Stored, &d.Actual); err != nil {
			return nil, err
		}
		drift = append(drift, d)
	}
	return drift, rows.Err()
}
