package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"subzone/internal/model"
)

const planColumns = `id, name, price, record_limit, features, popular, sort_order`

func scanPlan(row rowScanner) (*model.Plan, error) {
	p := &model.Plan{}
	var features []byte
	if err := row.Scan(&p.ID, &p.Name, &p.Price, &p.RecordLimit, &features, &p.Popular, &p.SortOrder); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(features, &p.Features); err != nil {
		return nil, err
	}
	return p, nil
}

func (db *DB) ListPlans(ctx context.Context) ([]model.Plan, error) {
	rows, err := db.conn.QueryContext(ctx, "SELECT "+planColumns+" FROM plans ORDER BY sort_order, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []model.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, *p)
	}
	return plans, rows.Err()
}

func (db *DB) GetPlan(ctx context.Context, id string) (*model.Plan, error) {
	p, err := scanPlan(db.conn.QueryRowContext(ctx, "SELECT "+planColumns+" FROM plans WHERE id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func featuresJSON(p *model.Plan) ([]byte, error) {
	if p.Features == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(p.Features)
}

func (db *DB) CreatePlan(ctx context.Context, p *model.Plan) error {
	features, err := featuresJSON(p)
	if err != nil {
		return err
	}
	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO plans (id, name, price, record_limit, features, popular, sort_order)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.Name, p.Price, p.RecordLimit, string(features), p.Popular, p.SortOrder)
	return uniqueViolation(err)
}

// UpdatePlan overwrites every field of the plan p.ID. It reports false when
// no such plan exists.
func (db *DB) UpdatePlan(ctx context.Context, p *model.Plan) (bool, error) {
	features, err := featuresJSON(p)
	if err != nil {
		return false, err
	}
	res, err := db.conn.ExecContext(ctx,
		`UPDATE plans SET name = $2, price = $3, record_limit = $4, features = $5, popular = $6, sort_order = $7
		 WHERE id = $1`,
		p.ID, p.Name, p.Price, p.RecordLimit, string(features), p.Popular, p.SortOrder)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (db *DB) DeletePlan(ctx context.Context, id string) (bool, error) {
	res, err := db.conn.ExecContext(ctx, "DELETE FROM plans WHERE id = $1", id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
