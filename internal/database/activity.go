package database

import (
	"context"

	"subzone/internal/model"
)

func (db *DB) LogActivity(ctx context.Context, a *model.Activity) error {
	return db.conn.QueryRowContext(ctx,
		`INSERT INTO activity_log (actor_id, actor_email, action, detail, ip_address)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		a.ActorID, a.ActorEmail, a.Action, a.Detail, a.IPAddress,
	).Scan(&a.ID, &a.CreatedAt)
}

func (db *DB) ListActivity(ctx context.Context, limit, offset int) ([]model.Activity, int, error) {
	var total int
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM activity_log").Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, actor_id, actor_email, action, detail, ip_address, created_at
		 FROM activity_log ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []model.Activity
	for rows.Next() {
		var e model.Activity
		if err := rows.Scan(&e.ID, &e.ActorID, &e.ActorEmail, &e.Action, &e.Detail,
			&e.IPAddress, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}
