package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/foodlens/framelink/internal/domain"
)

type CommandLogRepo struct {
	db *sql.DB
}

func NewCommandLogRepo(db *sql.DB) *CommandLogRepo {
	return &CommandLogRepo{db: db}
}

func (r *CommandLogRepo) Insert(ctx context.Context, rec domain.CommandRecord) (int64, error) {
	success := int64(0)
	if rec.Success {
		success = 1
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO command_log(command_type, success, reason, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, rec.Type, success, nullableString(rec.Reason), rec.DurationMS, toUnixMillis(rec.At))
	if err != nil {
		return 0, fmt.Errorf("insert command record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("command record id: %w", err)
	}
	return id, nil
}

// ListRecent returns up to limit records, newest first.
func (r *CommandLogRepo) ListRecent(ctx context.Context, limit int) ([]domain.CommandRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, command_type, success, reason, duration_ms, created_at
		FROM command_log
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list command records: %w", err)
	}
	defer rows.Close()

	var out []domain.CommandRecord
	for rows.Next() {
		var (
			rec       domain.CommandRecord
			success   int64
			reason    sql.NullString
			createdMs int64
		)
		if err := rows.Scan(&rec.ID, &rec.Type, &success, &reason, &rec.DurationMS, &createdMs); err != nil {
			return nil, fmt.Errorf("scan command record: %w", err)
		}
		rec.Success = success != 0
		rec.Reason = reason.String
		rec.At = fromUnixMillis(createdMs)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate command records: %w", err)
	}

	return out, nil
}
