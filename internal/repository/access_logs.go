package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"aeroclaim.io/aeroclaim/internal/domain"
)

// AccessLogs is the append-only audit trail for document access.
// Rows are never updated or deleted.
type AccessLogs struct {
	db DBTX
}

// Insert appends one audit row.
func (r *AccessLogs) Insert(ctx context.Context, l *domain.FileAccessLog) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO file_access_logs (id, file_id, actor_id, action, detail, client_ip, user_agent, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		l.ID, l.FileID, l.ActorID, l.Action, l.Detail, l.ClientIP, l.UserAgent, l.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert file access log: %w", err)
	}
	return nil
}

// ListByFile returns the file's audit trail, oldest first.
func (r *AccessLogs) ListByFile(ctx context.Context, fileID uuid.UUID) ([]*domain.FileAccessLog, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, file_id, actor_id, action, detail, client_ip, user_agent, created_at
		FROM file_access_logs
		WHERE file_id = $1
		ORDER BY created_at, id`,
		fileID,
	)
	if err != nil {
		return nil, fmt.Errorf("list file access logs: %w", err)
	}
	defer rows.Close()

	var out []*domain.FileAccessLog
	for rows.Next() {
		var l domain.FileAccessLog
		if err := rows.Scan(&l.ID, &l.FileID, &l.ActorID, &l.Action, &l.Detail, &l.ClientIP, &l.UserAgent, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan file access log: %w", err)
		}
		out = append(out, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate file access logs: %w", err)
	}
	return out, nil
}
