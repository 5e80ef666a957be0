package pg

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// FrameLogEntry 一条收发帧流水
type FrameLogEntry struct {
	ID        int64     `json:"id"`
	Direction string    `json:"direction"`
	MessageID int16     `json:"message_id"`
	Target    int32     `json:"target"`
	CommandID int16     `json:"command_id"`
	Payload   []byte    `json:"payload,omitempty"`
	Pipe      string    `json:"pipe,omitempty"`
	Result    string    `json:"result"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// FrameLog rf24_frame_log 表
type FrameLog struct {
	Pool *pgxpool.Pool
}

// Insert 写入一条流水
func (r *FrameLog) Insert(ctx context.Context, e *FrameLogEntry) error {
	const q = `INSERT INTO rf24_frame_log (direction, message_id, target, command_id, payload, pipe, result, error, created_at)
               VALUES ($1,$2,$3,$4,$5,$6,$7,NULLIF($8,''),$9)`
	_, err := r.Pool.Exec(ctx, q, e.Direction, e.MessageID, e.Target, e.CommandID, e.Payload, e.Pipe, e.Result, e.Error, e.CreatedAt)
	return err
}

// InsertBatch 批量写入
func (r *FrameLog) InsertBatch(ctx context.Context, entries []*FrameLogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(entries))
	for _, e := range entries {
		var errText any
		if e.Error != "" {
			errText = e.Error
		}
		rows = append(rows, []any{e.Direction, e.MessageID, e.Target, e.CommandID, e.Payload, e.Pipe, e.Result, errText, e.CreatedAt})
	}
	_, err := r.Pool.CopyFrom(ctx, pgx.Identifier{"rf24_frame_log"},
		[]string{"direction", "message_id", "target", "command_id", "payload", "pipe", "result", "error", "created_at"},
		pgx.CopyFromRows(rows))
	return err
}

// Recent 最近 limit 条流水（新的在前）
func (r *FrameLog) Recent(ctx context.Context, limit int) ([]FrameLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `SELECT id, direction, message_id, target, command_id, payload, COALESCE(pipe,''), result, COALESCE(error,''), created_at
               FROM rf24_frame_log ORDER BY id DESC LIMIT $1`
	rows, err := r.Pool.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []FrameLogEntry
	for rows.Next() {
		var e FrameLogEntry
		if err := rows.Scan(&e.ID, &e.Direction, &e.MessageID, &e.Target, &e.CommandID, &e.Payload, &e.Pipe, &e.Result, &e.Error, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// PurgeBefore 删除早于 t 的流水
func (r *FrameLog) PurgeBefore(ctx context.Context, t time.Time) (int64, error) {
	tag, err := r.Pool.Exec(ctx, `DELETE FROM rf24_frame_log WHERE created_at < $1`, t)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
