package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const defaultDeadLetterKey = "rf24:dead"

// DeadLetter 发送失败的下行帧
type DeadLetter struct {
	MessageID uint8     `json:"message_id"`
	Target    uint16    `json:"target"`
	CommandID uint8     `json:"command_id"`
	Payload   []byte    `json:"payload,omitempty"`
	Pipe      string    `json:"pipe"`
	Error     string    `json:"error"`
	FailedAt  time.Time `json:"failed_at"`
}

// DeadLetterQueue 死信列表（List，新记录在表头）
type DeadLetterQueue struct {
	client *Client
	key    string
	max    int64
}

// NewDeadLetterQueue max > 0 时每次写入后裁剪到 max 条
func NewDeadLetterQueue(client *Client, key string, max int64) *DeadLetterQueue {
	if key == "" {
		key = defaultDeadLetterKey
	}
	return &DeadLetterQueue{client: client, key: key, max: max}
}

// Push 写入一条死信
func (q *DeadLetterQueue) Push(ctx context.Context, dl *DeadLetter) error {
	data, err := json.Marshal(dl)
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}
	pipe := q.client.TxPipeline()
	pipe.LPush(ctx, q.key, data)
	if q.max > 0 {
		pipe.LTrim(ctx, q.key, 0, q.max-1)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// Count 死信数量
func (q *DeadLetterQueue) Count(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}

// List 最近 n 条死信（新的在前）
func (q *DeadLetterQueue) List(ctx context.Context, n int64) ([]DeadLetter, error) {
	if n <= 0 {
		return nil, nil
	}
	raw, err := q.client.LRange(ctx, q.key, 0, n-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]DeadLetter, 0, len(raw))
	for _, r := range raw {
		var dl DeadLetter
		if err := json.Unmarshal([]byte(r), &dl); err != nil {
			continue
		}
		out = append(out, dl)
	}
	return out, nil
}

// Trim 只保留最近 max 条
func (q *DeadLetterQueue) Trim(ctx context.Context, max int64) error {
	if max <= 0 {
		return q.client.Del(ctx, q.key).Err()
	}
	return q.client.LTrim(ctx, q.key, 0, max-1).Err()
}
