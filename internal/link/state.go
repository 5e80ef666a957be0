package link

import "time"

// State 读写两个循环共享的收发器状态
type State int32

const (
	Listening State = iota
	PausedForWrite
	Draining
)

func (s State) String() string {
	switch s {
	case Listening:
		return "listening"
	case PausedForWrite:
		return "paused_for_write"
	case Draining:
		return "draining"
	}
	return "unknown"
}

// Status 对外展示的链路状态
type Status struct {
	Online        bool      `json:"online"`
	Running       bool      `json:"running"`
	Message       string    `json:"message,omitempty"`
	State         string    `json:"state"`
	QueueDepth    int       `json:"queue_depth"`
	QueueLimit    int       `json:"queue_limit,omitempty"`
	Subscriptions int       `json:"subscriptions"`
	ReadPipes     []string  `json:"read_pipes,omitempty"`
	WritePipe     string    `json:"write_pipe,omitempty"`
	Channel       uint8     `json:"channel"`
	PALevel       string    `json:"pa_level,omitempty"`
	CRCLength     string    `json:"crc_length,omitempty"`
	DataRate      string    `json:"data_rate,omitempty"`
	CheckedAt     time.Time `json:"checked_at"`
}
