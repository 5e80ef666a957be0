package app

import (
	"fmt"
	"os"

	"github.com/google/uuid"
)

// GenerateServerID 生成网关实例ID
// 优先使用环境变量RF24_INSTANCE_ID，否则生成UUID
func GenerateServerID() string {
	if id := os.Getenv("RF24_INSTANCE_ID"); id != "" {
		return id
	}

	// 生成格式：rf24-gateway-{hostname}-{uuid}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	shortUUID := uuid.New().String()[:8]
	return fmt.Sprintf("rf24-gateway-%s-%s", hostname, shortUUID)
}
