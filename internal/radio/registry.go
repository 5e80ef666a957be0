package radio

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/taoyao-code/rf24-gateway/internal/driverapi"
)

// DriverFactory 构造驱动实例
type DriverFactory func(logger *zap.Logger) (driverapi.Driver, error)

var (
	driversMu sync.RWMutex
	drivers   = map[string]DriverFactory{}
)

// RegisterDriver 注册驱动工厂（硬件驱动包在 init 中调用），重复注册 panic
func RegisterDriver(name string, f DriverFactory) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if f == nil {
		panic("radio: RegisterDriver factory is nil")
	}
	if _, dup := drivers[name]; dup {
		panic("radio: RegisterDriver called twice for " + name)
	}
	drivers[name] = f
}

// NewDriver 按名称构造驱动
func NewDriver(name string, logger *zap.Logger) (driverapi.Driver, error) {
	driversMu.RLock()
	f, ok := drivers[name]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown radio driver %q (registered: %v)", name, Drivers())
	}
	return f(logger)
}

// Drivers 已注册驱动名
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	out := make([]string, 0, len(drivers))
	for n := range drivers {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
