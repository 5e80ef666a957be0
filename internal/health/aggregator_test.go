package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/rf24-gateway/internal/link"
	"github.com/taoyao-code/rf24-gateway/internal/storage/pg"
)

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error        { return p.err }
func (p fakePinger) HealthCheck(context.Context) error { return p.err }

type fakeFrames struct {
	rows []pg.FrameLogEntry
	err  error
}

func (f fakeFrames) Recent(context.Context, int) ([]pg.FrameLogEntry, error) { return f.rows, f.err }

type fakeDepth struct {
	n   int64
	err error
}

func (f fakeDepth) Count(context.Context) (int64, error) { return f.n, f.err }

func listening() StatusSource {
	return staticSource{Online: true, Running: true, State: "listening", QueueLimit: 1024}
}

func startedReadiness() *Readiness {
	r := New()
	r.SetStarted(true)
	return r
}

func TestAggregator(t *testing.T) {
	t.Run("链路正常", func(t *testing.T) {
		agg := NewAggregator(startedReadiness(), NewRadioChecker(listening()))
		rep := agg.Run(context.Background())
		assert.Equal(t, StatusHealthy, rep.Status)
		assert.Len(t, rep.Checks, 2)
		assert.True(t, agg.Ready(context.Background()))
	})

	t.Run("启动中不就绪", func(t *testing.T) {
		agg := NewAggregator(New(), NewRadioChecker(listening()))
		assert.Equal(t, StatusUnhealthy, agg.Run(context.Background()).Status)
		assert.False(t, agg.Ready(context.Background()))
	})

	t.Run("收发器离线", func(t *testing.T) {
		agg := NewAggregator(startedReadiness(), NewRadioChecker(staticSource{Online: false, State: "offline", Message: "no spi"}))
		rep := agg.Run(context.Background())
		assert.Equal(t, StatusUnhealthy, rep.Status)
		assert.Equal(t, StatusUnhealthy, rep.Checks["radio"].Status)
	})

	t.Run("可选存储故障只降级", func(t *testing.T) {
		agg := NewAggregator(startedReadiness(), NewRadioChecker(listening()))
		agg.AddOptional(NewRedisChecker(fakePinger{err: errors.New("connection refused")}, nil, 0))
		agg.AddOptional(NewDatabaseChecker(fakePinger{}, fakeFrames{}))

		rep := agg.Run(context.Background())
		assert.Equal(t, StatusDegraded, rep.Status)
		assert.Equal(t, StatusUnhealthy, rep.Checks["redis"].Status)
		assert.Equal(t, StatusHealthy, rep.Checks["database"].Status)
		assert.True(t, agg.Ready(context.Background()), "存储故障不影响收发，仍就绪")
	})
}

func TestRedisChecker_DeadLetterDepth(t *testing.T) {
	t.Run("正常", func(t *testing.T) {
		res := NewRedisChecker(fakePinger{}, fakeDepth{n: 12}, 100).Check(context.Background())
		assert.Equal(t, StatusHealthy, res.Status)
		assert.Equal(t, DeadLetterDetails{Depth: 12, Max: 100}, res.Details)
	})

	t.Run("接近上限降级", func(t *testing.T) {
		res := NewRedisChecker(fakePinger{}, fakeDepth{n: 95}, 100).Check(context.Background())
		assert.Equal(t, StatusDegraded, res.Status)
		assert.Contains(t, res.Message, "95/100")
	})

	t.Run("计数失败降级", func(t *testing.T) {
		res := NewRedisChecker(fakePinger{}, fakeDepth{err: errors.New("WRONGTYPE")}, 100).Check(context.Background())
		assert.Equal(t, StatusDegraded, res.Status)
	})

	t.Run("不可达", func(t *testing.T) {
		res := NewRedisChecker(fakePinger{err: errors.New("i/o timeout")}, fakeDepth{}, 100).Check(context.Background())
		assert.Equal(t, StatusUnhealthy, res.Status)
		assert.Nil(t, res.Details)
	})
}

func TestDatabaseChecker_LastFrame(t *testing.T) {
	at := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)
	res := NewDatabaseChecker(fakePinger{}, fakeFrames{rows: []pg.FrameLogEntry{{CreatedAt: at}}}).Check(context.Background())
	assert.Equal(t, StatusHealthy, res.Status)
	details, ok := res.Details.(FrameLogDetails)
	require.True(t, ok)
	require.NotNil(t, details.LastFrameAt)
	assert.Equal(t, at, *details.LastFrameAt)

	res = NewDatabaseChecker(fakePinger{}, fakeFrames{err: errors.New("relation does not exist")}).Check(context.Background())
	assert.Equal(t, StatusDegraded, res.Status)

	res = NewDatabaseChecker(fakePinger{err: errors.New("refused")}, nil).Check(context.Background())
	assert.Equal(t, StatusUnhealthy, res.Status)
}

func TestHTTPRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ready := New()
	agg := NewAggregator(ready, NewRadioChecker(staticSource{
		Online: true, Running: true, State: "listening", QueueDepth: 3, WritePipe: "0x65646F4E32",
	}))
	r := gin.New()
	RegisterHTTPRoutes(r, agg)

	do := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w
	}

	assert.Equal(t, http.StatusServiceUnavailable, do("/health/ready").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do("/health").Code)
	assert.Equal(t, http.StatusOK, do("/health/live").Code)

	ready.SetStarted(true)
	assert.Equal(t, http.StatusOK, do("/health/ready").Code)

	w := do("/health")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Status Status `json:"status"`
		Checks map[string]struct {
			Status  Status      `json:"status"`
			Details link.Status `json:"details"`
		} `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, StatusHealthy, body.Status)
	require.Contains(t, body.Checks, "radio")
	assert.Equal(t, "listening", body.Checks["radio"].Details.State)
	assert.Equal(t, 3, body.Checks["radio"].Details.QueueDepth)
	assert.Equal(t, "0x65646F4E32", body.Checks["radio"].Details.WritePipe)
	assert.Contains(t, body.Checks, "startup")
}
