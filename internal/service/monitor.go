package service

import (
	"sync"
	"time"
)

// Monitor 后端运行统计：登录、聊天转发与各基础设施的错误计数
type Monitor struct {
	mu sync.RWMutex

	logins        int64
	loginFailures int64
	messages      int64
	relayErrors   int64
	dbErrors      int64
	redisErrors   int64
	mqErrors      int64

	lastMessage time.Time
	lastError   time.Time
	startedAt   time.Time
}

func NewMonitor() *Monitor {
	return &Monitor{startedAt: time.Now()}
}

func (m *Monitor) RecordLogin(ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ok {
		m.logins++
		return
	}
	m.loginFailures++
}

func (m *Monitor) RecordMessage() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages++
	m.lastMessage = time.Now()
}

func (m *Monitor) RecordRelayError() { m.recordError(&m.relayErrors) }
func (m *Monitor) RecordDBError()    { m.recordError(&m.dbErrors) }
func (m *Monitor) RecordRedisError() { m.recordError(&m.redisErrors) }
func (m *Monitor) RecordMQError()    { m.recordError(&m.mqErrors) }

func (m *Monitor) recordError(counter *int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	*counter++
	m.lastError = time.Now()
}

// Stats 管理端统计接口的返回内容
func (m *Monitor) Stats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	loginRate := float64(0)
	if total := m.logins + m.loginFailures; total > 0 {
		loginRate = float64(m.logins) / float64(total) * 100
	}
	return map[string]interface{}{
		"errors": map[string]int64{
			"relay": m.relayErrors,
			"db":    m.dbErrors,
			"redis": m.redisErrors,
			"mq":    m.mqErrors,
		},
		"traffic": map[string]interface{}{
			"logins":             m.logins,
			"login_failures":     m.loginFailures,
			"login_success_rate": loginRate,
			"chat_messages":      m.messages,
		},
		"last_events": map[string]time.Time{
			"message": m.lastMessage,
			"error":   m.lastError,
		},
		"uptime_seconds": int64(time.Since(m.startedAt) / time.Second),
	}
}

// Reset 清零计数（测试用）
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logins, m.loginFailures, m.messages = 0, 0, 0
	m.relayErrors, m.dbErrors, m.redisErrors, m.mqErrors = 0, 0, 0, 0
}
