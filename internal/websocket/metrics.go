package websocket

import (
	"sync"
	"time"
)

// HubMetrics представляет агрегированные метрики WebSocket-сервера
type HubMetrics struct {
	totalConnections  int64     // Общее количество подключений за все время
	activeConnections int64     // Текущее количество активных подключений
	messagesSent      int64     // Общее количество доставленных сообщений
	messagesReceived  int64     // Общее количество полученных сообщений
	messagesDropped   int64     // Сообщения, потерянные из-за переполнения буферов
	connectionErrors  int64     // Общее количество ошибок соединений
	startTime         time.Time // Время запуска сервера

	// Счетчики входящих сообщений по типам
	messageTypeCounts map[string]int64

	mu sync.RWMutex
}

// NewHubMetrics создает новый экземпляр метрик хаба
func NewHubMetrics() *HubMetrics {
	return &HubMetrics{
		startTime:         time.Now(),
		messageTypeCounts: make(map[string]int64),
	}
}

// ClientConnected увеличивает счетчики подключений
func (m *HubMetrics) ClientConnected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalConnections++
	m.activeConnections++
}

// ClientDisconnected уменьшает счетчик активных подключений
func (m *HubMetrics) ClientDisconnected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.activeConnections > 0 {
		m.activeConnections--
	}
}

// MessageSent увеличивает счетчик доставленных сообщений
func (m *HubMetrics) MessageSent() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messagesSent++
}

// MessageDropped увеличивает счетчик потерянных сообщений
func (m *HubMetrics) MessageDropped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messagesDropped++
}

// MessageReceived учитывает входящее сообщение определенного типа
func (m *HubMetrics) MessageReceived(messageType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messagesReceived++
	m.messageTypeCounts[messageType]++
}

// ConnectionError увеличивает счетчик ошибок соединений
func (m *HubMetrics) ConnectionError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectionErrors++
}

// ConnectedClients возвращает текущее количество активных подключений
func (m *HubMetrics) ConnectedClients() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int(m.activeConnections)
}

// Snapshot возвращает все метрики в формате карты для JSON-ответа
func (m *HubMetrics) Snapshot() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	uptime := time.Since(m.startTime).Seconds()

	messageStats := make(map[string]int64)
	for messageType, count := range m.messageTypeCounts {
		messageStats[messageType] = count
	}

	return map[string]interface{}{
		"total_connections":  m.totalConnections,
		"active_connections": m.activeConnections,
		"messages_sent":      m.messagesSent,
		"messages_received":  m.messagesReceived,
		"messages_dropped":   m.messagesDropped,
		"connection_errors":  m.connectionErrors,
		"uptime_seconds":     uptime,
		"start_time":         m.startTime.Format(time.RFC3339),
		"message_type_stats": messageStats,
	}
}
