package websocket

import (
	"encoding/json"
	"log"
	"net/http"
	"time"
)

// MetricsProvider определяет интерфейс для получения метрик хаба
type MetricsProvider interface {
	GetMetrics() map[string]interface{}
	ClientCount() int
}

// WebSocketMetricsHandler возвращает обработчик для получения метрик хаба
func WebSocketMetricsHandler(provider MetricsProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		metrics := provider.GetMetrics()
		metrics["generated_at"] = time.Now().Format(time.RFC3339)

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(metrics); err != nil {
			log.Printf("Error encoding WebSocket metrics: %v", err)
			w.WriteHeader(http.StatusInternalServerError)
		}
	}
}

// WebSocketHealthCheckHandler возвращает обработчик для проверки состояния хаба
func WebSocketHealthCheckHandler(provider MetricsProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "healthy"
		statusCode := http.StatusOK
		clientCount := 0

		if provider != nil {
			clientCount = provider.ClientCount()
		} else {
			status = "unavailable"
			statusCode = http.StatusServiceUnavailable
		}

		response := map[string]interface{}{
			"status":             status,
			"active_connections": clientCount,
			"timestamp":          time.Now().Format(time.RFC3339),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		if err := json.NewEncoder(w).Encode(response); err != nil {
			log.Printf("Error encoding WebSocket health check response: %v", err)
		}
	}
}
