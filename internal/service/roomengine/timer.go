package roomengine

import (
	"sync"
	"time"
)

// questionTimer отсчитывает дедлайн текущего вопроса (или общий лимит
// комнаты в режиме total_time) и раз в секунду шлет тик для клиентов.
// Таймер никогда не трогает состояние комнаты напрямую: по срабатыванию
// он ставит команду в очередь актора, где она обрабатывается наравне
// с остальными. Номер поколения в команде отсекает устаревшие
// срабатывания после паузы или ручного перехода.
type questionTimer struct {
	stop     chan struct{}
	once     sync.Once
	deadline time.Time
}

// armTimer запускает таймер на d: раз в секунду отправляет tick,
// по истечении - expiry
func (a *Actor) armTimer(d time.Duration, tick, expiry command) *questionTimer {
	t := &questionTimer{
		stop:     make(chan struct{}),
		deadline: time.Now().Add(d),
	}

	go func() {
		expire := time.NewTimer(d)
		defer expire.Stop()
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-t.stop:
				return
			case <-ticker.C:
				// Потерянный тик не страшен: следующий придет через секунду
				a.tryPost(tick)
			case <-expire.C:
				// Дедлайн теряться не должен: при заполненной очереди ждем места
				a.mustPost(expiry)
				return
			}
		}
	}()

	return t
}

// Stop останавливает таймер и возвращает оставшееся время.
// Используется паузой, чтобы возобновить отсчет с того же места.
func (t *questionTimer) Stop() time.Duration {
	t.once.Do(func() { close(t.stop) })
	remaining := time.Until(t.deadline)
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// Remaining возвращает оставшееся время без остановки таймера
func (t *questionTimer) Remaining() time.Duration {
	remaining := time.Until(t.deadline)
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}
