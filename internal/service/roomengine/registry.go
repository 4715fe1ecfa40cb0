package roomengine

import (
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/yourusername/classquiz-api/internal/domain/entity"
	apperrors "github.com/yourusername/classquiz-api/internal/pkg/errors"
)

// Registry хранит акторы живых комнат. На одну комнату в процессе
// существует ровно один актор: параллельные запросы на подъем одной
// и той же комнаты схлопываются через singleflight.
type Registry struct {
	mu     sync.RWMutex
	actors map[uint]*Actor
	byCode map[string]uint

	group singleflight.Group
	deps  *Dependencies
	cfg   *Config

	stopGC   chan struct{}
	stopOnce sync.Once
}

// NewRegistry создает реестр и запускает фоновый сборщик мусора
func NewRegistry(deps *Dependencies) *Registry {
	cfg := deps.Config
	if cfg == nil {
		cfg = DefaultConfig()
		deps.Config = cfg
	}
	r := &Registry{
		actors: make(map[uint]*Actor),
		byCode: make(map[string]uint),
		deps:   deps,
		cfg:    cfg,
		stopGC: make(chan struct{}),
	}
	go r.gcLoop()
	return r
}

// Get возвращает актор комнаты, если он уже поднят
func (r *Registry) Get(roomID uint) (*Actor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.actors[roomID]
	return a, ok
}

// GetByCode возвращает актор по коду доступа, если он уже поднят
func (r *Registry) GetByCode(code string) (*Actor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byCode[code]
	if !ok {
		return nil, false
	}
	a, ok := r.actors[id]
	return a, ok
}

// Resolve находит или поднимает актор комнаты по коду доступа.
// Конкурентные вызовы для одного кода выполняют загрузку один раз.
func (r *Registry) Resolve(code string) (*Actor, error) {
	if a, ok := r.GetByCode(code); ok {
		return a, nil
	}

	v, err, _ := r.group.Do("code:"+code, func() (interface{}, error) {
		// Проверяем еще раз под singleflight: могли поднять, пока мы ждали
		if a, ok := r.GetByCode(code); ok {
			return a, nil
		}
		room, err := r.deps.RoomRepo.GetByAccessCode(code)
		if err != nil {
			return nil, err
		}
		return r.activate(room)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Actor), nil
}

// ResolveByID находит или поднимает актор комнаты по идентификатору
func (r *Registry) ResolveByID(roomID uint) (*Actor, error) {
	if a, ok := r.Get(roomID); ok {
		return a, nil
	}

	v, err, _ := r.group.Do(fmt.Sprintf("id:%d", roomID), func() (interface{}, error) {
		if a, ok := r.Get(roomID); ok {
			return a, nil
		}
		room, err := r.deps.RoomRepo.GetByID(roomID)
		if err != nil {
			return nil, err
		}
		return r.activate(room)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Actor), nil
}

// activate поднимает актор для комнаты из БД. Завершенные комнаты
// не поднимаются: свежезавершенные получают ErrRoomClosed, а после
// cooldown комнаты для живого движка больше нет - остаются только
// исторические результаты.
func (r *Registry) activate(room *entity.Room) (*Actor, error) {
	if room.IsEnded() {
		if room.EndedAt != nil && time.Since(*room.EndedAt) >= r.cfg.EndedCooldown {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.ErrRoomClosed
	}

	// Предзагрузка вопросов. Неудача не мешает подняться лобби:
	// загрузка повторится при старте викторины.
	questions, err := r.deps.QuestionRepo.GetByQuizID(room.QuizID)
	if err != nil {
		log.Printf("[Registry] Предзагрузка вопросов комнаты %d не удалась: %v", room.ID, err)
		questions = nil
	}

	a := NewActor(room, questions, r.deps)

	r.mu.Lock()
	// Гонка двух ключей singleflight (id и code) на одну комнату
	if existing, ok := r.actors[room.ID]; ok {
		r.mu.Unlock()
		a.Stop()
		return existing, nil
	}
	r.actors[room.ID] = a
	r.byCode[room.AccessCode] = room.ID
	r.mu.Unlock()

	log.Printf("[Registry] Комната %d (%s) поднята, вопросов: %d", room.ID, room.AccessCode, len(questions))
	return a, nil
}

// gcLoop периодически убирает завершенные комнаты после cooldown
// и пинает простаивающие лобби
func (r *Registry) gcLoop() {
	ticker := time.NewTicker(r.cfg.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopGC:
			return
		case <-ticker.C:
			r.collect()
		}
	}
}

func (r *Registry) collect() {
	now := time.Now()

	r.mu.Lock()
	var expired []*Actor
	for id, a := range r.actors {
		status, endedAt, _ := a.ExtState()
		switch status {
		case entity.RoomStatusEnded:
			// Cooldown: завершенная комната еще отвечает ErrRoomClosed,
			// а не пропадает из реестра мгновенно
			if !endedAt.IsZero() && now.Sub(endedAt) >= r.cfg.EndedCooldown {
				delete(r.actors, id)
				delete(r.byCode, a.AccessCode())
				expired = append(expired, a)
			}
		case entity.RoomStatusWaiting:
			a.tryPost(idleCheckCmd{})
		}
	}
	r.mu.Unlock()

	for _, a := range expired {
		a.Stop()
		log.Printf("[Registry] Комната %d убрана из реестра после cooldown", a.RoomID())
	}
}

// Count возвращает число поднятых комнат
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.actors)
}

// Shutdown останавливает сборщик мусора и все акторы
func (r *Registry) Shutdown() {
	r.stopOnce.Do(func() { close(r.stopGC) })

	r.mu.Lock()
	actors := make([]*Actor, 0, len(r.actors))
	for _, a := range r.actors {
		actors = append(actors, a)
	}
	r.actors = make(map[uint]*Actor)
	r.byCode = make(map[string]uint)
	r.mu.Unlock()

	for _, a := range actors {
		a.Stop()
	}
	log.Printf("[Registry] Остановлено %d комнат", len(actors))
}
