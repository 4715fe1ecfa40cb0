package roomengine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/classquiz-api/internal/domain/entity"
	apperrors "github.com/yourusername/classquiz-api/internal/pkg/errors"
)

// ============================================================================
// Моки для Registry
// ============================================================================

// MockRoomRepoForRegistry реализует repository.RoomRepository
type MockRoomRepoForRegistry struct {
	mock.Mock
}

func (m *MockRoomRepoForRegistry) Create(room *entity.Room) error {
	args := m.Called(room)
	return args.Error(0)
}

func (m *MockRoomRepoForRegistry) GetByID(id uint) (*entity.Room, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Room), args.Error(1)
}

func (m *MockRoomRepoForRegistry) GetByAccessCode(code string) (*entity.Room, error) {
	args := m.Called(code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Room), args.Error(1)
}

func (m *MockRoomRepoForRegistry) Update(room *entity.Room) error {
	args := m.Called(room)
	return args.Error(0)
}

func (m *MockRoomRepoForRegistry) UpdateStatus(roomID uint, status string) error {
	args := m.Called(roomID, status)
	return args.Error(0)
}

func (m *MockRoomRepoForRegistry) ListByOwner(ownerID uint, limit, offset int) ([]entity.Room, int64, error) {
	args := m.Called(ownerID, limit, offset)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]entity.Room), args.Get(1).(int64), args.Error(2)
}

func (m *MockRoomRepoForRegistry) Delete(id uint) error {
	args := m.Called(id)
	return args.Error(0)
}

// MockQuestionRepoForRegistry реализует repository.QuestionRepository
type MockQuestionRepoForRegistry struct {
	mock.Mock
}

func (m *MockQuestionRepoForRegistry) Create(q *entity.Question) error {
	args := m.Called(q)
	return args.Error(0)
}

func (m *MockQuestionRepoForRegistry) CreateBatch(qs []entity.Question) error {
	args := m.Called(qs)
	return args.Error(0)
}

func (m *MockQuestionRepoForRegistry) GetByID(id uint) (*entity.Question, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Question), args.Error(1)
}

func (m *MockQuestionRepoForRegistry) GetByQuizID(quizID uint) ([]entity.Question, error) {
	args := m.Called(quizID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.Question), args.Error(1)
}

func (m *MockQuestionRepoForRegistry) Update(q *entity.Question) error {
	args := m.Called(q)
	return args.Error(0)
}

func (m *MockQuestionRepoForRegistry) Delete(id uint) error {
	args := m.Called(id)
	return args.Error(0)
}

func newRegistryFixture(t *testing.T, roomRepo *MockRoomRepoForRegistry, questionRepo *MockQuestionRepoForRegistry) *Registry {
	t.Helper()
	resultRepo := new(MockResultRepoForActor)
	resultRepo.On("SaveFinalResults", mock.Anything, mock.Anything).Return(nil).Maybe()

	cfg := testConfig()
	cfg.GCInterval = 20 * time.Millisecond
	cfg.EndedCooldown = 50 * time.Millisecond

	r := NewRegistry(&Dependencies{
		RoomRepo:     roomRepo,
		QuestionRepo: questionRepo,
		ResultRepo:   resultRepo,
		Broadcaster:  &recorderBroadcaster{},
		Config:       cfg,
	})
	t.Cleanup(r.Shutdown)
	return r
}

// ============================================================================
// Тесты Registry
// ============================================================================

func TestRegistry_Resolve_LoadsRoomOnce(t *testing.T) {
	roomRepo := new(MockRoomRepoForRegistry)
	questionRepo := new(MockQuestionRepoForRegistry)
	roomRepo.On("GetByAccessCode", "ABC123").Return(testRoom(), nil).Once()
	questionRepo.On("GetByQuizID", uint(5)).Return(testQuestions(), nil).Once()

	r := newRegistryFixture(t, roomRepo, questionRepo)

	// Конкурентные Resolve одного кода схлопываются в одну загрузку
	var wg sync.WaitGroup
	actors := make([]*Actor, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, err := r.Resolve("ABC123")
			require.NoError(t, err)
			actors[i] = a
		}(i)
	}
	wg.Wait()

	for i := 1; i < 10; i++ {
		assert.Same(t, actors[0], actors[i], "На одну комнату существует ровно один актор")
	}
	assert.Equal(t, 1, r.Count())
	roomRepo.AssertExpectations(t)
	questionRepo.AssertExpectations(t)
}

func TestRegistry_Resolve_UnknownCode(t *testing.T) {
	roomRepo := new(MockRoomRepoForRegistry)
	questionRepo := new(MockQuestionRepoForRegistry)
	roomRepo.On("GetByAccessCode", "NOPE").Return(nil, apperrors.ErrNotFound)

	r := newRegistryFixture(t, roomRepo, questionRepo)

	_, err := r.Resolve("NOPE")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Equal(t, 0, r.Count())
}

func TestRegistry_Resolve_EndedRoomNotActivated(t *testing.T) {
	room := testRoom()
	room.Status = entity.RoomStatusEnded
	roomRepo := new(MockRoomRepoForRegistry)
	questionRepo := new(MockQuestionRepoForRegistry)
	roomRepo.On("GetByAccessCode", "ABC123").Return(room, nil)

	r := newRegistryFixture(t, roomRepo, questionRepo)

	_, err := r.Resolve("ABC123")
	assert.ErrorIs(t, err, apperrors.ErrRoomClosed, "Завершенная комната не поднимается заново")
}

func TestRegistry_Resolve_EndedRoomPastCooldownIsNotFound(t *testing.T) {
	endedAt := time.Now().Add(-time.Hour)
	room := testRoom()
	room.Status = entity.RoomStatusEnded
	room.EndedAt = &endedAt
	roomRepo := new(MockRoomRepoForRegistry)
	questionRepo := new(MockQuestionRepoForRegistry)
	roomRepo.On("GetByAccessCode", "ABC123").Return(room, nil)

	r := newRegistryFixture(t, roomRepo, questionRepo)

	// Cooldown давно истек: код ведет себя как несуществующий
	_, err := r.Resolve("ABC123")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestRegistry_Resolve_EndedRoomWithinCooldownIsClosed(t *testing.T) {
	endedAt := time.Now()
	room := testRoom()
	room.Status = entity.RoomStatusEnded
	room.EndedAt = &endedAt
	roomRepo := new(MockRoomRepoForRegistry)
	questionRepo := new(MockQuestionRepoForRegistry)
	roomRepo.On("GetByAccessCode", "ABC123").Return(room, nil)

	r := newRegistryFixture(t, roomRepo, questionRepo)

	_, err := r.Resolve("ABC123")
	assert.ErrorIs(t, err, apperrors.ErrRoomClosed, "Свежезавершенная комната еще отличима от несуществующей")
}

func TestRegistry_Resolve_PrefetchFailureStillActivates(t *testing.T) {
	roomRepo := new(MockRoomRepoForRegistry)
	questionRepo := new(MockQuestionRepoForRegistry)
	roomRepo.On("GetByAccessCode", "ABC123").Return(testRoom(), nil)
	questionRepo.On("GetByQuizID", uint(5)).Return(nil, assert.AnError)

	r := newRegistryFixture(t, roomRepo, questionRepo)

	// Недоступное хранилище не мешает лобби подняться
	a, err := r.Resolve("ABC123")
	require.NoError(t, err)
	assert.Equal(t, uint(1), a.RoomID())
}

func TestRegistry_GC_RemovesEndedAfterCooldown(t *testing.T) {
	roomRepo := new(MockRoomRepoForRegistry)
	questionRepo := new(MockQuestionRepoForRegistry)
	roomRepo.On("GetByAccessCode", "ABC123").Return(testRoom(), nil)
	roomRepo.On("UpdateStatus", uint(1), mock.Anything).Return(nil).Maybe()
	questionRepo.On("GetByQuizID", uint(5)).Return(testQuestions(), nil)

	r := newRegistryFixture(t, roomRepo, questionRepo)

	a, err := r.Resolve("ABC123")
	require.NoError(t, err)

	ctx := context.Background()
	teacher, err := a.Join(ctx, JoinRequest{UserID: 100, DisplayName: "Мария Ивановна"})
	require.NoError(t, err)
	require.NoError(t, a.Start(ctx, teacher.ParticipantID))
	require.NoError(t, a.End(ctx, teacher.ParticipantID))

	// После cooldown сборщик убирает комнату из реестра
	require.Eventually(t, func() bool {
		return r.Count() == 0
	}, 2*time.Second, 20*time.Millisecond, "Завершенная комната должна уйти из реестра после cooldown")

	_, ok := r.GetByCode("ABC123")
	assert.False(t, ok)
}
