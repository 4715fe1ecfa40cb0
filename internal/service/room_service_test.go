package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/classquiz-api/internal/domain/entity"
	apperrors "github.com/yourusername/classquiz-api/internal/pkg/errors"
)

// --- Моки ---

type MockRoomRepoForService struct {
	mock.Mock
}

func (m *MockRoomRepoForService) Create(room *entity.Room) error {
	args := m.Called(room)
	return args.Error(0)
}

func (m *MockRoomRepoForService) GetByID(id uint) (*entity.Room, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Room), args.Error(1)
}

func (m *MockRoomRepoForService) GetByAccessCode(code string) (*entity.Room, error) {
	args := m.Called(code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Room), args.Error(1)
}

func (m *MockRoomRepoForService) Update(room *entity.Room) error {
	args := m.Called(room)
	return args.Error(0)
}

func (m *MockRoomRepoForService) UpdateStatus(roomID uint, status string) error {
	args := m.Called(roomID, status)
	return args.Error(0)
}

func (m *MockRoomRepoForService) ListByOwner(ownerID uint, limit, offset int) ([]entity.Room, int64, error) {
	args := m.Called(ownerID, limit, offset)
	return args.Get(0).([]entity.Room), args.Get(1).(int64), args.Error(2)
}

func (m *MockRoomRepoForService) Delete(id uint) error {
	args := m.Called(id)
	return args.Error(0)
}

type MockQuizRepoForService struct {
	mock.Mock
}

func (m *MockQuizRepoForService) Create(quiz *entity.Quiz) error {
	args := m.Called(quiz)
	return args.Error(0)
}

func (m *MockQuizRepoForService) GetByID(id uint) (*entity.Quiz, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Quiz), args.Error(1)
}

func (m *MockQuizRepoForService) GetWithQuestions(id uint) (*entity.Quiz, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Quiz), args.Error(1)
}

func (m *MockQuizRepoForService) Update(quiz *entity.Quiz) error {
	args := m.Called(quiz)
	return args.Error(0)
}

func (m *MockQuizRepoForService) ListByOwner(ownerID uint, limit, offset int) ([]entity.Quiz, int64, error) {
	args := m.Called(ownerID, limit, offset)
	return args.Get(0).([]entity.Quiz), args.Get(1).(int64), args.Error(2)
}

func (m *MockQuizRepoForService) Delete(id uint) error {
	args := m.Called(id)
	return args.Error(0)
}

type MockResultRepoForService struct {
	mock.Mock
}

func (m *MockResultRepoForService) SaveFinalResults(roomID uint, participants []entity.Participant) error {
	args := m.Called(roomID, participants)
	return args.Error(0)
}

func (m *MockResultRepoForService) SaveSubmission(submission *entity.AnswerSubmission) error {
	args := m.Called(submission)
	return args.Error(0)
}

func (m *MockResultRepoForService) GetRoomResults(roomID uint) ([]entity.Participant, error) {
	args := m.Called(roomID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.Participant), args.Error(1)
}

func (m *MockResultRepoForService) GetParticipantAnswers(participantID string) ([]entity.AnswerSubmission, error) {
	args := m.Called(participantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.AnswerSubmission), args.Error(1)
}

type MockCacheRepoForService struct {
	mock.Mock
}

func (m *MockCacheRepoForService) Set(key string, value interface{}, expiration time.Duration) error {
	args := m.Called(key, value, expiration)
	return args.Error(0)
}

func (m *MockCacheRepoForService) Get(key string) (string, error) {
	args := m.Called(key)
	return args.String(0), args.Error(1)
}

func (m *MockCacheRepoForService) Delete(key string) error {
	args := m.Called(key)
	return args.Error(0)
}

func (m *MockCacheRepoForService) Increment(key string) (int64, error) {
	args := m.Called(key)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCacheRepoForService) SetJSON(key string, value interface{}, expiration time.Duration) error {
	args := m.Called(key, value, expiration)
	return args.Error(0)
}

func (m *MockCacheRepoForService) GetJSON(key string, dest interface{}) error {
	args := m.Called(key, dest)
	return args.Error(0)
}

func (m *MockCacheRepoForService) ExpireAt(key string, expiration time.Time) error {
	args := m.Called(key, expiration)
	return args.Error(0)
}

type MockPresenceForService struct {
	mock.Mock
}

func (m *MockPresenceForService) Occupancy(roomID uint) (int64, error) {
	args := m.Called(roomID)
	return args.Get(0).(int64), args.Error(1)
}

// --- Хелперы ---

func newRoomServiceFixture() (*RoomService, *MockRoomRepoForService, *MockQuizRepoForService, *MockResultRepoForService, *MockCacheRepoForService, *MockPresenceForService) {
	roomRepo := new(MockRoomRepoForService)
	quizRepo := new(MockQuizRepoForService)
	resultRepo := new(MockResultRepoForService)
	cacheRepo := new(MockCacheRepoForService)
	presence := new(MockPresenceForService)
	svc := NewRoomService(roomRepo, quizRepo, resultRepo, cacheRepo, presence)
	return svc, roomRepo, quizRepo, resultRepo, cacheRepo, presence
}

func ownedQuiz() *entity.Quiz {
	return &entity.Quiz{ID: 5, OwnerID: 100, Title: "Дроби"}
}

// --- Тесты ---

func TestRoomService_CreateRoom_Success(t *testing.T) {
	// Arrange
	svc, roomRepo, quizRepo, _, cacheRepo, _ := newRoomServiceFixture()
	quizRepo.On("GetByID", uint(5)).Return(ownedQuiz(), nil)
	roomRepo.On("Create", mock.AnythingOfType("*entity.Room")).Run(func(args mock.Arguments) {
		args.Get(0).(*entity.Room).ID = 1
	}).Return(nil).Once()
	cacheRepo.On("Set", mock.AnythingOfType("string"), mock.Anything, accessCodeCacheTTL).Return(nil)

	// Act
	room, err := svc.CreateRoom(100, RoomSettings{QuizID: 5})

	// Assert
	require.NoError(t, err)
	assert.Len(t, room.AccessCode, accessCodeLength, "код доступа должен иметь фиксированную длину")
	assert.Equal(t, entity.RoomStatusWaiting, room.Status, "новая комната начинает в лобби")
	assert.Equal(t, 30, room.MaxParticipants, "должен применяться дефолтный лимит")
	assert.Equal(t, entity.TimeModePerQuestion, room.TimeMode)
	roomRepo.AssertExpectations(t)
	cacheRepo.AssertExpectations(t)
}

func TestRoomService_CreateRoom_RetriesOnCodeCollision(t *testing.T) {
	// Arrange
	svc, roomRepo, quizRepo, _, cacheRepo, _ := newRoomServiceFixture()
	quizRepo.On("GetByID", uint(5)).Return(ownedQuiz(), nil)
	roomRepo.On("Create", mock.AnythingOfType("*entity.Room")).Return(apperrors.ErrConflict).Once()
	roomRepo.On("Create", mock.AnythingOfType("*entity.Room")).Return(nil).Once()
	cacheRepo.On("Set", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	// Act
	room, err := svc.CreateRoom(100, RoomSettings{QuizID: 5})

	// Assert
	require.NoError(t, err, "коллизия кода должна приводить к повторной попытке")
	assert.NotEmpty(t, room.AccessCode)
	roomRepo.AssertExpectations(t)
}

func TestRoomService_CreateRoom_ForeignQuiz(t *testing.T) {
	// Arrange
	svc, _, quizRepo, _, _, _ := newRoomServiceFixture()
	quizRepo.On("GetByID", uint(5)).Return(ownedQuiz(), nil)

	// Act
	_, err := svc.CreateRoom(999, RoomSettings{QuizID: 5})

	// Assert
	assert.ErrorIs(t, err, apperrors.ErrForbidden, "чужую викторину использовать нельзя")
}

func TestRoomService_CreateRoom_InvalidSettings(t *testing.T) {
	svc, _, quizRepo, _, _, _ := newRoomServiceFixture()
	quizRepo.On("GetByID", uint(5)).Return(ownedQuiz(), nil)

	testCases := []struct {
		name     string
		settings RoomSettings
	}{
		{"неизвестный режим времени", RoomSettings{QuizID: 5, TimeMode: "sprint"}},
		{"total_time без лимита", RoomSettings{QuizID: 5, TimeMode: entity.TimeModeTotalTime}},
		{"неизвестная политика показа ответов", RoomSettings{QuizID: 5, ShowAnswersWhen: "sometimes"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateRoom(100, tc.settings)
			assert.ErrorIs(t, err, apperrors.ErrValidation)
		})
	}
}

func TestRoomService_GetRoomByCode_CacheHit(t *testing.T) {
	// Arrange
	svc, roomRepo, _, _, cacheRepo, _ := newRoomServiceFixture()
	cacheRepo.On("Get", "room_code:ABC234").Return("7", nil)
	roomRepo.On("GetByID", uint(7)).Return(&entity.Room{ID: 7, AccessCode: "ABC234"}, nil)

	// Act
	room, err := svc.GetRoomByCode("ABC234")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, uint(7), room.ID)
	roomRepo.AssertNotCalled(t, "GetByAccessCode", mock.Anything)
}

func TestRoomService_GetRoomByCode_CacheMissFallsBackToDB(t *testing.T) {
	// Arrange
	svc, roomRepo, _, _, cacheRepo, _ := newRoomServiceFixture()
	cacheRepo.On("Get", "room_code:XYZ789").Return("", apperrors.ErrNotFound)
	roomRepo.On("GetByAccessCode", "XYZ789").Return(&entity.Room{ID: 9, AccessCode: "XYZ789"}, nil)
	cacheRepo.On("Set", "room_code:XYZ789", uint(9), accessCodeCacheTTL).Return(nil)

	// Act
	room, err := svc.GetRoomByCode("XYZ789")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, uint(9), room.ID)
	cacheRepo.AssertExpectations(t)
}

func TestRoomService_GetRoomResults_RequiresEndedRoom(t *testing.T) {
	// Arrange
	svc, roomRepo, _, _, _, _ := newRoomServiceFixture()
	roomRepo.On("GetByID", uint(3)).Return(&entity.Room{ID: 3, Status: entity.RoomStatusActive}, nil)

	// Act
	_, _, err := svc.GetRoomResults(3)

	// Assert
	assert.ErrorIs(t, err, apperrors.ErrConflict, "результаты доступны только после завершения")
}

func TestRoomService_GetRoomResults_ReturnsLeaderboardOrder(t *testing.T) {
	// Arrange
	svc, roomRepo, _, resultRepo, cacheRepo, _ := newRoomServiceFixture()
	ended := time.Now()
	roomRepo.On("GetByID", uint(3)).Return(&entity.Room{ID: 3, Status: entity.RoomStatusEnded, EndedAt: &ended}, nil)
	cacheRepo.On("GetJSON", "room_results:3", mock.Anything).Return(apperrors.ErrNotFound)
	resultRepo.On("GetRoomResults", uint(3)).Return([]entity.Participant{
		{ID: "a", Score: 250},
		{ID: "b", Score: 100},
	}, nil)
	cacheRepo.On("SetJSON", "room_results:3", mock.Anything, resultsCacheTTL).Return(nil)

	// Act
	room, participants, err := svc.GetRoomResults(3)

	// Assert
	require.NoError(t, err)
	assert.True(t, room.IsEnded())
	require.Len(t, participants, 2)
	assert.GreaterOrEqual(t, participants[0].Score, participants[1].Score)
	cacheRepo.AssertExpectations(t)
}

func TestRoomService_GetRoomResults_ServesFromCache(t *testing.T) {
	// Arrange
	svc, roomRepo, _, resultRepo, cacheRepo, _ := newRoomServiceFixture()
	ended := time.Now()
	roomRepo.On("GetByID", uint(3)).Return(&entity.Room{ID: 3, Status: entity.RoomStatusEnded, EndedAt: &ended}, nil)
	cacheRepo.On("GetJSON", "room_results:3", mock.Anything).Run(func(args mock.Arguments) {
		*args.Get(1).(*[]entity.Participant) = []entity.Participant{{ID: "a", Score: 250}}
	}).Return(nil)

	// Act
	_, participants, err := svc.GetRoomResults(3)

	// Assert: итоги неизменны, повторный запрос не ходит в БД
	require.NoError(t, err)
	require.Len(t, participants, 1)
	assert.Equal(t, "a", participants[0].ID)
	resultRepo.AssertNotCalled(t, "GetRoomResults", mock.Anything)
}

func TestRoomService_RoomOccupancy(t *testing.T) {
	svc, _, _, _, _, presence := newRoomServiceFixture()
	presence.On("Occupancy", uint(7)).Return(int64(12), nil).Once()

	assert.Equal(t, int64(12), svc.RoomOccupancy(7))

	// Недоступный Redis не валит экран входа, просто показываем ноль
	presence.On("Occupancy", uint(8)).Return(int64(0), assert.AnError).Once()
	assert.Equal(t, int64(0), svc.RoomOccupancy(8))
}

func TestRoomService_DeleteRoom_RejectsRunningRoom(t *testing.T) {
	// Arrange
	svc, roomRepo, _, _, _, _ := newRoomServiceFixture()
	roomRepo.On("GetByID", uint(3)).Return(&entity.Room{ID: 3, OwnerID: 100, Status: entity.RoomStatusActive}, nil)

	// Act
	err := svc.DeleteRoom(100, 3)

	// Assert
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	roomRepo.AssertNotCalled(t, "Delete", mock.Anything)
}

func TestRoomService_DeleteRoom_InvalidatesCaches(t *testing.T) {
	// Arrange
	svc, roomRepo, _, _, cacheRepo, _ := newRoomServiceFixture()
	roomRepo.On("GetByID", uint(3)).Return(&entity.Room{ID: 3, OwnerID: 100, AccessCode: "ABC234", Status: entity.RoomStatusEnded}, nil)
	roomRepo.On("Delete", uint(3)).Return(nil)
	cacheRepo.On("Delete", "room_code:ABC234").Return(nil).Once()
	cacheRepo.On("Delete", "room_results:3").Return(nil).Once()

	// Act
	err := svc.DeleteRoom(100, 3)

	// Assert: вместе с комнатой уходят и кеш кода, и кеш результатов
	require.NoError(t, err)
	cacheRepo.AssertExpectations(t)
}

func TestRoomService_DeleteRoom_OnlyOwner(t *testing.T) {
	svc, roomRepo, _, _, _, _ := newRoomServiceFixture()
	roomRepo.On("GetByID", uint(3)).Return(&entity.Room{ID: 3, OwnerID: 100, Status: entity.RoomStatusWaiting}, nil)

	err := svc.DeleteRoom(999, 3)

	assert.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestGenerateAccessCode_UsesSafeAlphabet(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code, err := generateAccessCode()
		require.NoError(t, err)
		require.Len(t, code, accessCodeLength)
		for _, ch := range code {
			assert.Contains(t, accessCodeAlphabet, string(ch), "код содержит только символы безопасного алфавита")
		}
		seen[code] = true
	}
	// 50 кодов из пространства 32^6 практически не должны совпадать
	assert.Greater(t, len(seen), 45, "коды должны быть разнообразными")
}
