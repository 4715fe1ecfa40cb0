package service

import (
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/yourusername/classquiz-api/internal/domain/entity"
	"github.com/yourusername/classquiz-api/internal/domain/repository"
	apperrors "github.com/yourusername/classquiz-api/internal/pkg/errors"
)

const (
	// Алфавит кода доступа без визуально похожих символов (0/O, 1/I)
	accessCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	accessCodeLength   = 6

	// Сколько раз пробуем сгенерировать код при коллизии
	accessCodeAttempts = 5

	// TTL кеша код -> ID комнаты
	accessCodeCacheTTL = 12 * time.Hour

	// TTL кеша итоговых результатов комнаты
	resultsCacheTTL = 10 * time.Minute
)

// RoomSettings - настройки комнаты при создании
type RoomSettings struct {
	QuizID             uint
	MaxParticipants    int
	TimeMode           string
	TimePerQuestionSec int
	TotalTimeLimitSec  int
	ShuffleQuestions   bool
	AllowLateJoin      bool
	ShowAnswersWhen    string
}

// RoomPresence отдает счетчик занятости комнаты для экрана входа.
// Счетчик ведет актор комнаты в Redis, поэтому он доступен и инстансу,
// которому комната не принадлежит.
type RoomPresence interface {
	Occupancy(roomID uint) (int64, error)
}

// RoomService управляет жизненным циклом комнат вне активной сессии:
// создание, поиск и исторические результаты. Текущим состоянием
// активных комнат владеет движок комнат.
type RoomService struct {
	roomRepo   repository.RoomRepository
	quizRepo   repository.QuizRepository
	resultRepo repository.ResultRepository
	cacheRepo  repository.CacheRepository
	presence   RoomPresence
}

// NewRoomService создает новый сервис комнат
func NewRoomService(
	roomRepo repository.RoomRepository,
	quizRepo repository.QuizRepository,
	resultRepo repository.ResultRepository,
	cacheRepo repository.CacheRepository,
	presence RoomPresence,
) *RoomService {
	return &RoomService{
		roomRepo:   roomRepo,
		quizRepo:   quizRepo,
		resultRepo: resultRepo,
		cacheRepo:  cacheRepo,
		presence:   presence,
	}
}

// CreateRoom создает комнату для викторины и выдает код доступа
func (s *RoomService) CreateRoom(ownerID uint, settings RoomSettings) (*entity.Room, error) {
	quiz, err := s.quizRepo.GetByID(settings.QuizID)
	if err != nil {
		return nil, fmt.Errorf("quiz lookup failed: %w", err)
	}
	if quiz.OwnerID != ownerID {
		return nil, fmt.Errorf("quiz %d belongs to another user: %w", quiz.ID, apperrors.ErrForbidden)
	}

	if err := validateSettings(&settings); err != nil {
		return nil, err
	}

	room := &entity.Room{
		OwnerID:            ownerID,
		QuizID:             settings.QuizID,
		Status:             entity.RoomStatusWaiting,
		MaxParticipants:    settings.MaxParticipants,
		TimeMode:           settings.TimeMode,
		TimePerQuestionSec: settings.TimePerQuestionSec,
		TotalTimeLimitSec:  settings.TotalTimeLimitSec,
		ShuffleQuestions:   settings.ShuffleQuestions,
		AllowLateJoin:      settings.AllowLateJoin,
		ShowAnswersWhen:    settings.ShowAnswersWhen,
	}

	// Коллизия кода доступа - уникальный индекс БД, пробуем с новым кодом
	for attempt := 0; attempt < accessCodeAttempts; attempt++ {
		code, err := generateAccessCode()
		if err != nil {
			return nil, fmt.Errorf("failed to generate access code: %w", err)
		}
		room.AccessCode = code

		err = s.roomRepo.Create(room)
		if err == nil {
			s.cacheAccessCode(room)
			log.Printf("[RoomService] Создана комната #%d с кодом %s для викторины %d", room.ID, room.AccessCode, room.QuizID)
			return room, nil
		}
		if !errors.Is(err, apperrors.ErrConflict) {
			return nil, fmt.Errorf("failed to create room: %w", err)
		}
		log.Printf("[RoomService] Коллизия кода доступа %s, попытка %d", code, attempt+1)
	}

	return nil, fmt.Errorf("access code space exhausted after %d attempts: %w", accessCodeAttempts, apperrors.ErrConflict)
}

// GetRoomByCode возвращает комнату по коду доступа, используя кеш
func (s *RoomService) GetRoomByCode(code string) (*entity.Room, error) {
	if cached, err := s.cacheRepo.Get(accessCodeKey(code)); err == nil {
		var roomID uint
		if _, scanErr := fmt.Sscanf(cached, "%d", &roomID); scanErr == nil {
			if room, dbErr := s.roomRepo.GetByID(roomID); dbErr == nil {
				return room, nil
			}
		}
	}

	room, err := s.roomRepo.GetByAccessCode(code)
	if err != nil {
		return nil, err
	}
	s.cacheAccessCode(room)
	return room, nil
}

// GetRoomByID возвращает комнату по ID
func (s *RoomService) GetRoomByID(roomID uint) (*entity.Room, error) {
	return s.roomRepo.GetByID(roomID)
}

// RoomOccupancy возвращает число участников в комнате по маркерам
// присутствия. Недоступное хранилище не мешает экрану входа:
// в этом случае счетчик нулевой.
func (s *RoomService) RoomOccupancy(roomID uint) int64 {
	n, err := s.presence.Occupancy(roomID)
	if err != nil {
		log.Printf("[RoomService] Не удалось получить занятость комнаты %d: %v", roomID, err)
		return 0
	}
	return n
}

// GetRoomResults возвращает сохраненные результаты завершенной комнаты
func (s *RoomService) GetRoomResults(roomID uint) (*entity.Room, []entity.Participant, error) {
	room, err := s.roomRepo.GetByID(roomID)
	if err != nil {
		return nil, nil, err
	}
	if !room.IsEnded() {
		return nil, nil, fmt.Errorf("room %d has no final results yet: %w", roomID, apperrors.ErrConflict)
	}

	// Итоги завершенной комнаты неизменны, их можно отдавать из кеша
	var cached []entity.Participant
	if err := s.cacheRepo.GetJSON(resultsKey(roomID), &cached); err == nil {
		return room, cached, nil
	}

	participants, err := s.resultRepo.GetRoomResults(roomID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load results for room %d: %w", roomID, err)
	}
	if err := s.cacheRepo.SetJSON(resultsKey(roomID), participants, resultsCacheTTL); err != nil {
		log.Printf("[RoomService] Не удалось закешировать результаты комнаты %d: %v", roomID, err)
	}
	return room, participants, nil
}

// ListRoomsByOwner возвращает комнаты учителя с пагинацией
func (s *RoomService) ListRoomsByOwner(ownerID uint, page, pageSize int) ([]entity.Room, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 10
	}
	return s.roomRepo.ListByOwner(ownerID, pageSize, (page-1)*pageSize)
}

// DeleteRoom удаляет комнату владельца. Активную комнату удалить нельзя.
func (s *RoomService) DeleteRoom(ownerID, roomID uint) error {
	room, err := s.roomRepo.GetByID(roomID)
	if err != nil {
		return err
	}
	if room.OwnerID != ownerID {
		return fmt.Errorf("room %d belongs to another user: %w", roomID, apperrors.ErrForbidden)
	}
	if room.IsActive() || room.IsPaused() {
		return fmt.Errorf("cannot delete a running room: %w", apperrors.ErrConflict)
	}

	if err := s.roomRepo.Delete(roomID); err != nil {
		return fmt.Errorf("failed to delete room %d: %w", roomID, err)
	}
	if err := s.cacheRepo.Delete(accessCodeKey(room.AccessCode)); err != nil {
		log.Printf("[RoomService] Не удалось убрать код %s из кеша: %v", room.AccessCode, err)
	}
	if err := s.cacheRepo.Delete(resultsKey(roomID)); err != nil {
		log.Printf("[RoomService] Не удалось убрать результаты комнаты %d из кеша: %v", roomID, err)
	}
	return nil
}

func (s *RoomService) cacheAccessCode(room *entity.Room) {
	if err := s.cacheRepo.Set(accessCodeKey(room.AccessCode), room.ID, accessCodeCacheTTL); err != nil {
		log.Printf("[RoomService] Не удалось закешировать код %s: %v", room.AccessCode, err)
	}
}

func accessCodeKey(code string) string {
	return "room_code:" + code
}

func resultsKey(roomID uint) string {
	return fmt.Sprintf("room_results:%d", roomID)
}

func validateSettings(settings *RoomSettings) error {
	if settings.MaxParticipants <= 0 {
		settings.MaxParticipants = 30
	}
	switch settings.TimeMode {
	case "":
		settings.TimeMode = entity.TimeModePerQuestion
	case entity.TimeModePerQuestion, entity.TimeModeTotalTime:
	default:
		return fmt.Errorf("unknown time_mode %q: %w", settings.TimeMode, apperrors.ErrValidation)
	}
	if settings.TimeMode == entity.TimeModeTotalTime && settings.TotalTimeLimitSec <= 0 {
		return fmt.Errorf("total_time_limit_sec is required in total_time mode: %w", apperrors.ErrValidation)
	}
	if settings.TimePerQuestionSec <= 0 {
		settings.TimePerQuestionSec = 30
	}
	switch settings.ShowAnswersWhen {
	case "":
		settings.ShowAnswersWhen = entity.ShowAnswersImmediately
	case entity.ShowAnswersImmediately, entity.ShowAnswersAfterQuiz, entity.ShowAnswersNever:
	default:
		return fmt.Errorf("unknown show_answers_when %q: %w", settings.ShowAnswersWhen, apperrors.ErrValidation)
	}
	return nil
}

// generateAccessCode создает криптографически случайный код доступа
func generateAccessCode() (string, error) {
	code := make([]byte, accessCodeLength)
	max := big.NewInt(int64(len(accessCodeAlphabet)))
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		code[i] = accessCodeAlphabet[n.Int64()]
	}
	return string(code), nil
}
