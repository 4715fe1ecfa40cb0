package dto

import (
	"time"

	"github.com/yourusername/classquiz-api/internal/domain/entity"
)

// RoomResponse - представление комнаты для API
type RoomResponse struct {
	ID                 uint       `json:"id"`
	AccessCode         string     `json:"access_code"`
	OwnerID            uint       `json:"owner_id"`
	QuizID             uint       `json:"quiz_id"`
	Status             string     `json:"status"`
	MaxParticipants    int        `json:"max_participants"`
	TimeMode           string     `json:"time_mode"`
	TimePerQuestionSec int        `json:"time_per_question_sec"`
	TotalTimeLimitSec  int        `json:"total_time_limit_sec,omitempty"`
	ShuffleQuestions   bool       `json:"shuffle_questions"`
	AllowLateJoin      bool       `json:"allow_late_join"`
	ShowAnswersWhen    string     `json:"show_answers_when"`
	StartedAt          *time.Time `json:"started_at,omitempty"`
	EndedAt            *time.Time `json:"ended_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// NewRoomResponse создает DTO из сущности комнаты
func NewRoomResponse(room *entity.Room) *RoomResponse {
	return &RoomResponse{
		ID:                 room.ID,
		AccessCode:         room.AccessCode,
		OwnerID:            room.OwnerID,
		QuizID:             room.QuizID,
		Status:             room.Status,
		MaxParticipants:    room.MaxParticipants,
		TimeMode:           room.TimeMode,
		TimePerQuestionSec: room.TimePerQuestionSec,
		TotalTimeLimitSec:  room.TotalTimeLimitSec,
		ShuffleQuestions:   room.ShuffleQuestions,
		AllowLateJoin:      room.AllowLateJoin,
		ShowAnswersWhen:    room.ShowAnswersWhen,
		StartedAt:          room.StartedAt,
		EndedAt:            room.EndedAt,
		CreatedAt:          room.CreatedAt,
	}
}

// LobbyResponse - публичное представление комнаты для входа по коду.
// Не раскрывает настроек, влияющих на честность (перемешивание и т.п.).
type LobbyResponse struct {
	RoomID           uint   `json:"room_id"`
	AccessCode       string `json:"access_code"`
	Status           string `json:"status"`
	AllowLateJoin    bool   `json:"allow_late_join"`
	TimeMode         string `json:"time_mode"`
	ParticipantCount int64  `json:"participant_count"`
}

// NewLobbyResponse создает публичное DTO комнаты
func NewLobbyResponse(room *entity.Room, participantCount int64) *LobbyResponse {
	return &LobbyResponse{
		RoomID:           room.ID,
		AccessCode:       room.AccessCode,
		Status:           room.Status,
		AllowLateJoin:    room.AllowLateJoin,
		TimeMode:         room.TimeMode,
		ParticipantCount: participantCount,
	}
}

// ParticipantResultResponse - итоговый результат участника
type ParticipantResultResponse struct {
	ParticipantID  string                 `json:"participant_id"`
	DisplayName    string                 `json:"display_name"`
	Role           string                 `json:"role"`
	Score          int                    `json:"score"`
	CorrectAnswers int                    `json:"correct_answers"`
	Kicked         bool                   `json:"kicked,omitempty"`
	Answers        []AnswerResultResponse `json:"answers,omitempty"`
}

// AnswerResultResponse - один зафиксированный ответ
type AnswerResultResponse struct {
	QuestionID        uint   `json:"question_id"`
	SelectedOptionIDs []uint `json:"selected_option_ids"`
	TimeSpentMs       int64  `json:"time_spent_ms"`
	IsCorrect         bool   `json:"is_correct"`
	ScoreAwarded      int    `json:"score_awarded"`
}

// RoomResultsResponse - полные результаты завершенной комнаты
type RoomResultsResponse struct {
	Room         *RoomResponse               `json:"room"`
	Participants []ParticipantResultResponse `json:"participants"`
	Total        int                         `json:"total"`
}

// NewRoomResultsResponse собирает результаты комнаты в DTO
func NewRoomResultsResponse(room *entity.Room, participants []entity.Participant) *RoomResultsResponse {
	resp := &RoomResultsResponse{
		Room:         NewRoomResponse(room),
		Participants: make([]ParticipantResultResponse, 0, len(participants)),
		Total:        len(participants),
	}
	for i := range participants {
		p := &participants[i]
		pr := ParticipantResultResponse{
			ParticipantID:  p.ID,
			DisplayName:    p.DisplayName,
			Role:           p.Role,
			Score:          p.Score,
			CorrectAnswers: p.CorrectAnswers,
			Kicked:         p.Kicked,
			Answers:        make([]AnswerResultResponse, 0, len(p.Answers)),
		}
		for _, a := range p.Answers {
			pr.Answers = append(pr.Answers, AnswerResultResponse{
				QuestionID:        a.QuestionID,
				SelectedOptionIDs: []uint(a.SelectedOptionIDs),
				TimeSpentMs:       a.TimeSpentMs,
				IsCorrect:         a.IsCorrect,
				ScoreAwarded:      a.ScoreAwarded,
			})
		}
		resp.Participants = append(resp.Participants, pr)
	}
	return resp
}

// PaginatedRoomsResponse - список комнат с пагинацией
type PaginatedRoomsResponse struct {
	Rooms    []RoomResponse `json:"rooms"`
	Total    int64          `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
}

// NewPaginatedRoomsResponse создает пагинированный список комнат
func NewPaginatedRoomsResponse(rooms []entity.Room, total int64, page, pageSize int) *PaginatedRoomsResponse {
	resp := &PaginatedRoomsResponse{
		Rooms:    make([]RoomResponse, 0, len(rooms)),
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}
	for i := range rooms {
		resp.Rooms = append(resp.Rooms, *NewRoomResponse(&rooms[i]))
	}
	return resp
}
