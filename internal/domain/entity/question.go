package entity

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// UintArray - пользовательский тип для работы с JSONB-массивами идентификаторов
type UintArray []uint

// Scan реализует интерфейс sql.Scanner для UintArray
// Используется GORM для чтения JSONB данных из базы
func (o *UintArray) Scan(value interface{}) error {
	// Обработка NULL значений из базы данных
	if value == nil {
		*o = UintArray{}
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("failed to unmarshal JSONB value: expected []byte")
	}

	// Обработка пустого массива байтов
	if len(bytes) == 0 {
		*o = UintArray{}
		return nil
	}

	return json.Unmarshal(bytes, o)
}

// Value реализует интерфейс driver.Valuer для UintArray
// Используется GORM для записи UintArray в JSONB в базе
func (o UintArray) Value() (driver.Value, error) {
	if len(o) == 0 {
		return []byte("[]"), nil // Возвращаем пустой JSON массив вместо null
	}
	return json.Marshal(o)
}

// Option представляет один вариант ответа на вопрос
type Option struct {
	ID   uint   `json:"id"`
	Text string `json:"text"`
}

// OptionList - пользовательский тип для хранения вариантов ответа в JSONB
type OptionList []Option

// Scan реализует интерфейс sql.Scanner для OptionList
func (o *OptionList) Scan(value interface{}) error {
	if value == nil {
		*o = OptionList{}
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("failed to unmarshal JSONB value: expected []byte")
	}

	if len(bytes) == 0 {
		*o = OptionList{}
		return nil
	}

	return json.Unmarshal(bytes, o)
}

// Value реализует интерфейс driver.Valuer для OptionList
func (o OptionList) Value() (driver.Value, error) {
	if len(o) == 0 {
		return []byte("[]"), nil
	}
	return json.Marshal(o)
}

// Question представляет вопрос викторины с множественным выбором.
// Правильных вариантов может быть несколько; ответ засчитывается
// только при точном совпадении множеств.
type Question struct {
	ID                   uint       `gorm:"primaryKey" json:"id"`
	QuizID               uint       `gorm:"not null;index" json:"quiz_id"`
	Order                int        `gorm:"not null;default:0" json:"order"`
	Text                 string     `gorm:"size:500;not null" json:"text"`
	Options              OptionList `gorm:"type:jsonb;not null" json:"options"`
	CorrectOptionIDs     UintArray  `gorm:"type:jsonb;not null" json:"-"` // Скрыто от клиента
	TimeLimitOverrideSec int        `gorm:"not null;default:0" json:"time_limit_override_sec"`
	PointValue           int        `gorm:"not null;default:100" json:"point_value"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// TableName определяет имя таблицы для GORM
func (Question) TableName() string {
	return "questions"
}

// HasCorrectOptions проверяет, есть ли у вопроса хотя бы один правильный вариант.
// Вопрос без правильных вариантов считается некорректными данными:
// любой ответ на него оценивается как неправильный.
func (q *Question) HasCorrectOptions() bool {
	return len(q.CorrectOptionIDs) > 0
}

// IsCorrectSet проверяет, совпадает ли выбранное множество вариантов
// с множеством правильных. Порядок и дубликаты не учитываются.
func (q *Question) IsCorrectSet(selected []uint) bool {
	if !q.HasCorrectOptions() {
		return false
	}

	correct := make(map[uint]struct{}, len(q.CorrectOptionIDs))
	for _, id := range q.CorrectOptionIDs {
		correct[id] = struct{}{}
	}

	seen := make(map[uint]struct{}, len(selected))
	for _, id := range selected {
		if _, ok := correct[id]; !ok {
			return false
		}
		seen[id] = struct{}{}
	}

	return len(seen) == len(correct)
}

// IsValidOption проверяет, существует ли вариант с данным идентификатором
func (q *Question) IsValidOption(optionID uint) bool {
	for _, opt := range q.Options {
		if opt.ID == optionID {
			return true
		}
	}
	return false
}

// OptionsCount возвращает количество вариантов ответа
func (q *Question) OptionsCount() int {
	return len(q.Options)
}
