package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuestion_IsCorrectSet_ExactMatch(t *testing.T) {
	// Arrange
	question := &Question{
		ID:     1,
		QuizID: 1,
		Text:   "Какие из этих языков компилируемые?",
		Options: OptionList{
			{ID: 1, Text: "Python"},
			{ID: 2, Text: "Go"},
			{ID: 3, Text: "JavaScript"},
			{ID: 4, Text: "Rust"},
		},
		CorrectOptionIDs: UintArray{2, 4},
		PointValue:       100,
	}

	// Act & Assert: точное совпадение множеств, порядок не важен
	assert.True(t, question.IsCorrectSet([]uint{2, 4}), "Точное совпадение должно засчитываться")
	assert.True(t, question.IsCorrectSet([]uint{4, 2}), "Порядок вариантов не должен влиять на результат")
}

func TestQuestion_IsCorrectSet_PartialMatch(t *testing.T) {
	// Arrange
	question := &Question{
		CorrectOptionIDs: UintArray{2, 4},
	}

	// Act & Assert: подмножество и надмножество не засчитываются
	assert.False(t, question.IsCorrectSet([]uint{2}), "Подмножество правильных вариантов не засчитывается")
	assert.False(t, question.IsCorrectSet([]uint{2, 4, 1}), "Лишний вариант делает ответ неправильным")
	assert.False(t, question.IsCorrectSet([]uint{1, 3}), "Полностью неправильный набор не засчитывается")
	assert.False(t, question.IsCorrectSet([]uint{}), "Пустой выбор не засчитывается")
}

func TestQuestion_IsCorrectSet_Duplicates(t *testing.T) {
	// Arrange
	question := &Question{
		CorrectOptionIDs: UintArray{2, 4},
	}

	// Act & Assert: дубликаты в выборе схлопываются
	assert.True(t, question.IsCorrectSet([]uint{2, 2, 4}), "Дубликаты не должны мешать точному совпадению")
	assert.False(t, question.IsCorrectSet([]uint{2, 2}), "Дубликат не заменяет недостающий вариант")
}

func TestQuestion_IsCorrectSet_NoCorrectOptions(t *testing.T) {
	// Arrange: некорректные данные - вопрос без правильных вариантов
	question := &Question{
		CorrectOptionIDs: UintArray{},
	}

	// Act & Assert: любой ответ оценивается как неправильный
	assert.False(t, question.IsCorrectSet([]uint{1}), "Вопрос без правильных вариантов не засчитывает ответы")
	assert.False(t, question.IsCorrectSet([]uint{}), "Пустой выбор тоже не засчитывается")
	assert.False(t, question.HasCorrectOptions())
}

func TestQuestion_IsValidOption(t *testing.T) {
	// Arrange
	question := &Question{
		Options: OptionList{
			{ID: 10, Text: "A"},
			{ID: 20, Text: "B"},
		},
	}

	// Act & Assert
	assert.True(t, question.IsValidOption(10))
	assert.True(t, question.IsValidOption(20))
	assert.False(t, question.IsValidOption(30), "Несуществующий вариант должен быть невалидным")
	assert.False(t, question.IsValidOption(0))
}

func TestQuestion_OptionsCount(t *testing.T) {
	// Arrange
	testCases := []struct {
		name     string
		options  OptionList
		expected int
	}{
		{"4 варианта", OptionList{{ID: 1}, {ID: 2}, {ID: 3}, {ID: 4}}, 4},
		{"2 варианта", OptionList{{ID: 1}, {ID: 2}}, 2},
		{"0 вариантов", OptionList{}, 0},
		{"nil варианты", nil, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			question := &Question{Options: tc.options}
			assert.Equal(t, tc.expected, question.OptionsCount())
		})
	}
}

func TestQuestion_TableName(t *testing.T) {
	question := Question{}
	assert.Equal(t, "questions", question.TableName(), "TableName должен возвращать 'questions'")
}

// Тесты для UintArray (JSONB сериализация)

func TestUintArray_Scan_ValidJSON(t *testing.T) {
	// Arrange
	jsonBytes := []byte(`[1, 2, 3]`)
	var arr UintArray

	// Act
	err := arr.Scan(jsonBytes)

	// Assert
	require.NoError(t, err, "Scan не должен возвращать ошибку для валидного JSON")
	assert.Equal(t, UintArray{1, 2, 3}, arr)
}

func TestUintArray_Scan_NullValue(t *testing.T) {
	// Arrange
	var arr UintArray

	// Act
	err := arr.Scan(nil)

	// Assert
	require.NoError(t, err, "Scan не должен возвращать ошибку для nil")
	assert.Len(t, arr, 0, "Для nil должен вернуться пустой массив")
}

func TestUintArray_Scan_EmptyBytes(t *testing.T) {
	// Arrange
	var arr UintArray

	// Act
	err := arr.Scan([]byte{})

	// Assert
	require.NoError(t, err, "Scan не должен возвращать ошибку для пустого массива байт")
	assert.Len(t, arr, 0)
}

func TestUintArray_Scan_InvalidType(t *testing.T) {
	// Arrange
	var arr UintArray

	// Act: передаём неподдерживаемый тип
	err := arr.Scan("not a byte slice")

	// Assert
	assert.Error(t, err, "Scan должен возвращать ошибку для неподдерживаемого типа")
}

func TestUintArray_Value_NonEmpty(t *testing.T) {
	// Arrange
	arr := UintArray{1, 2, 3}

	// Act
	val, err := arr.Value()

	// Assert
	require.NoError(t, err)

	bytes, ok := val.([]byte)
	require.True(t, ok, "Value должен возвращать []byte")
	assert.Equal(t, `[1,2,3]`, string(bytes))
}

func TestUintArray_Value_Empty(t *testing.T) {
	// Arrange
	var arr UintArray

	// Act
	val, err := arr.Value()

	// Assert
	require.NoError(t, err)

	bytes, ok := val.([]byte)
	require.True(t, ok, "Value должен возвращать []byte")
	assert.Equal(t, "[]", string(bytes), "nil должен сериализоваться в []")
}

func TestOptionList_ScanValue_RoundTrip(t *testing.T) {
	// Arrange
	options := OptionList{
		{ID: 1, Text: "Да"},
		{ID: 2, Text: "Нет"},
	}

	// Act
	val, err := options.Value()
	require.NoError(t, err)

	var decoded OptionList
	err = decoded.Scan(val)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, options, decoded)
}
