package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnswersUnmarshalPreservesOrder(t *testing.T) {
	var answers Answers
	err := json.Unmarshal([]byte(`{"zeta": "si", "alpha": true, "mid": 3, "nested": null}`), &answers)
	require.NoError(t, err)

	require.Len(t, answers, 4)
	assert.Equal(t, "zeta", answers[0].Key)
	assert.Equal(t, "alpha", answers[1].Key)
	assert.Equal(t, "mid", answers[2].Key)
	assert.Equal(t, "nested", answers[3].Key)

	assert.Equal(t, "si", AnswerText(answers[0].Value))
	assert.Equal(t, "true", AnswerText(answers[1].Value))
	assert.Equal(t, "3", AnswerText(answers[2].Value))
	assert.Equal(t, "", AnswerText(answers[3].Value))
}

func TestAnswersUnmarshalRejectsArray(t *testing.T) {
	var answers Answers
	err := json.Unmarshal([]byte(`["si"]`), &answers)
	assert.Error(t, err)
}

func TestAnswersMarshalKeepsOrder(t *testing.T) {
	answers := NewAnswers("b", "si", "a", 1)
	data, err := json.Marshal(answers)
	require.NoError(t, err)
	assert.Equal(t, `{"b":"si","a":1}`, string(data))
}

func TestAnswersGet(t *testing.T) {
	answers := NewAnswers("brusco", "si")

	v, ok := answers.Get("brusco")
	assert.True(t, ok)
	assert.Equal(t, "si", v)

	_, ok = answers.Get("disnea")
	assert.False(t, ok)
}

func TestAnswerText(t *testing.T) {
	assert.Equal(t, "1.5", AnswerText(1.5))
	assert.Equal(t, "false", AnswerText(false))
	assert.Equal(t, "7", AnswerText(7))
	assert.Equal(t, "texto", AnswerText("texto"))
}
