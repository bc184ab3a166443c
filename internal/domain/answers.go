package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Answer is one caller-supplied questionnaire answer.
type Answer struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// Answers keeps answers in the order the caller supplied them. Rule conditions
// match the first answer whose key contains the condition text, so order is
// part of the classification input.
type Answers []Answer

// NewAnswers builds Answers from alternating key/value pairs.
func NewAnswers(pairs ...any) Answers {
	answers := make(Answers, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		answers = append(answers, Answer{Key: fmt.Sprint(pairs[i]), Value: pairs[i+1]})
	}
	return answers
}

// Get returns the value stored under an exact key.
func (a Answers) Get(key string) (any, bool) {
	for _, ans := range a {
		if ans.Key == key {
			return ans.Value, true
		}
	}
	return nil, false
}

// UnmarshalJSON decodes a JSON object preserving key order.
func (a *Answers) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*a = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("decoding answers: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("decoding answers: expected object, got %v", tok)
	}

	var out Answers
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("decoding answer key: %w", err)
		}
		key, _ := keyTok.(string)

		var value any
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("decoding answer %q: %w", key, err)
		}
		out = append(out, Answer{Key: key, Value: value})
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("decoding answers: %w", err)
	}

	*a = out
	return nil
}

// MarshalJSON encodes the answers as a JSON object in insertion order.
func (a Answers) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, ans := range a {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(ans.Key)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(ans.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// AnswerText renders an answer value as plain text.
func AnswerText(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		if val {
			return "true"
		}
		return "false"
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}
