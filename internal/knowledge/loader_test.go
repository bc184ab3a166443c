package knowledge

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orion-triage-server/internal/domain"
)

func TestLoad_TestdataKnowledgeBase(t *testing.T) {
	protocols, err := Load(filepath.Join("testdata", "knowledge_base.json"))
	require.NoError(t, err)
	require.Len(t, protocols, 3)

	chest := protocols[0]
	assert.Equal(t, "dolor toracico", chest.Symptom, "root symptom should be normalized")
	assert.Len(t, chest.Questions, 4)
	assert.Equal(t, domain.AnswerBoolean, chest.Questions[0].AnswerType)
	assert.Len(t, chest.Rules, 4)
	assert.Equal(t, domain.CodeEmergency, chest.Rules[1].Code)
	assert.Equal(t, "irradiacion", chest.Rules[1].Condition.Question)

	headache := protocols[1]
	assert.Equal(t, domain.AnswerNumeric, headache.Questions[0].AnswerType)
	assert.Equal(t, domain.AnswerCategorical, headache.Questions[1].AnswerType)
}

func TestParse_RejectsUnknownCode(t *testing.T) {
	doc := `[{"sintoma_raiz": "fiebre", "reglas_clasificacion": [
		{"codigo_triage": "D9", "condiciones": {"pregunta": "x", "respuesta_esperada": "si"}}
	]}]`

	_, err := Parse(strings.NewReader(doc))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidUrgencyCode)
}

func TestParse_LowercaseCodeAccepted(t *testing.T) {
	doc := `[{"sintoma_raiz": "fiebre", "reglas_clasificacion": [
		{"codigo_triage": " d2 ", "condiciones": {"pregunta": "x", "respuesta_esperada": "si"}}
	]}]`

	protocols, err := Parse(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, domain.CodeUrgent, protocols[0].Rules[0].Code)
}

func TestParse_RequiresSymptom(t *testing.T) {
	_, err := Parse(strings.NewReader(`[{"sintoma_raiz": "  "}]`))
	require.Error(t, err)

	var vErr *domain.ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestParse_InvalidJSON(t *testing.T) {
	_, err := Parse(strings.NewReader(`{not json`))
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestNormalize(t *testing.T) {
	// "sí" written with a combining acute accent folds to the composed form.
	decomposed := "Si\u0301 "
	assert.Equal(t, "sí", Normalize(decomposed))
	assert.Equal(t, "dolor toracico", Normalize("  DOLOR Toracico "))
}

func TestIndex(t *testing.T) {
	idx, err := LoadIndex(filepath.Join("testdata", "knowledge_base.json"))
	require.NoError(t, err)

	assert.Equal(t, 3, idx.Len())
	assert.Equal(t, []string{"dolor toracico", "cefalea", "dolor abdominal"}, idx.Symptoms())

	p, ok := idx.Lookup("  Dolor TORACICO")
	require.True(t, ok)
	assert.Equal(t, "dolor toracico", p.Symptom)

	_, ok = idx.Lookup("toracico")
	assert.False(t, ok, "lookup must not be fuzzy")
}

func TestNewIndex_RejectsDuplicates(t *testing.T) {
	_, err := NewIndex([]domain.SymptomProtocol{{Symptom: "Fiebre"}, {Symptom: "fiebre "}})
	assert.Error(t, err)
}
