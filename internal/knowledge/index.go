package knowledge

import (
	"fmt"

	"github.com/orion-triage-server/internal/domain"
)

// Index is the read-only protocol lookup shared by all requests. Iteration
// follows knowledge base order, which makes free-text detection deterministic.
type Index struct {
	order     []string
	protocols map[string]*domain.SymptomProtocol
}

// NewIndex builds an index; duplicate root symptoms are rejected.
func NewIndex(protocols []domain.SymptomProtocol) (*Index, error) {
	idx := &Index{
		order:     make([]string, 0, len(protocols)),
		protocols: make(map[string]*domain.SymptomProtocol, len(protocols)),
	}
	for i := range protocols {
		p := protocols[i]
		key := Normalize(p.Symptom)
		if _, exists := idx.protocols[key]; exists {
			return nil, fmt.Errorf("duplicate symptom protocol %q", key)
		}
		p.Symptom = key
		idx.protocols[key] = &p
		idx.order = append(idx.order, key)
	}
	return idx, nil
}

// LoadIndex loads the knowledge base at path and indexes it.
func LoadIndex(path string) (*Index, error) {
	protocols, err := Load(path)
	if err != nil {
		return nil, err
	}
	return NewIndex(protocols)
}

// Lookup returns the protocol for an exact normalized key.
func (i *Index) Lookup(symptom string) (*domain.SymptomProtocol, bool) {
	p, ok := i.protocols[Normalize(symptom)]
	return p, ok
}

// Symptoms lists the root symptom keys in load order.
func (i *Index) Symptoms() []string {
	return append([]string(nil), i.order...)
}

// Len returns the number of protocols.
func (i *Index) Len() int {
	return len(i.order)
}
