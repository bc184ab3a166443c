package safeguard

import "context"

// PassThroughGate stands in for a zero-knowledge eligibility proof. When
// enabled it admits every caller, anonymous ones included.
type PassThroughGate struct {
	enabled bool
}

// NewPassThroughGate creates a gate that is consulted only when enabled.
func NewPassThroughGate(enabled bool) *PassThroughGate {
	return &PassThroughGate{enabled: enabled}
}

func (g *PassThroughGate) Enabled() bool {
	return g.enabled
}

func (g *PassThroughGate) Check(ctx context.Context, patientID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return true, nil
}
