package safeguard

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/orion-triage-server/internal/domain"
)

const anonymousPatient = "ANONYMOUS"

// SaltedHasher derives a pseudonymous identity token from the patient id, the
// instant of the interaction and, when present, two vital signs. Tokens are
// not stable across calls and are not a real biometric digest.
type SaltedHasher struct {
	salt string
}

// NewSaltedHasher creates a hasher. An empty salt leaves the token input unchanged.
func NewSaltedHasher(salt string) *SaltedHasher {
	return &SaltedHasher{salt: salt}
}

// Hash returns the hex SHA-256 of "{id}_{timestamp}[_{hr}_{bp}][_{salt}]".
func (h *SaltedHasher) Hash(patientID string, bio *domain.Biometrics, at time.Time) string {
	if patientID == "" {
		patientID = anonymousPatient
	}

	input := patientID + "_" + at.Format(time.RFC3339Nano)
	if bio != nil {
		input += "_" + vitalOrZero(bio.HeartRate) + "_" + vitalOrZero(bio.BloodPressureSystolic)
	}
	if h.salt != "" {
		input += "_" + h.salt
	}

	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

func vitalOrZero(v *int) string {
	if v == nil {
		return "0"
	}
	return strconv.Itoa(*v)
}
