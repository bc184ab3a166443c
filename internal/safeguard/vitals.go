package safeguard

import "github.com/orion-triage-server/internal/domain"

const (
	vitalCritical       = "CRITICAL"
	heartRateUpperBound = 120
	heartRateLowerBound = 40
)

// VitalAlerts flags vital signs outside their critical thresholds. A nil or
// empty reading yields an empty map.
func VitalAlerts(bio *domain.Biometrics) map[string]string {
	alerts := map[string]string{}
	if bio == nil {
		return alerts
	}

	if hr := bio.HeartRate; hr != nil && *hr != 0 && (*hr > heartRateUpperBound || *hr < heartRateLowerBound) {
		alerts["heart_rate"] = vitalCritical
	}

	return alerts
}
