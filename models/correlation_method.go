package models

// CorrelationMethod is the closed set of ways a ClickLog can be converted
type CorrelationMethod string

const (
	CorrelationMethodManual      CorrelationMethod = "manual"
	CorrelationMethodMLItemMatch CorrelationMethod = "ml_item_match"
	CorrelationMethodEnhanced    CorrelationMethod = "enhanced"
	CorrelationMethodTime        CorrelationMethod = "time"
	CorrelationMethodOrphan      CorrelationMethod = "orphan"
)

// Confidence is the closed set of confidence levels
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// AllCorrelationMethods lists methods in tier order
var AllCorrelationMethods = []CorrelationMethod{
	CorrelationMethodManual,
	CorrelationMethodMLItemMatch,
	CorrelationMethodEnhanced,
	CorrelationMethodTime,
	CorrelationMethodOrphan,
}

// Valid reports whether m is a known method
func (m CorrelationMethod) Valid() bool {
	switch m {
	case CorrelationMethodManual, CorrelationMethodMLItemMatch, CorrelationMethodEnhanced,
		CorrelationMethodTime, CorrelationMethodOrphan:
		return true
	}
	return false
}

// Confidence is the only place a confidence level is derived.
// Unknown methods map to low.
func (m CorrelationMethod) Confidence() Confidence {
	switch m {
	case CorrelationMethodManual, CorrelationMethodMLItemMatch:
		return ConfidenceHigh
	case CorrelationMethodEnhanced:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

func (m CorrelationMethod) String() string { return string(m) }

func (c Confidence) String() string { return string(c) }
