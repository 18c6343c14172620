package utils

import (
	"time"
)

// Correlation window and batch bounds
const (
	DefaultCorrelationWindowHours = 48
	MinCorrelationWindowHours     = 1
	MaxCorrelationWindowHours     = 168

	DefaultCorrelationOrderLimit = 50
	MinCorrelationOrderLimit     = 10
	MaxCorrelationOrderLimit     = 50
)

// Stats defaults
const (
	// DefaultStatsRange is used when a dashboard query omits its date range
	DefaultStatsRange = 30 * 24 * time.Hour

	DefaultTopCustomers     = 5
	DefaultTopListLimit     = 10
	MaxTopListLimit         = 100
	DefaultRecentConversion = 10
	MaxRecentConversion     = 100

	// DateLayout is the day format used by daily series and query params
	DateLayout = "2006-01-02"
)

// CORS and security constants
const (
	// CORSMaxAge is the maximum age for CORS preflight requests (24 hours)
	CORSMaxAge = 86400
)

// Correlation lease
const (
	CorrelationLeaseName = "correlation:conversions"
	DefaultLeaseTTL      = 5 * time.Minute
)
