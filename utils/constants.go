package utils

// Application constants
const (
	// Application name
	AppName = "PayFlow"

	// API version
	APIVersion = "v1"

	// Default port
	DefaultPort = "8080"

	// Default payment amount in minor currency units (paise)
	DefaultPaymentAmount = 50000

	// Default currency
	DefaultCurrency = "INR"

	// Maximum stored webhook response body length
	MaxResponseBodyLength = 1000
)
