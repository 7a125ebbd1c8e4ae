package provider

// Exact failure messages the provider returns when a credential has consumed
// its quota. Matched verbatim; any other failure is a plain provider error.
const (
	msgDailyLimitConsumed = "Validation service blocked: Your plan: free-plan-daily total included usage has been consumed, please upgrade your plan here, https://moralis.io/pricing"
	msgSupportBlocked     = "SUPPORT BLOCKED: Please contact support@moralis.io"
)

// IsQuotaExhausted reports whether a provider failure message means the
// credential used for the request is spent and the pool should rotate.
func IsQuotaExhausted(message string) bool {
	return message == msgDailyLimitConsumed || message == msgSupportBlocked
}
