package gateway

// Deterministic fallback texts used whenever generation fails. Model
// errors are never surfaced to the end customer.
const (
	// FallbackWelcome opens a conversation when the welcome generation
	// fails.
	FallbackWelcome = "Hello! How can I help you today?"

	// FallbackReply answers a customer message when reply generation
	// fails.
	FallbackReply = "I apologize for the confusion. Could you please repeat that?"

	// FallbackConclusion closes a conversation when the conclusion
	// generation fails.
	FallbackConclusion = "Thank you for your time! Feel free to reach out anytime."
)
