package domain

// Intent classifies what a customer message is trying to do.
type Intent string

// Possible message intents.
const (
	IntentInformation Intent = "information"
	IntentPurchase    Intent = "purchase"
	IntentComparison  Intent = "comparison"
	IntentObjection   Intent = "objection"
	IntentLeaving     Intent = "leaving"
)

// InterestLevel grades how engaged the customer currently is.
type InterestLevel string

// Possible interest levels.
const (
	InterestHigh      InterestLevel = "high"
	InterestMedium    InterestLevel = "medium"
	InterestLow       InterestLevel = "low"
	InterestDeclining InterestLevel = "declining"
)

// Sentiment is the overall tone of a customer message.
type Sentiment string

// Possible sentiments.
const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// MessageAnalysis is the result of classifying a single customer message.
// It drives both the status transition decision and the reply strategy.
type MessageAnalysis struct {
	InterestLevel            InterestLevel `json:"interest_level"`
	Sentiment                Sentiment     `json:"sentiment"`
	Intent                   Intent        `json:"intent"`
	NeedsCrossRecommendation bool          `json:"needs_cross_recommendation"`
	KeyConcerns              []string      `json:"key_concerns,omitempty"`
	Keywords                 []string      `json:"keywords,omitempty"`
}

// IsValidIntent checks if the given intent is a known Intent.
func IsValidIntent(intent Intent) bool {
	switch intent {
	case IntentInformation, IntentPurchase, IntentComparison, IntentObjection, IntentLeaving:
		return true
	default:
		return false
	}
}

// IsValidInterestLevel checks if the given level is a known InterestLevel.
func IsValidInterestLevel(level InterestLevel) bool {
	switch level {
	case InterestHigh, InterestMedium, InterestLow, InterestDeclining:
		return true
	default:
		return false
	}
}

// IsValidSentiment checks if the given sentiment is a known Sentiment.
func IsValidSentiment(s Sentiment) bool {
	switch s {
	case SentimentPositive, SentimentNeutral, SentimentNegative:
		return true
	default:
		return false
	}
}
