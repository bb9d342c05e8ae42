package engine

import (
	"encoding/json"
	"strings"

	"github.com/manipulatorai/engage-api/internal/domain"
)

// Keyword lists for the deterministic fallback classifier, used when the
// model's analysis answer does not parse.
var (
	negativeSignals = []string{
		"not interested", "no thanks", "stop", "leave me alone", "too expensive",
		"don't want", "do not want", "unsubscribe", "go away", "never",
	}
	positiveSignals = []string{
		"interested", "buy", "purchase", "how much", "price", "want it",
		"sounds good", "love it", "great", "yes",
	}
)

// parseAnalysis decodes the model's classification answer. Models sometimes
// wrap JSON in a markdown fence; that is stripped before decoding. Unknown
// enum values fail the parse so the caller falls back to heuristics.
func parseAnalysis(text string) (domain.MessageAnalysis, bool) {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var analysis domain.MessageAnalysis
	if err := json.Unmarshal([]byte(cleaned), &analysis); err != nil {
		return domain.MessageAnalysis{}, false
	}
	if !domain.IsValidInterestLevel(analysis.InterestLevel) ||
		!domain.IsValidSentiment(analysis.Sentiment) ||
		!domain.IsValidIntent(analysis.Intent) {
		return domain.MessageAnalysis{}, false
	}
	return analysis, true
}

// heuristicAnalysis classifies a message from keyword signals alone. It is
// intentionally conservative: without a clear signal the customer stays
// medium-interest, neutral, information-seeking.
func heuristicAnalysis(text string) domain.MessageAnalysis {
	lowered := strings.ToLower(text)

	analysis := domain.MessageAnalysis{
		InterestLevel: domain.InterestMedium,
		Sentiment:     domain.SentimentNeutral,
		Intent:        domain.IntentInformation,
		Keywords:      extractKeywords(lowered),
	}

	for _, signal := range negativeSignals {
		if strings.Contains(lowered, signal) {
			analysis.InterestLevel = domain.InterestDeclining
			analysis.Sentiment = domain.SentimentNegative
			analysis.Intent = domain.IntentObjection
			return analysis
		}
	}
	for _, signal := range positiveSignals {
		if strings.Contains(lowered, signal) {
			analysis.InterestLevel = domain.InterestHigh
			analysis.Sentiment = domain.SentimentPositive
			analysis.Intent = domain.IntentPurchase
			return analysis
		}
	}
	if strings.Contains(lowered, "?") {
		analysis.Intent = domain.IntentInformation
	}
	return analysis
}

// maxHeuristicKeywords bounds how many words the fallback classifier feeds
// the matcher.
const maxHeuristicKeywords = 10

// extractKeywords pulls candidate matching terms out of a lower-cased
// message: words longer than three characters, deduplicated, in order.
func extractKeywords(lowered string) []string {
	fields := strings.FieldsFunc(lowered, func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})

	seen := make(map[string]struct{})
	keywords := make([]string, 0, len(fields))
	for _, word := range fields {
		if len(word) <= 3 {
			continue
		}
		if _, ok := seen[word]; ok {
			continue
		}
		seen[word] = struct{}{}
		keywords = append(keywords, word)
		if len(keywords) == maxHeuristicKeywords {
			break
		}
	}
	return keywords
}

// defaultMessageCeiling is how many customer messages a low-interest
// conversation gets before it is concluded as uninterested.
const defaultMessageCeiling = 10

// decideStatus computes the next conversation status from the message
// analysis and the number of customer messages so far.
func decideStatus(
	analysis domain.MessageAnalysis,
	customerMessages int,
	ceiling int,
) domain.ConversationStatus {
	if ceiling <= 0 {
		ceiling = defaultMessageCeiling
	}

	if analysis.Intent == domain.IntentPurchase &&
		(analysis.InterestLevel == domain.InterestHigh || analysis.InterestLevel == domain.InterestMedium) {
		return domain.ConversationStatusQualified
	}
	if analysis.InterestLevel == domain.InterestDeclining ||
		analysis.Intent == domain.IntentObjection ||
		analysis.Intent == domain.IntentLeaving {
		return domain.ConversationStatusUninterested
	}
	if customerMessages > ceiling && analysis.InterestLevel == domain.InterestLow {
		return domain.ConversationStatusUninterested
	}
	return domain.ConversationStatusActive
}
