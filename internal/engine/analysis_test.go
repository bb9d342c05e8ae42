package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manipulatorai/engage-api/internal/domain"
)

func TestParseAnalysis(t *testing.T) {
	answer := `{"interest_level":"high","sentiment":"positive","intent":"purchase",
		"needs_cross_recommendation":false,"keywords":["laptop","gaming"]}`

	analysis, ok := parseAnalysis(answer)
	require.True(t, ok)
	assert.Equal(t, domain.InterestHigh, analysis.InterestLevel)
	assert.Equal(t, domain.IntentPurchase, analysis.Intent)
	assert.Equal(t, []string{"laptop", "gaming"}, analysis.Keywords)
}

func TestParseAnalysisStripsMarkdownFence(t *testing.T) {
	answer := "```json\n{\"interest_level\":\"low\",\"sentiment\":\"neutral\",\"intent\":\"information\"}\n```"

	analysis, ok := parseAnalysis(answer)
	require.True(t, ok)
	assert.Equal(t, domain.InterestLow, analysis.InterestLevel)
}

func TestParseAnalysisRejectsGarbage(t *testing.T) {
	_, ok := parseAnalysis("I think the customer is quite interested!")
	assert.False(t, ok)

	// Valid JSON with unknown enum values must also fail the parse.
	_, ok = parseAnalysis(`{"interest_level":"extreme","sentiment":"positive","intent":"purchase"}`)
	assert.False(t, ok)
}

func TestHeuristicAnalysis(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		interest domain.InterestLevel
		intent   domain.Intent
	}{
		{
			name:     "negative signal",
			text:     "I'm not interested, this is too expensive",
			interest: domain.InterestDeclining,
			intent:   domain.IntentObjection,
		},
		{
			name:     "positive signal",
			text:     "how much does the laptop cost?",
			interest: domain.InterestHigh,
			intent:   domain.IntentPurchase,
		},
		{
			name:     "neutral question",
			text:     "what colors does it come in?",
			interest: domain.InterestMedium,
			intent:   domain.IntentInformation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			analysis := heuristicAnalysis(tt.text)
			assert.Equal(t, tt.interest, analysis.InterestLevel)
			assert.Equal(t, tt.intent, analysis.Intent)
		})
	}
}

func TestExtractKeywords(t *testing.T) {
	keywords := extractKeywords("does the gaming laptop have a good screen? gaming is my thing")
	assert.Equal(t, []string{"does", "gaming", "laptop", "have", "good", "screen", "thing"}, keywords)
}

func TestDecideStatus(t *testing.T) {
	tests := []struct {
		name     string
		analysis domain.MessageAnalysis
		count    int
		expected domain.ConversationStatus
	}{
		{
			name: "purchase with high interest qualifies",
			analysis: domain.MessageAnalysis{
				Intent: domain.IntentPurchase, InterestLevel: domain.InterestHigh,
			},
			expected: domain.ConversationStatusQualified,
		},
		{
			name: "purchase with medium interest qualifies",
			analysis: domain.MessageAnalysis{
				Intent: domain.IntentPurchase, InterestLevel: domain.InterestMedium,
			},
			expected: domain.ConversationStatusQualified,
		},
		{
			name: "purchase with low interest stays active",
			analysis: domain.MessageAnalysis{
				Intent: domain.IntentPurchase, InterestLevel: domain.InterestLow,
			},
			expected: domain.ConversationStatusActive,
		},
		{
			name: "declining interest disengages",
			analysis: domain.MessageAnalysis{
				Intent: domain.IntentInformation, InterestLevel: domain.InterestDeclining,
			},
			expected: domain.ConversationStatusUninterested,
		},
		{
			name: "leaving intent disengages",
			analysis: domain.MessageAnalysis{
				Intent: domain.IntentLeaving, InterestLevel: domain.InterestMedium,
			},
			expected: domain.ConversationStatusUninterested,
		},
		{
			name: "low interest past the ceiling disengages",
			analysis: domain.MessageAnalysis{
				Intent: domain.IntentInformation, InterestLevel: domain.InterestLow,
			},
			count:    11,
			expected: domain.ConversationStatusUninterested,
		},
		{
			name: "low interest under the ceiling stays active",
			analysis: domain.MessageAnalysis{
				Intent: domain.IntentInformation, InterestLevel: domain.InterestLow,
			},
			count:    5,
			expected: domain.ConversationStatusActive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, decideStatus(tt.analysis, tt.count, defaultMessageCeiling))
		})
	}
}
