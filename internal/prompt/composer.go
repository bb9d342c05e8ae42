// Package prompt composes AI Gateway requests from conversation state.
// A template family is selected per (branch, status) pair; the business
// personality is data, merged into every template, so tone changes never
// require a code change. Composition is pure: identical inputs always
// yield an identical request.
package prompt

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"unicode/utf8"

	"github.com/manipulatorai/engage-api/internal/domain"
	"github.com/manipulatorai/engage-api/internal/gateway"
	"github.com/manipulatorai/engage-api/internal/matcher"
)

// Family identifies one of the prompt template families.
type Family string

// Template families.
const (
	FamilyWelcomeManipulator Family = "welcome_manipulator"
	FamilyWelcomeConvincer   Family = "welcome_convincer"
	FamilyManipulator        Family = "manipulator"
	FamilyConvincer          Family = "convincer"
	FamilyRecovery           Family = "recovery"
	FamilyCrossRecommend     Family = "cross_recommendation"
	FamilyConclusion         Family = "conclusion"
	FamilyAnalysis           Family = "analysis"
)

// Personality is the externally configurable voice of the agent. It is
// merged into every template as data.
type Personality struct {
	Tone             string `json:"tone"`
	Approach         string `json:"approach"`
	PersistenceLevel string `json:"persistence_level"`
	EmpathyLevel     string `json:"empathy_level"`
	ExpertiseLevel   string `json:"expertise_level"`
}

// DefaultPersonality returns the stock consultative-sales voice.
func DefaultPersonality() Personality {
	return Personality{
		Tone:             "friendly_professional",
		Approach:         "consultative_sales",
		PersistenceLevel: "polite_persistent",
		EmpathyLevel:     "high",
		ExpertiseLevel:   "product_expert",
	}
}

// Bounds on how much context is injected into a single prompt.
const (
	maxPromptItems   = 3
	maxPromptHistory = 5
	maxSnippetLen    = 100
)

// Token budgets per request kind.
const (
	welcomeMaxTokens    = 150
	replyMaxTokens      = 200
	conclusionMaxTokens = 120
	analysisMaxTokens   = 150

	replyTemperature = 0.7
	// Classification wants stable output, so it runs nearly greedy.
	analysisTemperature = 0.1
)

// Composer builds gateway requests from conversation snapshots. It never
// mutates the history or items passed to it.
type Composer struct {
	personality Personality
	templates   map[Family]*template.Template
}

// NewComposer creates a Composer with the given personality.
func NewComposer(personality Personality) *Composer {
	return &Composer{
		personality: personality,
		templates:   parseTemplates(),
	}
}

// FamilyFor selects the template family for a reply in the given branch and
// status. Uninterested conversations get the recovery family regardless of
// branch.
func FamilyFor(branch domain.ConversationBranch, status domain.ConversationStatus) Family {
	if status == domain.ConversationStatusUninterested {
		return FamilyRecovery
	}
	if branch == domain.BranchManipulator {
		return FamilyManipulator
	}
	return FamilyConvincer
}

// promptData is the single data shape every template renders from.
type promptData struct {
	Personality     Personality
	Items           []itemData
	AlternateItems  []itemData
	History         []historyLine
	CustomerMessage string
	InteractionType string
	FinalStatus     string
	Categories      string
}

type itemData struct {
	Index       int
	Description string
	Brand       string
	Price       string
	Features    string
}

type historyLine struct {
	Sender  string
	Content string
}

// Welcome composes the welcome-protocol request for a conversation's first
// agent message.
func (c *Composer) Welcome(
	branch domain.ConversationBranch,
	items []matcher.ScoredItem,
	interactionType string,
) (gateway.Request, error) {
	family := FamilyWelcomeConvincer
	if branch == domain.BranchManipulator {
		family = FamilyWelcomeManipulator
	}

	data := c.baseData(items, nil)
	data.InteractionType = interactionDescription(interactionType)

	system, err := c.render(family, data)
	if err != nil {
		return gateway.Request{}, err
	}

	return gateway.Request{
		Messages: []gateway.Message{
			{Role: gateway.RoleSystem, Content: system},
		},
		MaxTokens:   welcomeMaxTokens,
		Temperature: replyTemperature,
	}, nil
}

// Reply composes a branch-appropriate request for responding to a customer
// message. At most the 3 highest-scored items and the last 5 history
// entries are injected to bound prompt size.
func (c *Composer) Reply(
	branch domain.ConversationBranch,
	status domain.ConversationStatus,
	customerMessage string,
	items []matcher.ScoredItem,
	history []domain.Message,
) (gateway.Request, error) {
	data := c.baseData(items, history)
	data.CustomerMessage = customerMessage

	system, err := c.render(FamilyFor(branch, status), data)
	if err != nil {
		return gateway.Request{}, err
	}

	return gateway.Request{
		Messages: []gateway.Message{
			{Role: gateway.RoleSystem, Content: system},
			{Role: gateway.RoleUser, Content: customerMessage},
		},
		MaxTokens:   replyMaxTokens,
		Temperature: replyTemperature,
	}, nil
}

// CrossRecommendation composes a request that pivots a drifting customer
// toward alternative items from other categories.
func (c *Composer) CrossRecommendation(
	customerMessage string,
	original, alternatives []matcher.ScoredItem,
	history []domain.Message,
) (gateway.Request, error) {
	data := c.baseData(original, history)
	data.CustomerMessage = customerMessage
	data.AlternateItems = formatItems(alternatives)

	system, err := c.render(FamilyCrossRecommend, data)
	if err != nil {
		return gateway.Request{}, err
	}

	return gateway.Request{
		Messages: []gateway.Message{
			{Role: gateway.RoleSystem, Content: system},
			{Role: gateway.RoleUser, Content: customerMessage},
		},
		MaxTokens:   replyMaxTokens,
		Temperature: replyTemperature,
	}, nil
}

// Conclusion composes the closing-message request appended when a
// conversation reaches a terminal status.
func (c *Composer) Conclusion(
	finalStatus domain.ConversationStatus,
	items []matcher.ScoredItem,
	history []domain.Message,
) (gateway.Request, error) {
	data := c.baseData(items, history)
	data.FinalStatus = string(finalStatus)

	system, err := c.render(FamilyConclusion, data)
	if err != nil {
		return gateway.Request{}, err
	}

	return gateway.Request{
		Messages: []gateway.Message{
			{Role: gateway.RoleSystem, Content: system},
		},
		MaxTokens:   conclusionMaxTokens,
		Temperature: replyTemperature,
	}, nil
}

// Analysis composes the classification request for a customer message. The
// model is instructed to answer with a single JSON object; callers fall
// back to keyword heuristics when the answer does not parse.
func (c *Composer) Analysis(
	customerMessage string,
	history []domain.Message,
) (gateway.Request, error) {
	data := c.baseData(nil, history)
	data.CustomerMessage = customerMessage

	system, err := c.render(FamilyAnalysis, data)
	if err != nil {
		return gateway.Request{}, err
	}

	return gateway.Request{
		Messages: []gateway.Message{
			{Role: gateway.RoleSystem, Content: system},
			{Role: gateway.RoleUser, Content: customerMessage},
		},
		MaxTokens:   analysisMaxTokens,
		Temperature: analysisTemperature,
	}, nil
}

// baseData assembles the shared template inputs, applying the item and
// history bounds.
func (c *Composer) baseData(items []matcher.ScoredItem, history []domain.Message) promptData {
	bounded := items
	if len(bounded) > maxPromptItems {
		bounded = bounded[:maxPromptItems]
	}

	recent := history
	if len(recent) > maxPromptHistory {
		recent = recent[len(recent)-maxPromptHistory:]
	}

	lines := make([]historyLine, 0, len(recent))
	for _, msg := range recent {
		lines = append(lines, historyLine{
			Sender:  string(msg.Sender),
			Content: snippet(msg.Content),
		})
	}

	return promptData{
		Personality: c.personality,
		Items:       formatItems(bounded),
		History:     lines,
		Categories:  categories(bounded),
	}
}

func (c *Composer) render(family Family, data promptData) (string, error) {
	tmpl, ok := c.templates[family]
	if !ok {
		return "", fmt.Errorf("unknown template family %q", family)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute %s template: %w", family, err)
	}
	return buf.String(), nil
}

func formatItems(items []matcher.ScoredItem) []itemData {
	out := make([]itemData, 0, len(items))
	for i, scored := range items {
		item := scored.Item
		price := item.Attributes.Price
		if price == "" {
			price = "Contact for pricing"
		}
		brand := item.Attributes.Brand
		if brand == "" {
			brand = "Quality Brand"
		}

		features := make([]string, 0, 4)
		if item.Attributes.Category != "" {
			features = append(features, item.Attributes.Category)
		}
		for _, tag := range item.Tags {
			if len(features) >= 4 {
				break
			}
			features = append(features, tag)
		}

		out = append(out, itemData{
			Index:       i + 1,
			Description: snippet(item.Description),
			Brand:       brand,
			Price:       price,
			Features:    strings.Join(features, ", "),
		})
	}
	return out
}

// categories joins the distinct item categories in first-seen order so the
// rendered business context is deterministic.
func categories(items []matcher.ScoredItem) string {
	seen := make(map[string]struct{})
	ordered := make([]string, 0, len(items))
	for _, scored := range items {
		cat := scored.Item.Attributes.Category
		if cat == "" {
			continue
		}
		if _, ok := seen[cat]; ok {
			continue
		}
		seen[cat] = struct{}{}
		ordered = append(ordered, cat)
	}
	if len(ordered) == 0 {
		return "various categories"
	}
	return strings.Join(ordered, ", ")
}

// snippet truncates s to maxSnippetLen bytes without splitting a rune.
func snippet(s string) string {
	if len(s) <= maxSnippetLen {
		return s
	}
	cut := maxSnippetLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// interactionDescription maps an ad interaction type to the phrase used in
// the manipulator welcome.
func interactionDescription(interactionType string) string {
	switch interactionType {
	case "like":
		return "liked our post"
	case "comment":
		return "commented on our post"
	case "click":
		return "clicked on our advertisement"
	case "share":
		return "shared our content"
	default:
		return "interacted with our content"
	}
}
