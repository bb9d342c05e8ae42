package prompt

import "text/template"

// Shared fragments rendered into every family: the business context block
// and the recent-history block.
const (
	contextFragment = `BUSINESS CONTEXT:
We are a premium retailer specializing in {{.Categories}}. Our mission is to
help customers find products that match their needs.
Voice: tone={{.Personality.Tone}}, approach={{.Personality.Approach}},
persistence={{.Personality.PersistenceLevel}}, empathy={{.Personality.EmpathyLevel}},
expertise={{.Personality.ExpertiseLevel}}.
{{if .Items}}
AVAILABLE PRODUCTS:
{{range .Items}}{{.Index}}. {{.Description}}
   Brand: {{.Brand}} | Price: {{.Price}}{{if .Features}}
   Key Features: {{.Features}}{{end}}
{{end}}{{else}}
We offer a variety of quality products to meet our customers' needs.
{{end}}`

	historyFragment = `{{if .History}}RECENT CONVERSATION:
{{range .History}}[{{.Sender}}]: {{.Content}}
{{end}}{{else}}This is the start of the conversation.
{{end}}`
)

const welcomeManipulatorTemplate = contextFragment + `
CUSTOMER INTERACTION: The customer just {{.InteractionType}}.

TASK: Create a warm welcome that acknowledges their interest and naturally
introduces the advertised products.

GUIDELINES:
- Thank them for their interest in a genuine way
- Reference their interaction naturally
- Position yourself as a helpful advisor, not a salesperson
- Keep the welcome under 80 words
- End with a question that encourages them to share their needs

Generate a warm welcome message that feels personal and engaging:`

const welcomeConvincerTemplate = contextFragment + `
CUSTOMER CONTACT: The customer has reached out to us directly via message.

TASK: Create a welcoming response that makes them feel heard and introduces
our ability to help them.

GUIDELINES:
- Professional but friendly welcome
- Thank them for reaching out
- Show interest in understanding their specific needs
- Keep the response under 75 words
- End with an invitation for them to share their needs

Generate a professional welcome that establishes trust and helpfulness:`

const manipulatorTemplate = contextFragment + `
` + historyFragment + `
CUSTOMER'S MESSAGE: "{{.CustomerMessage}}"

TASK: Respond as a knowledgeable product consultant who understands this
customer came from our advertising.

STRATEGY:
- Address their message in the context of the advertised products
- Keep the conversation centered on the products they showed interest in
- Highlight benefits that solve their problems
- Guide them toward a decision or more information
- Keep the response under 90 words with a clear call to action

Generate a focused response that moves the conversation toward a decision:`

const convincerTemplate = contextFragment + `
` + historyFragment + `
CUSTOMER'S MESSAGE: "{{.CustomerMessage}}"

TASK: Respond as a helpful product expert who can guide them to the right
solution.

STRATEGY:
- Show you understand their specific needs and concerns
- Ask clarifying questions about their preferences
- Match products to their expressed needs
- Build trust through expertise and honesty
- Keep the response under 85 words, ending with a helpful question

Generate a helpful response that demonstrates expertise and builds trust:`

const recoveryTemplate = contextFragment + `
` + historyFragment + `
CUSTOMER'S MESSAGE: "{{.CustomerMessage}}"

SITUATION: The customer has shown signs of disinterest or is about to
disengage.

STRATEGY:
- Acknowledge and respect their current position
- Explicitly remove any sales pressure
- Offer something genuinely useful (information, future help)
- Provide an easy way for them to disengage if they prefer
- Keep the response under 70 words, ending on a positive note

Generate a graceful response that prioritizes relationship over immediate sales:`

const crossRecommendTemplate = contextFragment + `
` + historyFragment + `{{if .AlternateItems}}
NEW RECOMMENDATION OPPORTUNITIES:
{{range .AlternateItems}}{{.Index}}. {{.Description}}
   Brand: {{.Brand}} | Price: {{.Price}}{{if .Features}}
   Key Features: {{.Features}}{{end}}
{{end}}{{end}}
CUSTOMER'S LATEST MESSAGE: "{{.CustomerMessage}}"

TASK: The customer seems less interested in the original products.
Gracefully transition to recommending the alternatives above.

STRATEGY:
- Show that you understand their position on the original products
- Introduce the alternatives naturally, without being pushy
- Highlight unique benefits of the new products
- Keep the response under 100 words, ending with a question about
  their preferences

Generate a natural, helpful response that smoothly introduces the alternatives:`

const conclusionTemplate = historyFragment + `
SITUATION: {{if eq .FinalStatus "qualified"}}The customer appears interested
and qualified. Conclude with next steps.

STRATEGY:
- Acknowledge their decision positively
- Briefly explain what happens next (onboarding handoff)
- Assure them of continued support
- Keep the response under 80 words{{else if eq .FinalStatus "uninterested"}}The
customer is not interested at this time. Create a graceful conclusion.

STRATEGY:
- Respect their decision completely, with no pressure or follow-up
- Let them know you are available if things change
- Thank them for their time
- Keep the response under 60 words{{else}}The conversation needs a natural
conclusion.

STRATEGY:
- Briefly acknowledge what was discussed
- Thank them for their time and interest
- Leave the door open for future contact{{end}}

Generate the concluding message:`

const analysisTemplate = historyFragment + `
CUSTOMER'S MESSAGE: "{{.CustomerMessage}}"

TASK: Classify the customer's message. Respond with ONLY a JSON object, no
other text, in exactly this shape:
{
  "interest_level": "high" | "medium" | "low" | "declining",
  "sentiment": "positive" | "neutral" | "negative",
  "intent": "information" | "purchase" | "comparison" | "objection" | "leaving",
  "needs_cross_recommendation": true | false,
  "key_concerns": ["..."],
  "keywords": ["..."]
}

GUIDELINES:
- "keywords" are the product-related terms in the message, lower-cased
- "needs_cross_recommendation" is true when the customer rejects the current
  products but stays open to alternatives
- When unsure, prefer "medium" interest, "neutral" sentiment, "information"
  intent`

// parseTemplates parses every family once. Template parse failures are
// programmer errors, hence the Must.
func parseTemplates() map[Family]*template.Template {
	parse := func(name Family, text string) *template.Template {
		return template.Must(template.New(string(name)).Parse(text))
	}

	return map[Family]*template.Template{
		FamilyWelcomeManipulator: parse(FamilyWelcomeManipulator, welcomeManipulatorTemplate),
		FamilyWelcomeConvincer:   parse(FamilyWelcomeConvincer, welcomeConvincerTemplate),
		FamilyManipulator:        parse(FamilyManipulator, manipulatorTemplate),
		FamilyConvincer:          parse(FamilyConvincer, convincerTemplate),
		FamilyRecovery:           parse(FamilyRecovery, recoveryTemplate),
		FamilyCrossRecommend:     parse(FamilyCrossRecommend, crossRecommendTemplate),
		FamilyConclusion:         parse(FamilyConclusion, conclusionTemplate),
		FamilyAnalysis:           parse(FamilyAnalysis, analysisTemplate),
	}
}
