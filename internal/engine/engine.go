// Package engine implements the conversation state machine. It owns the
// per-conversation message history: all mutation goes through here, under a
// per-conversation lock, so messages are processed strictly in arrival
// order. The matcher, composer and gateway only ever see read-only
// snapshots.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/manipulatorai/engage-api/internal/apperr"
	"github.com/manipulatorai/engage-api/internal/config"
	"github.com/manipulatorai/engage-api/internal/domain"
	"github.com/manipulatorai/engage-api/internal/gateway"
	"github.com/manipulatorai/engage-api/internal/matcher"
	"github.com/manipulatorai/engage-api/internal/platform/logger"
	"github.com/manipulatorai/engage-api/internal/prompt"
	"github.com/manipulatorai/engage-api/internal/store"
)

// Engine drives conversations through their lifecycle: welcome, reply,
// status transitions, conclusion.
type Engine struct {
	conversations store.ConversationStore
	catalog       store.CatalogStore
	gw            gateway.Gateway
	composer      *prompt.Composer

	threshold      float64
	maxMatches     int
	messageCeiling int

	locks *keyedMutex
}

// New creates an Engine.
func New(
	conversations store.ConversationStore,
	catalog store.CatalogStore,
	gw gateway.Gateway,
	composer *prompt.Composer,
	cfg config.ConversationConfig,
) *Engine {
	maxMatches := cfg.MaxMatches
	if maxMatches <= 0 {
		maxMatches = 3
	}
	return &Engine{
		conversations:  conversations,
		catalog:        catalog,
		gw:             gw,
		composer:       composer,
		threshold:      cfg.MatchThreshold,
		maxMatches:     maxMatches,
		messageCeiling: defaultMessageCeiling,
		locks:          newKeyedMutex(),
	}
}

// StartConversation creates a new active conversation and generates its
// welcome message. If the gateway fails, the customer still gets a generic
// fallback greeting; only a persistence failure is an error. A
// store.ErrActiveConversationExists passes through untouched so the caller
// can attach to the existing conversation instead.
func (e *Engine) StartConversation(
	ctx context.Context,
	customerID, businessID string,
	branch domain.ConversationBranch,
	itemRefs []string,
	interactionType string,
) (*domain.Conversation, string, error) {
	log := logger.FromContext(ctx)

	conv, err := domain.NewConversation(customerID, businessID, branch)
	if err != nil {
		return nil, "", apperr.Validation(err.Error(), err)
	}
	conv.ItemRefs = itemRefs

	items, err := e.referencedItems(ctx, conv)
	if err != nil {
		return nil, "", err
	}

	welcome := gateway.FallbackWelcome
	req, err := e.composer.Welcome(branch, items, interactionType)
	if err == nil {
		if text, genErr := e.gw.Generate(ctx, req); genErr == nil {
			welcome = text
		} else {
			log.Warn("welcome generation failed, using fallback",
				slog.String("conversation_id", conv.ID.String()),
				slog.String("error", genErr.Error()))
		}
	}

	conv.Messages = append(conv.Messages, domain.NewMessage(domain.SenderAgent, welcome))

	if err := e.conversations.Create(ctx, conv); err != nil {
		if store.IsDuplicateError(err) {
			return nil, "", err
		}
		return nil, "", apperr.Database("failed to create conversation", err)
	}

	log.Info("conversation started",
		slog.String("conversation_id", conv.ID.String()),
		slog.String("customer_id", customerID),
		slog.String("branch", string(branch)))

	return conv, welcome, nil
}

// ProcessMessage appends the customer message, classifies it, generates a
// branch-appropriate reply, and advances the conversation status. Calls for
// the same conversation are serialized; a gateway transport failure yields
// a fallback reply with the status left untouched.
func (e *Engine) ProcessMessage(
	ctx context.Context,
	conversationID uuid.UUID,
	text string,
) (string, domain.ConversationStatus, error) {
	if text == "" {
		return "", "", apperr.Validation("message content cannot be empty", nil)
	}

	e.locks.Lock(conversationID)
	defer e.locks.Unlock(conversationID)

	log := logger.FromContext(ctx)

	conv, err := e.conversations.GetByID(ctx, conversationID)
	if err != nil {
		if store.IsNotFoundError(err) {
			return "", "", err
		}
		return "", "", apperr.Database("failed to load conversation", err)
	}

	// A new inbound message reopens a concluded conversation in place.
	if conv.Status.IsTerminal() {
		if err := e.transition(ctx, conv, domain.ConversationStatusActive, "reopened by customer message"); err != nil {
			return "", "", err
		}
	}

	// Classify before persisting anything so a transport failure leaves
	// the conversation exactly as it was, plus the two new messages.
	analysis, classified := e.classify(ctx, conv, text)

	customerMsg := domain.NewMessage(domain.SenderCustomer, text)
	customerMsg.Intent = string(analysis.Intent)
	customerMsg.Sentiment = string(analysis.Sentiment)
	if err := e.appendMessage(ctx, conv, customerMsg); err != nil {
		return "", "", err
	}

	if !classified {
		// Transport failure: deterministic fallback reply, no status
		// computed from a failed classification.
		reply := gateway.FallbackReply
		agentMsg := domain.NewMessage(domain.SenderAgent, reply)
		if err := e.appendMessage(ctx, conv, agentMsg); err != nil {
			return "", "", err
		}
		log.Warn("classification unavailable, fallback reply sent",
			slog.String("conversation_id", conv.ID.String()))
		return reply, conv.Status, nil
	}

	reply, err := e.generateReply(ctx, conv, text, analysis)
	if err != nil {
		return "", "", err
	}
	if err := e.appendMessage(ctx, conv, domain.NewMessage(domain.SenderAgent, reply)); err != nil {
		return "", "", err
	}

	newStatus := decideStatus(analysis, conv.CustomerMessageCount(), e.messageCeiling)
	if newStatus != conv.Status {
		if err := e.transition(ctx, conv, newStatus, "message analysis"); err != nil {
			return "", "", err
		}
		if newStatus.IsTerminal() {
			e.appendConclusion(ctx, conv, newStatus)
		}
	}

	return reply, conv.Status, nil
}

// Metrics summarizes a business's conversations by status.
type Metrics struct {
	Total             int     `json:"total_conversations"`
	Active            int     `json:"active"`
	Qualified         int     `json:"qualified"`
	Uninterested      int     `json:"uninterested"`
	QualificationRate float64 `json:"qualification_rate"`
}

// GetMetrics computes conversation metrics for a business.
func (e *Engine) GetMetrics(ctx context.Context, businessID string) (*Metrics, error) {
	counts, err := e.conversations.CountByStatus(ctx, businessID)
	if err != nil {
		return nil, apperr.Database("failed to count conversations", err)
	}

	m := &Metrics{
		Active:       counts[domain.ConversationStatusActive],
		Qualified:    counts[domain.ConversationStatusQualified],
		Uninterested: counts[domain.ConversationStatusUninterested],
	}
	m.Total = m.Active + m.Qualified + m.Uninterested
	if m.Total > 0 {
		m.QualificationRate = float64(m.Qualified) / float64(m.Total)
	}
	return m, nil
}

// classify runs the analysis prompt. The bool result is false only on a
// transport failure; an answer that does not parse still counts as
// classified via the keyword heuristics.
func (e *Engine) classify(
	ctx context.Context,
	conv *domain.Conversation,
	text string,
) (domain.MessageAnalysis, bool) {
	log := logger.FromContext(ctx)

	req, err := e.composer.Analysis(text, conv.Messages)
	if err != nil {
		log.Error("failed to compose analysis request",
			slog.String("conversation_id", conv.ID.String()),
			slog.String("error", err.Error()))
		return heuristicAnalysis(text), true
	}

	answer, err := e.gw.Generate(ctx, req)
	if err != nil {
		return domain.MessageAnalysis{}, false
	}

	if analysis, ok := parseAnalysis(answer); ok {
		return analysis, true
	}

	log.Debug("analysis answer unparseable, using keyword heuristics",
		slog.String("conversation_id", conv.ID.String()))
	return heuristicAnalysis(text), true
}

// generateReply picks the reply strategy (standard, recovery, or
// cross-recommendation) and generates the agent's answer, falling back to
// deterministic text when generation fails.
func (e *Engine) generateReply(
	ctx context.Context,
	conv *domain.Conversation,
	text string,
	analysis domain.MessageAnalysis,
) (string, error) {
	log := logger.FromContext(ctx)

	items, err := e.relevantItems(ctx, conv, analysis)
	if err != nil {
		return "", err
	}

	var req gateway.Request
	if analysis.NeedsCrossRecommendation || analysis.InterestLevel == domain.InterestDeclining {
		alternatives, altErr := e.alternativeItems(ctx, conv, analysis)
		if altErr != nil {
			return "", altErr
		}
		if len(alternatives) > 0 {
			req, err = e.composer.CrossRecommendation(text, items, alternatives, conv.Messages)
		} else {
			req, err = e.composer.Reply(conv.Branch, conv.Status, text, items, conv.Messages)
		}
	} else {
		req, err = e.composer.Reply(conv.Branch, conv.Status, text, items, conv.Messages)
	}
	if err != nil {
		return "", apperr.Conversation("failed to compose reply", err)
	}

	reply, err := e.gw.Generate(ctx, req)
	if err != nil {
		log.Warn("reply generation failed, using fallback",
			slog.String("conversation_id", conv.ID.String()),
			slog.String("error", err.Error()))
		return gateway.FallbackReply, nil
	}
	return reply, nil
}

// referencedItems loads the conversation's anchored items, each carrying
// full relevance since the customer interacted with them directly.
func (e *Engine) referencedItems(
	ctx context.Context,
	conv *domain.Conversation,
) ([]matcher.ScoredItem, error) {
	if len(conv.ItemRefs) == 0 {
		return nil, nil
	}
	items, err := e.catalog.GetByIDs(ctx, conv.ItemRefs)
	if err != nil {
		return nil, apperr.Database("failed to load referenced items", err)
	}
	scored := make([]matcher.ScoredItem, 0, len(items))
	for _, item := range items {
		scored = append(scored, matcher.ScoredItem{Item: item, Score: 1})
	}
	return scored, nil
}

// relevantItems selects the items feeding the reply prompt. The
// manipulator branch stays anchored to its referenced items; the convincer
// branch matches the whole catalog against the message keywords.
func (e *Engine) relevantItems(
	ctx context.Context,
	conv *domain.Conversation,
	analysis domain.MessageAnalysis,
) ([]matcher.ScoredItem, error) {
	if conv.Branch == domain.BranchManipulator && len(conv.ItemRefs) > 0 {
		return e.referencedItems(ctx, conv)
	}

	if len(analysis.Keywords) == 0 {
		return e.referencedItems(ctx, conv)
	}

	catalog, err := e.catalog.List(ctx)
	if err != nil {
		return nil, apperr.Database("failed to list catalog", err)
	}
	return matcher.Top(analysis.Keywords, catalog, e.threshold, e.maxMatches), nil
}

// alternativeItems matches items outside the conversation's current
// references, for cross-recommendation.
func (e *Engine) alternativeItems(
	ctx context.Context,
	conv *domain.Conversation,
	analysis domain.MessageAnalysis,
) ([]matcher.ScoredItem, error) {
	if len(analysis.Keywords) == 0 {
		return nil, nil
	}
	candidates, err := e.catalog.ListExcluding(ctx, conv.ItemRefs)
	if err != nil {
		return nil, apperr.Database("failed to list alternatives", err)
	}
	// Cross-recommendation casts a wider net than the standard match.
	return matcher.Top(analysis.Keywords, candidates, e.threshold/2, e.maxMatches), nil
}

// appendConclusion synthesizes the closing message for a terminal status.
// Failures only cost the closing nicety, never the transition itself.
func (e *Engine) appendConclusion(
	ctx context.Context,
	conv *domain.Conversation,
	status domain.ConversationStatus,
) {
	log := logger.FromContext(ctx)

	conclusion := gateway.FallbackConclusion
	if req, err := e.composer.Conclusion(status, nil, conv.Messages); err == nil {
		if text, genErr := e.gw.Generate(ctx, req); genErr == nil {
			conclusion = text
		}
	}

	if err := e.appendMessage(ctx, conv, domain.NewMessage(domain.SenderAgent, conclusion)); err != nil {
		log.Warn("failed to append conclusion message",
			slog.String("conversation_id", conv.ID.String()),
			slog.String("error", err.Error()))
	}
}

// appendMessage persists a message and mirrors it on the in-memory
// snapshot.
func (e *Engine) appendMessage(
	ctx context.Context,
	conv *domain.Conversation,
	msg domain.Message,
) error {
	if err := e.conversations.AppendMessage(ctx, conv.ID, msg); err != nil {
		return apperr.Database("failed to append message", err)
	}
	conv.Messages = append(conv.Messages, msg)
	return nil
}

// transition validates and persists a status change, logging old and new
// status for every transition.
func (e *Engine) transition(
	ctx context.Context,
	conv *domain.Conversation,
	status domain.ConversationStatus,
	reason string,
) error {
	log := logger.FromContext(ctx)
	oldStatus := conv.Status

	if err := conv.UpdateStatus(status); err != nil {
		return apperr.Conversation(
			fmt.Sprintf("cannot transition from %s to %s", oldStatus, status), err)
	}
	if err := e.conversations.UpdateStatus(ctx, conv.ID, status); err != nil {
		conv.Status = oldStatus
		return apperr.Database("failed to persist status", err)
	}

	log.Info("conversation status changed",
		slog.String("conversation_id", conv.ID.String()),
		slog.String("old_status", string(oldStatus)),
		slog.String("new_status", string(status)),
		slog.String("reason", reason))
	return nil
}
