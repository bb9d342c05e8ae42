package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/manipulatorai/engage-api/internal/apperr"
	"github.com/manipulatorai/engage-api/internal/domain"
	"github.com/manipulatorai/engage-api/internal/platform/logger"
	"github.com/manipulatorai/engage-api/internal/queue"
	"github.com/manipulatorai/engage-api/internal/store"
	"github.com/manipulatorai/engage-api/internal/tasks"
)

// ConversationEngine is the engine surface the orchestrator drives.
type ConversationEngine interface {
	StartConversation(
		ctx context.Context,
		customerID, businessID string,
		branch domain.ConversationBranch,
		itemRefs []string,
		interactionType string,
	) (*domain.Conversation, string, error)

	ProcessMessage(
		ctx context.Context,
		conversationID uuid.UUID,
		text string,
	) (string, domain.ConversationStatus, error)
}

// Orchestrator routes customer interactions into conversations, either
// inline or through the task queue. It owns the attach-or-create decision:
// an interaction always lands on the customer's single active conversation
// when one exists.
type Orchestrator struct {
	engine        ConversationEngine
	conversations store.ConversationStore
	dispatcher    *tasks.Dispatcher
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(
	engine ConversationEngine,
	conversations store.ConversationStore,
	dispatcher *tasks.Dispatcher,
) *Orchestrator {
	return &Orchestrator{
		engine:        engine,
		conversations: conversations,
		dispatcher:    dispatcher,
	}
}

// Ensure Orchestrator drives the task handlers.
var _ tasks.Orchestrator = (*Orchestrator)(nil)

// ProcessInteraction handles a normalized interaction synchronously. An
// existing active conversation is continued; otherwise one is created on
// the branch the interaction implies. Losing the creation race to a
// concurrent interaction attaches to the winner's conversation instead of
// failing.
func (o *Orchestrator) ProcessInteraction(
	ctx context.Context,
	interaction domain.Interaction,
) (tasks.ConversationResult, error) {
	if err := interaction.Validate(); err != nil {
		return tasks.ConversationResult{}, apperr.Validation(err.Error(), err)
	}

	log := logger.FromContext(ctx)

	active, err := o.conversations.FindActiveByCustomer(ctx,
		interaction.CustomerID, interaction.BusinessID)
	switch {
	case err == nil:
		return o.continueConversation(ctx, active, interaction)
	case store.IsNotFoundError(err):
		// No active conversation; create one below.
	default:
		return tasks.ConversationResult{}, apperr.Database("failed to look up active conversation", err)
	}

	conv, welcome, err := o.engine.StartConversation(ctx,
		interaction.CustomerID, interaction.BusinessID,
		interaction.Branch(), interaction.ItemRefs, string(interaction.Type))
	if err != nil {
		if errors.Is(err, store.ErrActiveConversationExists) {
			log.Info("lost conversation creation race, attaching to existing",
				slog.String("customer_id", interaction.CustomerID),
				slog.String("business_id", interaction.BusinessID))
			winner, lookupErr := o.conversations.FindActiveByCustomer(ctx,
				interaction.CustomerID, interaction.BusinessID)
			if lookupErr != nil {
				return tasks.ConversationResult{}, apperr.Database(
					"failed to attach to existing conversation", lookupErr)
			}
			return o.continueConversation(ctx, winner, interaction)
		}
		return tasks.ConversationResult{}, err
	}

	result := tasks.ConversationResult{
		ConversationID: conv.ID,
		Reply:          welcome,
		Status:         conv.Status,
	}

	// A message-type interaction carries actual customer text; answer it
	// on top of the welcome.
	if interaction.Message != "" {
		reply, status, err := o.engine.ProcessMessage(ctx, conv.ID, interaction.Message)
		if err != nil {
			return tasks.ConversationResult{}, err
		}
		result.Reply = reply
		result.Status = status
	}
	return result, nil
}

// ProcessDirectMessage appends a customer message to an existing
// conversation and returns the agent's reply.
func (o *Orchestrator) ProcessDirectMessage(
	ctx context.Context,
	conversationID uuid.UUID,
	text string,
) (tasks.ConversationResult, error) {
	reply, status, err := o.engine.ProcessMessage(ctx, conversationID, text)
	if err != nil {
		return tasks.ConversationResult{}, err
	}
	return tasks.ConversationResult{
		ConversationID: conversationID,
		Reply:          reply,
		Status:         status,
	}, nil
}

// continueConversation lands an interaction on an existing conversation.
// Engagement-only interactions (a like, a click) have nothing to answer, so
// the conversation's latest agent message stands.
func (o *Orchestrator) continueConversation(
	ctx context.Context,
	conv *domain.Conversation,
	interaction domain.Interaction,
) (tasks.ConversationResult, error) {
	if interaction.Message == "" {
		return tasks.ConversationResult{
			ConversationID: conv.ID,
			Reply:          lastAgentMessage(conv),
			Status:         conv.Status,
		}, nil
	}

	reply, status, err := o.engine.ProcessMessage(ctx, conv.ID, interaction.Message)
	if err != nil {
		return tasks.ConversationResult{}, err
	}
	return tasks.ConversationResult{
		ConversationID: conv.ID,
		Reply:          reply,
		Status:         status,
	}, nil
}

// DispatchInteraction enqueues an interaction for asynchronous processing
// on the webhook lane and returns the task handle.
func (o *Orchestrator) DispatchInteraction(
	ctx context.Context,
	interaction domain.Interaction,
) (uuid.UUID, error) {
	if err := interaction.Validate(); err != nil {
		return uuid.Nil, apperr.Validation(err.Error(), err)
	}
	return o.dispatcher.Dispatch(ctx, tasks.KindWebhook, interaction, queue.PriorityMedium)
}

// DispatchDirectMessage enqueues a direct message for asynchronous
// processing on the conversations lane and returns the task handle.
func (o *Orchestrator) DispatchDirectMessage(
	ctx context.Context,
	conversationID uuid.UUID,
	text string,
) (uuid.UUID, error) {
	if conversationID == uuid.Nil {
		return uuid.Nil, apperr.Validation("conversation ID cannot be empty", nil)
	}
	if text == "" {
		return uuid.Nil, apperr.Validation("message content cannot be empty", nil)
	}
	payload := tasks.ConversationPayload{ConversationID: conversationID, Message: text}
	return o.dispatcher.Dispatch(ctx, tasks.KindConversation, payload, queue.PriorityHigh)
}

// DispatchAnalytics enqueues a metrics aggregation for a business on the
// analytics lane and returns the task handle.
func (o *Orchestrator) DispatchAnalytics(ctx context.Context, businessID string) (uuid.UUID, error) {
	if businessID == "" {
		return uuid.Nil, apperr.Validation("business ID cannot be empty", nil)
	}
	payload := tasks.AnalyticsPayload{BusinessID: businessID}
	return o.dispatcher.Dispatch(ctx, tasks.KindAnalytics, payload, queue.PriorityLow)
}

// GetConversation fetches a conversation document by ID.
func (o *Orchestrator) GetConversation(
	ctx context.Context,
	id uuid.UUID,
) (*domain.Conversation, error) {
	conv, err := o.conversations.GetByID(ctx, id)
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil, err
		}
		return nil, apperr.Database("failed to load conversation", err)
	}
	return conv, nil
}

// lastAgentMessage returns the content of the most recent agent message,
// or empty when the agent has not spoken yet.
func lastAgentMessage(conv *domain.Conversation) string {
	for i := len(conv.Messages) - 1; i >= 0; i-- {
		if conv.Messages[i].Sender == domain.SenderAgent {
			return conv.Messages[i].Content
		}
	}
	return ""
}
