package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/manipulatorai/engage-api/internal/api/shared"
	"github.com/manipulatorai/engage-api/internal/domain"
	"github.com/manipulatorai/engage-api/internal/platform/logger"
)

// InteractionDispatcher enqueues normalized interactions for asynchronous
// processing.
type InteractionDispatcher interface {
	DispatchInteraction(ctx context.Context, interaction domain.Interaction) (uuid.UUID, error)
}

// WebhookHandler ingests raw platform webhook payloads, normalizes them
// into interactions, and dispatches them onto the task queue. Webhook
// endpoints always respond fast; the conversational work happens in the
// worker pool.
type WebhookHandler struct {
	dispatcher InteractionDispatcher
}

// NewWebhookHandler creates a WebhookHandler.
func NewWebhookHandler(dispatcher InteractionDispatcher) *WebhookHandler {
	return &WebhookHandler{dispatcher: dispatcher}
}

// WebhookAcceptedResponse lists the task handles created for a webhook
// delivery. One delivery can carry several events.
type WebhookAcceptedResponse struct {
	TaskIDs []uuid.UUID `json:"task_ids"`
}

// pageWebhookPayload is the Meta page event envelope shared by Facebook
// and Instagram deliveries.
type pageWebhookPayload struct {
	Entry []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string `json:"field"`
			Value struct {
				Verb     string   `json:"verb"`
				SenderID string   `json:"sender_id"`
				Message  string   `json:"message"`
				ItemRefs []string `json:"item_refs"`
			} `json:"value"`
		} `json:"changes"`
		Messaging []struct {
			Sender struct {
				ID string `json:"id"`
			} `json:"sender"`
			Message struct {
				Text string `json:"text"`
			} `json:"message"`
		} `json:"messaging"`
	} `json:"entry"`
}

// googleWebhookPayload is a Google Ads click or conversion event.
type googleWebhookPayload struct {
	EventType  string   `json:"event_type"`
	ClickID    string   `json:"click_id"`
	CustomerID string   `json:"customer_id"`
	BusinessID string   `json:"business_id"`
	ItemRefs   []string `json:"item_refs"`
}

// whatsappWebhookPayload is an inbound WhatsApp message.
type whatsappWebhookPayload struct {
	From string `json:"from"`
	To   string `json:"to"`
	Text string `json:"text"`
}

// HandleWebhook handles POST /webhooks/{platform}.
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	platform := domain.Platform(chi.URLParam(r, "platform"))
	if !domain.IsValidPlatform(platform) {
		shared.RespondWithError(w, r, http.StatusNotFound,
			fmt.Sprintf("Unknown platform: %s", platform))
		return
	}

	interactions, err := h.normalize(r, platform)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid webhook payload")
		return
	}

	log := logger.FromContext(r.Context())

	taskIDs := make([]uuid.UUID, 0, len(interactions))
	for _, interaction := range interactions {
		taskID, err := h.dispatcher.DispatchInteraction(r.Context(), interaction)
		if err != nil {
			// A malformed event in a batch should not poison the rest of
			// the delivery. Log and keep going.
			log.Warn("skipping webhook event",
				slog.String("platform", string(platform)),
				slog.String("error", err.Error()))
			continue
		}
		taskIDs = append(taskIDs, taskID)
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, WebhookAcceptedResponse{TaskIDs: taskIDs})
}

// normalize converts a raw platform payload into interactions.
func (h *WebhookHandler) normalize(r *http.Request, platform domain.Platform) ([]domain.Interaction, error) {
	switch platform {
	case domain.PlatformFacebook, domain.PlatformInstagram:
		return normalizePageEvents(r, platform)
	case domain.PlatformGoogle:
		return normalizeGoogleEvent(r)
	case domain.PlatformWhatsApp:
		return normalizeWhatsAppMessage(r)
	default:
		return nil, domain.ErrInvalidPlatform
	}
}

// normalizePageEvents handles the Meta page envelope. Feed changes become
// engagement interactions; messaging entries become message interactions.
func normalizePageEvents(r *http.Request, platform domain.Platform) ([]domain.Interaction, error) {
	var payload pageWebhookPayload
	if err := shared.DecodeJSON(r, &payload); err != nil {
		return nil, err
	}

	idPrefix, pagePrefix := "fb_", "fb_page_"
	if platform == domain.PlatformInstagram {
		idPrefix, pagePrefix = "ig_", "ig_page_"
	}

	now := time.Now().UTC()
	var interactions []domain.Interaction

	for _, entry := range payload.Entry {
		businessID := pagePrefix + entry.ID

		for _, change := range entry.Changes {
			if change.Field != "feed" {
				continue
			}
			kind, ok := feedVerbToType(change.Value.Verb)
			if !ok {
				continue
			}
			interactions = append(interactions, domain.Interaction{
				CustomerID: idPrefix + change.Value.SenderID,
				BusinessID: businessID,
				Platform:   platform,
				Type:       kind,
				ItemRefs:   change.Value.ItemRefs,
				Message:    change.Value.Message,
				OccurredAt: now,
			})
		}

		for _, msg := range entry.Messaging {
			if msg.Message.Text == "" {
				continue
			}
			interactions = append(interactions, domain.Interaction{
				CustomerID: idPrefix + msg.Sender.ID,
				BusinessID: businessID,
				Platform:   platform,
				Type:       domain.InteractionMessage,
				Message:    msg.Message.Text,
				OccurredAt: now,
			})
		}
	}
	return interactions, nil
}

func feedVerbToType(verb string) (domain.InteractionType, bool) {
	switch verb {
	case "like":
		return domain.InteractionLike, true
	case "comment":
		return domain.InteractionComment, true
	case "share":
		return domain.InteractionShare, true
	default:
		return "", false
	}
}

// normalizeGoogleEvent handles click and conversion events. Missing IDs
// fall back to click-derived identifiers so a bare click tracker still
// produces a usable customer key.
func normalizeGoogleEvent(r *http.Request) ([]domain.Interaction, error) {
	var payload googleWebhookPayload
	if err := shared.DecodeJSON(r, &payload); err != nil {
		return nil, err
	}

	customerID := payload.CustomerID
	if customerID == "" {
		customerID = "google_" + payload.ClickID
	}
	businessID := payload.BusinessID
	if businessID == "" {
		businessID = "google_ads_account"
	}

	return []domain.Interaction{{
		CustomerID: customerID,
		BusinessID: businessID,
		Platform:   domain.PlatformGoogle,
		Type:       domain.InteractionClick,
		ItemRefs:   payload.ItemRefs,
		OccurredAt: time.Now().UTC(),
	}}, nil
}

func normalizeWhatsAppMessage(r *http.Request) ([]domain.Interaction, error) {
	var payload whatsappWebhookPayload
	if err := shared.DecodeJSON(r, &payload); err != nil {
		return nil, err
	}

	return []domain.Interaction{{
		CustomerID: "wa_" + payload.From,
		BusinessID: "wa_" + payload.To,
		Platform:   domain.PlatformWhatsApp,
		Type:       domain.InteractionMessage,
		Message:    payload.Text,
		OccurredAt: time.Now().UTC(),
	}}, nil
}
