package operator

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/infracloudio/msbotbuilder-go/core"
	"github.com/infracloudio/msbotbuilder-go/core/activity"
	"github.com/infracloudio/msbotbuilder-go/schema"
	"go.uber.org/zap"
)

// botAdapter is the slice of the Bot Framework adapter the handler needs.
// Narrowed for tests.
type botAdapter interface {
	ParseRequest(ctx context.Context, req *http.Request) (schema.Activity, error)
	ProcessActivity(ctx context.Context, act schema.Activity, handler activity.Handler) error
	ProactiveMessage(ctx context.Context, ref schema.ConversationReference, handler activity.Handler) error
}

// BotFrameworkHandler terminates the Bot Framework webhook (Teams). Inbound
// activities are authenticated by the adapter, then handed to the bridge as
// operator messages.
type BotFrameworkHandler struct {
	adapter botAdapter
	bridge  *Bridge
	logger  *zap.Logger
}

// NewBotFrameworkHandler builds the webhook handler. appID and appPassword
// come from the Azure bot registration; both empty means unauthenticated
// emulator traffic is accepted.
func NewBotFrameworkHandler(appID, appPassword string, bridge *Bridge, logger *zap.Logger) (*BotFrameworkHandler, error) {
	adapter, err := core.NewBotAdapter(core.AdapterSetting{
		AppID:       appID,
		AppPassword: appPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("bot framework adapter init: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BotFrameworkHandler{adapter: adapter, bridge: bridge, logger: logger}, nil
}

// HandleActivity serves POST /api/messages. Auth failures map to 401 so the
// connector retries with a fresh token instead of dropping the conversation.
func (h *BotFrameworkHandler) HandleActivity(w http.ResponseWriter, r *http.Request) {
	if !strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		http.Error(w, "Unsupported Media Type", http.StatusUnsupportedMediaType)
		return
	}

	act, err := h.adapter.ParseRequest(r.Context(), r)
	if err != nil {
		h.logger.Warn("Bot Framework request rejected", zap.Error(err))
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	// Teams also delivers conversationUpdate and typing activities; only
	// operator text matters here.
	if act.Type != "message" {
		w.WriteHeader(http.StatusOK)
		return
	}

	conv := &teamsConversation{adapter: h.adapter, ref: referenceFrom(act)}
	reply := h.bridge.HandleOperatorMessage(r.Context(), conversationKey(act), conv, act.Text)
	if reply == "" {
		w.WriteHeader(http.StatusOK)
		return
	}

	err = h.adapter.ProcessActivity(r.Context(), act, activity.HandlerFuncs{
		OnMessageFunc: func(turn *activity.TurnContext) (schema.Activity, error) {
			return turn.SendActivity(activity.MsgOptionText(reply))
		},
	})
	if err != nil {
		h.logger.Error("Bot Framework reply failed", zap.Error(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// teamsConversation pushes proactive messages back into the operator's
// Teams thread using the stored conversation reference.
type teamsConversation struct {
	adapter botAdapter
	ref     schema.ConversationReference
}

var _ Conversation = (*teamsConversation)(nil)

func (c *teamsConversation) Send(ctx context.Context, text string) error {
	return c.adapter.ProactiveMessage(ctx, c.ref, activity.HandlerFuncs{
		OnMessageFunc: func(turn *activity.TurnContext) (schema.Activity, error) {
			return turn.SendActivity(activity.MsgOptionText(text))
		},
	})
}

// referenceFrom captures everything needed to reach the conversation again
// after the inbound request has been answered.
func referenceFrom(act schema.Activity) schema.ConversationReference {
	return schema.ConversationReference{
		ActivityID:   act.ID,
		User:         act.From,
		Bot:          act.Recipient,
		Conversation: act.Conversation,
		ChannelID:    act.ChannelID,
		ServiceURL:   act.ServiceURL,
	}
}

func conversationKey(act schema.Activity) string {
	return "teams:" + act.Conversation.ID
}
