package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/telhawk-systems/telhawk-investigate/common/logging"
	"github.com/telhawk-systems/telhawk-investigate/common/messaging"
	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/models"
)

// Linker is the service operation link requests are dispatched to.
type Linker interface {
	LinkEntities(ctx context.Context, req *models.LinkEntitiesRequest) (*models.Investigation, error)
}

// Handler processes incoming NATS messages for the investigate service.
type Handler struct {
	client messaging.Client
	linker Linker
	logger *logging.Logger
	subs   []messaging.Subscription
}

// NewHandler creates a new NATS message handler.
func NewHandler(client messaging.Client, linker Linker, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		client: client,
		linker: linker,
		logger: logger.Component("nats"),
		subs:   make([]messaging.Subscription, 0),
	}
}

// Start begins listening for NATS messages.
func (h *Handler) Start(ctx context.Context) error {
	sub, err := h.client.QueueSubscribe(
		messaging.SubjectLinkRequests,
		messaging.QueueInvestigate,
		h.handleLinkRequest,
	)
	if err != nil {
		return fmt.Errorf("failed to subscribe to link requests: %w", err)
	}
	h.subs = append(h.subs, sub)

	h.logger.InfoContext(ctx, "NATS handler started", "subject", messaging.SubjectLinkRequests)
	return nil
}

// Stop gracefully stops the handler and unsubscribes from all subjects.
func (h *Handler) Stop() error {
	for _, sub := range h.subs {
		if err := sub.Unsubscribe(); err != nil {
			h.logger.Warn("failed to unsubscribe", "subject", sub.Subject(), logging.Error(err))
		}
	}
	h.subs = nil
	h.logger.Info("NATS handler stopped")
	return nil
}

// handleLinkRequest runs LinkEntities for one request. Malformed payloads
// and rejected requests are logged and acknowledged; only the reply, when
// requested, tells the producer about the failure.
func (h *Handler) handleLinkRequest(ctx context.Context, msg *messaging.Message) error {
	var req LinkRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		h.logger.WarnContext(ctx, "failed to unmarshal link request", logging.Error(err))
		h.reply(ctx, msg, LinkReply{Error: "malformed link request"})
		return err
	}

	inv, err := h.linker.LinkEntities(ctx, &models.LinkEntitiesRequest{
		Entities: req.Entities,
		Metadata: req.Metadata,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "link request failed",
			"request_id", req.RequestID, "source", req.Source, logging.Error(err))
		h.reply(ctx, msg, LinkReply{RequestID: req.RequestID, Error: err.Error()})
		return err
	}

	h.logger.InfoContext(ctx, "link request processed",
		"request_id", req.RequestID,
		"source", req.Source,
		logging.InvestigationID(inv.ID),
		logging.Count(len(inv.Entities)))
	h.reply(ctx, msg, LinkReply{
		RequestID:       req.RequestID,
		Success:         true,
		InvestigationID: inv.ID,
		HumanCode:       inv.HumanCode,
		EntityCount:     len(inv.Entities),
	})
	return nil
}

func (h *Handler) reply(ctx context.Context, msg *messaging.Message, r LinkReply) {
	if msg.Reply == "" {
		return
	}
	if err := h.client.PublishJSON(ctx, msg.Reply, r); err != nil {
		h.logger.WarnContext(ctx, "failed to send link reply", logging.Error(err))
	}
}
