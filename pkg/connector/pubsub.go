package connector

import (
	"context"
	"errors"

	"cloud.google.com/go/pubsub"
	"github.com/AnthonyCampos1234/Facsimile/pkg/model"
	"github.com/AnthonyCampos1234/Facsimile/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/option"
)

// Message attributes read by the push handler.
const (
	AttrOwnerID = "owner_id"
	AttrSource  = "source"
	AttrFormat  = "format"
)

// Handler decides what to do with one pushed message.
type Handler struct {
	sink Sink
}

func NewHandler(sink Sink) *Handler {
	return &Handler{sink: sink}
}

// Handle enqueues the message data and reports whether the message should
// be acknowledged. Unusable messages are acknowledged so they are not
// redelivered; a full queue is not.
func (h *Handler) Handle(ctx context.Context, attributes map[string]string, data []byte) bool {
	logger := logging.From(ctx)

	owner := model.OwnerID(attributes[AttrOwnerID])
	if owner == "" {
		logger.Warn("drop pushed message without owner")
		return true
	}

	source, payload, err := Convert(Format(attributes[AttrFormat]), model.Source(attributes[AttrSource]), data)
	if err != nil {
		logger.Warn("drop unusable pushed message", "owner_id", owner, "error", err)
		return true
	}

	if err := h.sink.Enqueue(owner, source, payload); err != nil {
		if errors.Is(err, model.ErrMalformedSourceData) {
			logger.Warn("drop unusable pushed message", "owner_id", owner, "error", err)
			return true
		}
		logger.Warn("failed to enqueue pushed message", "owner_id", owner, "error", err)
		return false
	}
	return true
}

// Subscriber receives provider payloads from a Pub/Sub subscription.
type Subscriber struct {
	client  *pubsub.Client
	sub     *pubsub.Subscription
	handler *Handler
}

func NewSubscriber(ctx context.Context, projectID, subscription string, sink Sink, opts ...option.ClientOption) (*Subscriber, error) {
	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create pubsub client", goerr.V("project", projectID))
	}

	return &Subscriber{
		client:  client,
		sub:     client.Subscription(subscription),
		handler: NewHandler(sink),
	}, nil
}

// Run receives messages until ctx is cancelled.
func (s *Subscriber) Run(ctx context.Context) error {
	logger := logging.From(ctx).With("subscription", s.sub.ID())
	logger.Info("pubsub subscriber started")

	err := s.sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if s.handler.Handle(ctx, msg.Attributes, msg.Data) {
			msg.Ack()
		} else {
			msg.Nack()
		}
	})
	if err != nil && ctx.Err() == nil {
		return goerr.Wrap(err, "pubsub receive failed", goerr.V("subscription", s.sub.ID()))
	}

	logger.Info("pubsub subscriber stopped")
	return nil
}

func (s *Subscriber) Close() error {
	return s.client.Close()
}
