package digdht

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"

	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"go.uber.org/zap"
)

// Topic names are fixed strings; every node joins all four (§4.4).
const (
	TopicPeerDiscovery           = "dig-privacy-peer-discovery"
	TopicAddressExchange         = "dig-privacy-address-exchange"
	TopicStoreAnnouncements      = "dig-privacy-store-announcements"
	TopicCapabilityAnnouncements = "dig-privacy-capability-announcements"
)

var allTopics = []string{
	TopicPeerDiscovery,
	TopicAddressExchange,
	TopicStoreAnnouncements,
	TopicCapabilityAnnouncements,
}

// Gossip wraps a gossipsub router joined to the four fixed topics.
type Gossip struct {
	log  *zap.Logger
	ps   *pubsub.PubSub
	self peer.ID
	subs map[string]*pubsub.Subscription
	tops map[string]*pubsub.Topic
}

// messageIDFn derives the message id from topic||payload so that
// replays are deduplicated per topic, per §4.4, instead of gossipsub's
// default (from, seqno) identity.
func messageIDFn(msg *pubsub.Message) string {
	h := sha256.New()
	h.Write([]byte(msg.GetTopic()))
	h.Write(msg.Data)
	return fmt.Sprintf("%x", h.Sum(nil))
}

// NewGossip constructs a gossipsub router over h and joins all four
// fixed topics.
func NewGossip(ctx context.Context, log *zap.Logger, h host.Host) (*Gossip, error) {
	ps, err := pubsub.NewGossipSub(ctx, h, pubsub.WithMessageIdFn(messageIDFn))
	if err != nil {
		return nil, fmt.Errorf("digdht: constructing gossipsub: %w", err)
	}

	g := &Gossip{
		log:  log,
		ps:   ps,
		self: h.ID(),
		subs: make(map[string]*pubsub.Subscription),
		tops: make(map[string]*pubsub.Topic),
	}

	for _, name := range allTopics {
		topic, err := ps.Join(name)
		if err != nil {
			return nil, fmt.Errorf("digdht: joining topic %s: %w", name, err)
		}
		sub, err := topic.Subscribe()
		if err != nil {
			return nil, fmt.Errorf("digdht: subscribing to %s: %w", name, err)
		}
		g.tops[name] = topic
		g.subs[name] = sub
	}
	return g, nil
}

// Publish marshals v as JSON and publishes it to topic.
func (g *Gossip) Publish(ctx context.Context, topic string, v any) error {
	t, ok := g.tops[topic]
	if !ok {
		return fmt.Errorf("digdht: unknown topic %s", topic)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("digdht: marshaling gossip payload: %w", err)
	}
	return t.Publish(ctx, b)
}

// Handler is invoked for every deduplicated message received on a
// topic, excluding messages authored by self.
type Handler func(from peer.ID, data []byte)

// Listen runs until ctx is done, dispatching each message on topic to
// handle. Call once per topic of interest.
func (g *Gossip) Listen(ctx context.Context, topic string, handle Handler) error {
	sub, ok := g.subs[topic]
	if !ok {
		return fmt.Errorf("digdht: not subscribed to %s", topic)
	}

	for {
		msg, err := sub.Next(ctx)
		if err != nil {
			return err
		}
		if msg.ReceivedFrom == "" || msg.ReceivedFrom == g.self {
			continue
		}
		handle(msg.ReceivedFrom, msg.Data)
	}
}
