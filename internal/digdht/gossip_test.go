package digdht

import (
	"testing"

	pubsubpb "github.com/libp2p/go-libp2p-pubsub/pb"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/stretchr/testify/require"
)

func TestMessageIDFnDeterministicPerTopicAndPayload(t *testing.T) {
	msgA := &pubsub.Message{Message: &pubsubpb.Message{Topic: strPtr(TopicStoreAnnouncements), Data: []byte("payload")}}
	msgB := &pubsub.Message{Message: &pubsubpb.Message{Topic: strPtr(TopicStoreAnnouncements), Data: []byte("payload")}}
	msgC := &pubsub.Message{Message: &pubsubpb.Message{Topic: strPtr(TopicPeerDiscovery), Data: []byte("payload")}}

	require.Equal(t, messageIDFn(msgA), messageIDFn(msgB))
	require.NotEqual(t, messageIDFn(msgA), messageIDFn(msgC))
}

func strPtr(s string) *string { return &s }
