// Package gochannel wires the in-memory watermill channel used for local
// development and tests. All session topics share one GoChannel instance.
package gochannel

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// sessionTopicBuffer absorbs bursts on a session topic: one resolved conflict
// fans out into representation, status and conflict-resolved events, and the
// sync machine must not block on slow consumers.
const sessionTopicBuffer = 1000

// CreateChannel returns the publisher and subscriber halves of one shared
// GoChannel. Messages are not retained after consumption, so a session that
// subscribes late starts from the next broadcast.
func CreateChannel(logger watermill.LoggerAdapter) (*gochannel.GoChannel, *gochannel.GoChannel, error) {
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer:            sessionTopicBuffer,
			Persistent:                     false,
			BlockPublishUntilSubscriberAck: false,
		},
		logger,
	)

	return pubSub, pubSub, nil
}

// CreateTestChannel trades throughput for determinism: publishes block until
// the subscriber acks, and messages persist so a test can subscribe after
// publishing and still observe the topic.
func CreateTestChannel(logger watermill.LoggerAdapter) (*gochannel.GoChannel, *gochannel.GoChannel, error) {
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer:            10,
			Persistent:                     true,
			BlockPublishUntilSubscriberAck: true,
		},
		logger,
	)

	return pubSub, pubSub, nil
}
