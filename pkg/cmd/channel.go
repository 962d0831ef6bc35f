package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/dukex/integra/pkg/channels/gochannel"
	"github.com/dukex/integra/pkg/channels/kafka"
)

// NewChannel creates the pub/sub used by messaging endpoints.
func NewChannel(provider string, logger *slog.Logger, config kafka.Config) (message.Publisher, message.Subscriber, error) {
	adapter := watermill.NewSlogLogger(logger)

	switch provider {
	case "", "gochannel":
		pubSub := gochannel.CreateChannel(adapter, false)

		return pubSub, pubSub, nil
	case "kafka":
		publisher, subscriber, err := kafka.CreateChannel(adapter, config)
		if err != nil {
			return nil, nil, err
		}

		return publisher, subscriber, nil
	default:
		return nil, nil, fmt.Errorf("%w: unsupported channel provider %q (supported: gochannel, kafka)", ErrUnsupportedScheme, provider)
	}
}
