package bus

import (
	"fmt"

	"github.com/openpricing/kestrel/internal/domain"
)

// Bus types selectable via EventBusConfig.Type.
const (
	TypeChannel = "channel"
	TypeNATS    = "nats"
)

// New creates the event bus for the configured tier: in-process channels for
// Community, NATS for Pro.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case TypeChannel:
		return NewChannelBus(cfg.ChannelBufferSize), nil
	case TypeNATS:
		return NewNATSBus(cfg)
	default:
		return nil, fmt.Errorf("unsupported event bus type: %q", cfg.Type)
	}
}
