// Package bus carries pipeline events between the extraction stage, the
// assessment worker and downstream consumers.
package bus

import (
	"errors"
	"fmt"

	"github.com/opensource-finance/leasecheck/internal/domain"
)

var (
	ErrTenantRequired = errors.New("tenantID is required")
	ErrClosed         = errors.New("bus is closed")
)

// New creates the event bus selected by cfg.Type.
// "channel" (or empty) for the community tier, "nats" for pro.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel", "":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}
