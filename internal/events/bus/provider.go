package bus

import (
	"github.com/windschord/claude-work/internal/common/config"
	"github.com/windschord/claude-work/internal/common/logger"
)

// Provide returns a NATS bus when a URL is configured, the in-memory bus
// otherwise.
func Provide(cfg config.NATSConfig, log *logger.Logger) (EventBus, error) {
	if cfg.URL == "" {
		return NewMemoryEventBus(log), nil
	}
	return NewNATSEventBus(cfg, log)
}
