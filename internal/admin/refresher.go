package admin

import (
	"context"

	"github.com/relaydesk/wabridge/internal/ai"
	"github.com/relaydesk/wabridge/pkg/logging"
)

// SettingsSink receives freshly fetched AI settings.
type SettingsSink interface {
	SetAISettings(s ai.Settings)
}

// ConfigFetcher is implemented by Client.
type ConfigFetcher interface {
	GetConfig(ctx context.Context) (ai.Settings, error)
}

// Refresher pulls AI settings from the admin system into runtime state.
// A fetch failure leaves the previous settings in place; auto-reply simply
// stays disabled until a fetch succeeds.
type Refresher struct {
	fetcher ConfigFetcher
	sink    SettingsSink
	logger  *logging.Logger
}

// NewRefresher wires a config fetcher to a settings sink.
func NewRefresher(fetcher ConfigFetcher, sink SettingsSink, logger *logging.Logger) *Refresher {
	if logger == nil {
		logger = logging.Default()
	}
	return &Refresher{fetcher: fetcher, sink: sink, logger: logger}
}

// RefreshSettings fetches AI settings, best-effort.
func (r *Refresher) RefreshSettings(ctx context.Context) {
	settings, err := r.fetcher.GetConfig(ctx)
	if err != nil {
		r.logger.Warn("ai settings refresh failed", "error", err)
		return
	}
	r.sink.SetAISettings(settings)
	r.logger.Info("ai settings refreshed",
		"auto_reply_enabled", settings.Enabled(),
		"model", settings.Model,
	)
}
