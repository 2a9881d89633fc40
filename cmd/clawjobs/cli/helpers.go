package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/openclaw/clawjobs/internal/calllog"
	"github.com/openclaw/clawjobs/internal/config"
	"github.com/openclaw/clawjobs/internal/events"
	"github.com/openclaw/clawjobs/internal/metrics"
	"github.com/openclaw/clawjobs/internal/service"
	"github.com/openclaw/clawjobs/internal/store"
)

// app bundles the collaborators most commands need. Close releases them.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *store.Store
	keys     *service.KeyService
	market   *service.Marketplace
	calls    *calllog.Recorder
	metrics  *metrics.Metrics
	events   events.Publisher
	shutdown []func()
}

// openApp loads the config, sets up logging and error reporting, and opens
// the store (applying pending migrations). Events are published only when
// withEvents is set and an AMQP URL is configured.
func openApp(ctx context.Context, withEvents bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, metrics: metrics.New()}
	a.logger = cfg.Logging.NewLogger(os.Stderr)
	slog.SetDefault(a.logger)

	if err := a.initSentry(); err != nil {
		return nil, err
	}

	a.store, err = store.Open(ctx, cfg.StoreOptions())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.shutdown = append(a.shutdown, func() { a.store.Close() })

	a.events = events.Nop{}
	if withEvents && cfg.Events.AMQPURL != "" {
		pub, err := events.NewAMQPPublisher(cfg.Events.AMQPURL, cfg.Events.Exchange)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.events = pub
		a.shutdown = append(a.shutdown, func() { pub.Close() })
		a.logger.Info("publishing domain events", "exchange", cfg.Events.Exchange)
	}

	a.keys = service.NewKeyService(a.store, a.logger)
	a.market = service.NewMarketplace(a.store, a.events, a.metrics, a.logger)
	a.calls = calllog.NewRecorder(a.store, a.metrics, a.logger)
	return a, nil
}

// initSentry enables error reporting when a DSN is configured.
func (a *app) initSentry() error {
	if a.cfg.Sentry.DSN == "" {
		return nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:         a.cfg.Sentry.DSN,
		Environment: a.cfg.Sentry.Environment,
		Release:     "clawjobs@" + versionString(),
	})
	if err != nil {
		return fmt.Errorf("init sentry: %w", err)
	}
	a.shutdown = append(a.shutdown, func() { sentry.Flush(2 * time.Second) })
	a.logger.Info("error reporting enabled", "environment", a.cfg.Sentry.Environment)
	return nil
}

// Close runs the shutdown hooks in reverse order.
func (a *app) Close() {
	for i := len(a.shutdown) - 1; i >= 0; i-- {
		a.shutdown[i]()
	}
	a.shutdown = nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

// versionString returns a display version string.
func versionString() string {
	if appVersion == "" || appVersion == "dev" {
		return "dev"
	}
	if strings.HasPrefix(appVersion, "v") {
		return appVersion
	}
	return "v" + appVersion
}
