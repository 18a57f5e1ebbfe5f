// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package daemon wires the engine together and runs it: stores, the
// execution ledger, Hook State, integrations, the reaction dispatcher,
// trigger evaluators, the scheduler and the HTTP server.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/oauth2/endpoints"

	"github.com/tombee/areas/internal/api"
	"github.com/tombee/areas/internal/config"
	"github.com/tombee/areas/internal/events"
	"github.com/tombee/areas/internal/hookstate"
	"github.com/tombee/areas/internal/integration/discord"
	"github.com/tombee/areas/internal/integration/gmail"
	"github.com/tombee/areas/internal/integration/reddit"
	"github.com/tombee/areas/internal/integration/spotify"
	"github.com/tombee/areas/internal/integration/trello"
	"github.com/tombee/areas/internal/integration/twitch"
	internallog "github.com/tombee/areas/internal/log"
	"github.com/tombee/areas/internal/ledger"
	"github.com/tombee/areas/internal/oauth"
	"github.com/tombee/areas/internal/params"
	"github.com/tombee/areas/internal/reaction"
	"github.com/tombee/areas/internal/scheduler"
	"github.com/tombee/areas/internal/secrets"
	"github.com/tombee/areas/internal/store"
	"github.com/tombee/areas/internal/store/memory"
	"github.com/tombee/areas/internal/store/sqlstore"
	"github.com/tombee/areas/internal/telemetry"
	"github.com/tombee/areas/internal/trigger"
	"github.com/tombee/areas/internal/webhook"
	"github.com/tombee/areas/pkg/httpclient"
)

// Cadence names.
const (
	MainCadence = "main"
	LiveCadence = "live"
)

// redditTokenURL is not part of x/oauth2/endpoints.
const redditTokenURL = "https://www.reddit.com/api/v1/access_token"

// Options carries build information and test overrides.
type Options struct {
	Version   string
	Commit    string
	BuildDate string

	// Store replaces the configured database. The daemon does not close it.
	Store store.Store

	// Email replaces the SMTP sender.
	Email reaction.Sender

	// Publisher replaces the configured execution event publisher. The
	// daemon does not close it.
	Publisher events.Publisher

	// Now replaces the wall clock for the ledger, Hook State and scheduler.
	Now func() time.Time

	Logger *slog.Logger
}

// Daemon is the running engine.
type Daemon struct {
	cfg    *config.Config
	opts   Options
	logger *slog.Logger

	store      store.Store
	ownsStore  bool
	publisher  events.Publisher
	telemetry  *telemetry.Provider
	ledger     *ledger.Ledger
	hookStates *hookstate.Store
	dispatcher *reaction.Dispatcher
	scheduler  *scheduler.Scheduler
	handler    http.Handler

	mu      sync.Mutex
	server  *http.Server
	started bool
}

// New builds every component in dependency order. Nothing runs until Start.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Daemon, error) {
	logger := opts.Logger
	if logger == nil {
		logger = internallog.New(internallog.FromEnv())
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	d := &Daemon{
		cfg:    cfg,
		opts:   opts,
		logger: internallog.WithComponent(logger, "daemon"),
	}

	st := opts.Store
	if st == nil {
		var err error
		if st, err = OpenStore(ctx, cfg.Database); err != nil {
			return nil, err
		}
		d.ownsStore = true
	}
	d.store = st

	spanExporter, err := telemetry.NewSpanExporter(ctx, telemetry.ExporterConfig{
		Type:     cfg.Telemetry.Traces.Exporter,
		Endpoint: cfg.Telemetry.Traces.Endpoint,
		Insecure: cfg.Telemetry.Traces.Insecure,
		Headers:  cfg.Telemetry.Traces.Headers,
	})
	if err != nil {
		d.closeStore()
		return nil, fmt.Errorf("failed to initialize span exporter: %w", err)
	}
	var traceOpts []sdktrace.TracerProviderOption
	if spanExporter != nil {
		traceOpts = append(traceOpts, sdktrace.WithBatcher(spanExporter))
	}

	tel, err := telemetry.New(telemetry.Config{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: cfg.Telemetry.ServiceVersion,
		SetGlobal:      true,
	}, traceOpts...)
	if err != nil {
		d.closeStore()
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	d.telemetry = tel
	metrics := tel.Metrics()

	d.publisher = events.NopPublisher{}
	if opts.Publisher != nil {
		d.publisher = opts.Publisher
	} else if cfg.Events.Enabled {
		pub, err := events.Connect(ctx, events.Config{
			URL:           cfg.Events.URL,
			Embedded:      cfg.Events.Embedded,
			SubjectPrefix: cfg.Events.SubjectPrefix,
			Logger:        logger,
		})
		if err != nil {
			d.closeStore()
			return nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		d.publisher = pub
	}

	d.ledger = ledger.New(ledger.Config{
		Executions: st,
		Now:        now,
		Publisher:  d.publisher,
		Metrics:    metrics,
		Masker:     secrets.NewMasker(cfg.Credentials()...),
		Logger:     logger,
	})
	d.hookStates = hookstate.New(hookstate.Config{States: st, Now: now, Logger: logger})
	resolver := params.NewResolver(st)

	clients, err := newClients(cfg, logger)
	if err != nil {
		d.closeStore()
		return nil, err
	}
	if opts.Email != nil {
		clients.Email = opts.Email
	}

	tokenHTTP, err := newHTTPClient(0, logger)
	if err != nil {
		d.closeStore()
		return nil, err
	}
	tokens := oauth.NewManager(oauth.Config{
		Tokens:     st,
		Providers:  oauthProviders(cfg.Services),
		HTTPClient: tokenHTTP,
		Now:        now,
		Logger:     logger,
	})

	d.dispatcher = reaction.NewDispatcher(reaction.DispatcherConfig{Lookups: st, Logger: logger})
	runner := reaction.NewRunner(reaction.RunnerConfig{
		Ledger:  d.ledger,
		Params:  resolver,
		Tokens:  tokens,
		Metrics: metrics,
		Logger:  logger,
	})
	reaction.RegisterAll(d.dispatcher, runner, clients)

	firer := trigger.NewFirer(trigger.FirerConfig{
		Ledger:         d.ledger,
		Areas:          st,
		Dispatcher:     d.dispatcher,
		Metrics:        metrics,
		TracerProvider: tel.TracerProvider(),
		Logger:         logger,
	})

	deps := trigger.Deps{
		Params:   resolver,
		States:   d.hookStates,
		Location: cfg.Location(),
		Logger:   logger,
	}

	evaluators := []trigger.Evaluator{
		trigger.NewDailyTimer(deps),
		trigger.NewWeeklyTimer(deps),
		trigger.NewMonthlyTimer(deps),
		trigger.NewIntervalTimer(deps),
		trigger.NewGmailNewEmail(deps, tokens, clients.Gmail),
		trigger.NewRedditHotPost(deps, tokens, clients.Reddit),
	}
	if clients.Trello != nil {
		evaluators = append(evaluators,
			trigger.NewTrelloNewCard(deps, tokens, clients.Trello),
			trigger.NewTrelloCardMoved(deps, tokens, clients.Trello))
	}
	cadences := []scheduler.Cadence{{Name: MainCadence, Interval: cfg.Scheduler.Interval, Evaluators: evaluators}}
	if clients.Twitch != nil {
		cadences = append(cadences, scheduler.Cadence{
			Name:       LiveCadence,
			Interval:   cfg.Scheduler.LiveInterval,
			Evaluators: []trigger.Evaluator{trigger.NewTwitchStreamLive(deps, tokens, clients.Twitch)},
		})
	}
	maintenance := scheduler.NewMaintenance(scheduler.MaintenanceConfig{
		HookStates:             d.hookStates,
		Ledger:                 d.ledger,
		HookStateRetentionDays: cfg.Scheduler.HookStateRetentionDays,
		ExecutionRetentionDays: cfg.Scheduler.ExecutionRetentionDays,
		LongRunningThreshold:   cfg.Scheduler.LongRunningThreshold,
		Logger:                 logger,
	})
	cadences = append(cadences, maintenance.Cadence(cfg.Scheduler.MaintenanceInterval))

	d.scheduler, err = scheduler.New(scheduler.Config{
		Cadences: cadences,
		Areas:    st,
		Runner:   firer,
		Workers:  cfg.Scheduler.Workers,
		Now:      now,
		Metrics:  metrics,
		Logger:   logger,
	})
	if err != nil {
		d.closeStore()
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	mux := http.NewServeMux()
	webhook.NewGitHubHandler(webhook.Config{
		Areas:  st,
		Runner: firer,
		Triggers: []*trigger.GitHubTrigger{
			trigger.NewGitHubPush(deps),
			trigger.NewGitHubPullRequestOpened(deps),
			trigger.NewGitHubIssueOpened(deps),
		},
		Secret:       cfg.Services.GitHub.WebhookSecret,
		MaxBodyBytes: cfg.Server.MaxWebhookBytes,
		Now:          now,
		Metrics:      metrics,
		Logger:       logger,
	}).RegisterRoutes(mux)

	apiCfg := api.Config{
		Ledger:               d.ledger,
		HookStates:           d.hookStates,
		Scheduler:            d.scheduler,
		LongRunningThreshold: cfg.Scheduler.LongRunningThreshold,
		Version:              opts.Version,
		Now:                  now,
		Logger:               logger,
	}
	if cfg.Telemetry.MetricsEnabled {
		apiCfg.Metrics = tel.MetricsHandler()
	}
	api.New(apiCfg).RegisterRoutes(mux)

	d.handler = internallog.HTTPMiddleware(logger)(mux)

	if cfg.Services.GitHub.WebhookSecret == "" {
		d.logger.Warn("github webhook secret not configured, signatures will not be verified")
	}
	d.logger.Info("engine initialized",
		slog.String("database", cfg.Database.Driver),
		slog.Any("reactions", d.dispatcher.Names()),
		slog.Bool("events", cfg.Events.Enabled))

	return d, nil
}

// Handler returns the HTTP handler serving webhooks and the API.
func (d *Daemon) Handler() http.Handler {
	return d.handler
}

// Scheduler returns the engine scheduler.
func (d *Daemon) Scheduler() *scheduler.Scheduler {
	return d.scheduler
}

// Ledger returns the execution ledger.
func (d *Daemon) Ledger() *ledger.Ledger {
	return d.ledger
}

// Dispatcher returns the reaction dispatcher.
func (d *Daemon) Dispatcher() *reaction.Dispatcher {
	return d.dispatcher
}

// Start starts the scheduler and serves HTTP on the configured address. It
// blocks until the server stops.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return fmt.Errorf("daemon already started")
	}
	d.started = true

	ln, err := net.Listen("tcp", d.cfg.Server.Addr)
	if err != nil {
		d.mu.Unlock()
		return fmt.Errorf("failed to listen on %s: %w", d.cfg.Server.Addr, err)
	}
	d.server = &http.Server{
		Handler:           d.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := d.server
	d.mu.Unlock()

	d.scheduler.Start(ctx)
	d.logger.Info("listening", slog.String("addr", ln.Addr().String()))

	if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops the scheduler, drains HTTP requests and releases every
// resource. Safe to call when Start was never called.
func (d *Daemon) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error

	d.scheduler.Stop()

	if d.server != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, d.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := d.server.Shutdown(shutdownCtx); err != nil {
			d.logger.Error("HTTP server shutdown error", internallog.Error(err))
			errs = append(errs, err)
		}
	}

	if d.opts.Publisher == nil {
		if err := d.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close events: %w", err))
		}
	}
	if err := d.telemetry.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown telemetry: %w", err))
	}
	if err := d.closeStore(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}

	d.logger.Info("shutdown complete")
	return errors.Join(errs...)
}

func (d *Daemon) closeStore() error {
	if !d.ownsStore || d.store == nil {
		return nil
	}
	return d.store.Close()
}

// OpenStore opens the configured database driver, applying pending
// migrations for SQL drivers.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig) (store.Store, error) {
	switch cfg.Driver {
	case "memory":
		return memory.New(), nil
	case "postgres":
		s, err := sqlstore.Open(ctx, sqlstore.Config{
			Dialect:      sqlstore.DialectPostgres,
			DSN:          cfg.DSN,
			MaxOpenConns: cfg.MaxOpenConns,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		return s, nil
	default:
		s, err := sqlstore.Open(ctx, sqlstore.Config{
			Dialect: sqlstore.DialectSQLite,
			DSN:     cfg.Path,
			WAL:     true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return s, nil
	}
}

// newClients builds one client per integration. Clients that cannot work
// without static credentials are left nil and their reactions fail with a
// configuration message.
func newClients(cfg *config.Config, logger *slog.Logger) (reaction.Clients, error) {
	var c reaction.Clients
	s := cfg.Services

	if cfg.Email.Host != "" {
		c.Email = reaction.NewSMTPSender(reaction.SMTPConfig{
			Host:     cfg.Email.Host,
			Port:     cfg.Email.Port,
			Username: cfg.Email.Username,
			Password: cfg.Email.Password,
			From:     cfg.Email.From,
		})
	}

	hc, err := newHTTPClient(s.Google.RateRPS, logger)
	if err != nil {
		return c, err
	}
	c.Gmail = gmail.New(s.Google.BaseURL, hc)

	if hc, err = newHTTPClient(s.Reddit.RateRPS, logger); err != nil {
		return c, err
	}
	c.Reddit = reddit.New(s.Reddit.BaseURL, s.Reddit.UserAgent, hc)

	if hc, err = newHTTPClient(s.Spotify.RateRPS, logger); err != nil {
		return c, err
	}
	c.Spotify = spotify.New(s.Spotify.BaseURL, hc)

	if s.Discord.BotToken != "" {
		if hc, err = newHTTPClient(s.Discord.RateRPS, logger); err != nil {
			return c, err
		}
		c.Discord = discord.New(s.Discord.BaseURL, s.Discord.BotToken, hc)
	}
	if s.Trello.APIKey != "" {
		if hc, err = newHTTPClient(s.Trello.RateRPS, logger); err != nil {
			return c, err
		}
		c.Trello = trello.New(s.Trello.BaseURL, s.Trello.APIKey, hc)
	}
	if s.Twitch.ClientID != "" {
		if hc, err = newHTTPClient(s.Twitch.RateRPS, logger); err != nil {
			return c, err
		}
		c.Twitch = twitch.New(s.Twitch.BaseURL, s.Twitch.ClientID, hc)
	}
	return c, nil
}

func newHTTPClient(rps float64, logger *slog.Logger) (*http.Client, error) {
	hcfg := httpclient.DefaultConfig()
	hcfg.RateLimit = rps
	hcfg.Logger = logger
	hc, err := httpclient.New(hcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create http client: %w", err)
	}
	return hc, nil
}

// oauthProviders maps service registrations to token endpoints.
func oauthProviders(s config.ServicesConfig) []oauth.ProviderConfig {
	provider := func(service string, c config.OAuthClientConfig, tokenURL string) oauth.ProviderConfig {
		if c.TokenURL != "" {
			tokenURL = c.TokenURL
		}
		return oauth.ProviderConfig{
			Service:       service,
			ClientID:      c.ClientID,
			ClientSecret:  c.ClientSecret,
			TokenURL:      tokenURL,
			RefreshBuffer: c.RefreshBuffer,
		}
	}
	return []oauth.ProviderConfig{
		provider(trigger.ServiceGmail, s.Google, endpoints.Google.TokenURL),
		provider(trigger.ServiceReddit, s.Reddit.OAuthClientConfig, redditTokenURL),
		provider("spotify", s.Spotify, endpoints.Spotify.TokenURL),
		provider(trigger.ServiceTwitch, s.Twitch, endpoints.Twitch.TokenURL),
	}
}
