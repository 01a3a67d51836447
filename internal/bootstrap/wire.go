package bootstrap

import (
	"context"
	"fmt"

	"github.com/uber-go/tally"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"liveassist/internal/clock"
	"liveassist/internal/config"
	"liveassist/internal/domain"
	"liveassist/internal/logging"
	"liveassist/internal/ports"
	"liveassist/internal/session"
	"liveassist/internal/transport/websocket"
	"liveassist/internal/usecase"
)

// Options are supplied by the caller of Build.
type Options struct {
	ConfigPath string
	Sink       ports.EventSink
	Clipboard  ports.Clipboard
}

// Module provides the client runtime graph. It needs an Options value in the graph.
var Module = fx.Options(
	fx.Provide(
		newConfig,
		newLogger,
		newScope,
		clock.New,
		newDialer,
		newSession,
		newAssistant,
	),
)

// Services is the assembled runtime graph.
type Services struct {
	Config    config.Config
	Logger    *zap.SugaredLogger
	Session   *session.Manager
	Assistant *usecase.Assistant

	app *fx.App
}

// Build wires and starts all client dependencies.
func Build(ctx context.Context, opts Options, extra ...fx.Option) (*Services, error) {
	services := &Services{}
	app := fx.New(
		fx.Supply(opts),
		Module,
		fx.WithLogger(func(logger *zap.SugaredLogger) fxevent.Logger {
			l := &fxevent.ZapLogger{Logger: logger.Desugar()}
			l.UseLogLevel(zapcore.DebugLevel)
			return l
		}),
		fx.Populate(&services.Config, &services.Logger, &services.Session, &services.Assistant),
		fx.Options(extra...),
	)
	if err := app.Err(); err != nil {
		return nil, err
	}
	if err := app.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting services: %w", err)
	}
	services.app = app
	return services, nil
}

// Close disposes the session and flushes metrics and logs.
func (s *Services) Close(ctx context.Context) error {
	if s == nil || s.app == nil {
		return nil
	}
	return s.app.Stop(ctx)
}

func newConfig(opts Options) (config.Config, error) {
	return config.Load(opts.ConfigPath)
}

func newLogger(lc fx.Lifecycle, cfg config.Config) (*zap.SugaredLogger, error) {
	logger, cleanup, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			cleanup()
			return nil
		},
	})
	return logger, nil
}

func newScope(lc fx.Lifecycle, cfg config.Config, logger *zap.SugaredLogger) tally.Scope {
	scope, closer := tally.NewRootScope(tally.ScopeOptions{
		Prefix:   cfg.Metrics.Prefix,
		Tags:     map[string]string{"service": "liveassist"},
		Reporter: newLogReporter(logger),
	}, cfg.Metrics.ReportInterval())

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return closer.Close()
		},
	})
	return scope
}

func newDialer(cfg config.Config, logger *zap.SugaredLogger) (ports.Dialer, error) {
	return websocket.NewDialer(websocket.Config{
		URL:              cfg.Server.URL,
		HandshakeTimeout: cfg.Server.HandshakeTimeout(),
		WriteTimeout:     cfg.Server.WriteTimeout(),
		PingInterval:     cfg.Server.PingInterval(),
	}, logger)
}

type sessionParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	Dialer    ports.Dialer
	Clock     clock.Clock
	Logger    *zap.SugaredLogger
	Stats     tally.Scope
}

func newSession(p sessionParams) (*session.Manager, error) {
	m := session.New(session.Params{
		Dialer: p.Dialer,
		Clock:  p.Clock,
		Logger: p.Logger,
		Stats:  p.Stats.SubScope("session"),
		Config: session.Config{
			MaxAttempts:     p.Config.Session.MaxAttempts,
			BaseDelay:       p.Config.Session.BaseDelay(),
			MaxDelay:        p.Config.Session.MaxDelay(),
			ResumeRecording: p.Config.Session.ResumeRecording,
		},
	})
	if err := m.SetOption("privacy", p.Config.Options.Privacy); err != nil {
		return nil, err
	}
	p.Logger.Infow("session created", "session", m.ID().String(), "url", p.Config.Server.URL)

	p.Lifecycle.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return m.Dispose()
		},
	})
	return m, nil
}

type assistantParams struct {
	fx.In

	Options Options
	Session *session.Manager
	Clock   clock.Clock
	Logger  *zap.SugaredLogger
}

func newAssistant(p assistantParams) *usecase.Assistant {
	sink := p.Options.Sink
	if sink == nil {
		sink = discardSink{}
	}
	return usecase.NewAssistant(usecase.AssistantParams{
		Session:   p.Session,
		Sink:      sink,
		Clipboard: p.Options.Clipboard,
		Clock:     p.Clock,
		Logger:    p.Logger,
	})
}

// discardSink is used when the caller renders nothing.
type discardSink struct{}

func (discardSink) ConnectionChanged(domain.Status)       {}
func (discardSink) PeerStatus(string, bool)               {}
func (discardSink) AnalysisReceived(domain.AnalysisEntry) {}
func (discardSink) SessionError(domain.ErrorCode, string) {}
