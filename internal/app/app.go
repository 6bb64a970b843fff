package app

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	"structurizer/internal/channel"
	"structurizer/internal/config"
	"structurizer/internal/coordinator"
	"structurizer/internal/extractor"
	"structurizer/internal/inputprocessor"
	"structurizer/internal/models"
	"structurizer/internal/store"
)

// App is the application session: one channel manager, one state store and one
// coordinator, built from config and torn down together.
type App struct {
	Config *config.Config

	InputProcessor inputprocessor.Processor
	Extractor      *extractor.Client
	Channels       *channel.Manager
	Store          *store.StateStore
	Coordinator    *coordinator.Coordinator

	dialer channel.Dialer
	submit extractor.Submitter
}

// Option overrides a collaborator, mainly for tests.
type Option func(*App)

// WithDialer replaces the WebSocket dialer the channel manager uses.
func WithDialer(d channel.Dialer) Option {
	return func(a *App) { a.dialer = d }
}

// WithSubmitter replaces the HTTP submission client.
func WithSubmitter(s extractor.Submitter) Option {
	return func(a *App) { a.submit = s }
}

func NewApp(cfg *config.Config, inputProc inputprocessor.Processor, opts ...Option) (*App, error) {
	app := &App{Config: cfg, InputProcessor: inputProc}
	for _, o := range opts {
		o(app)
	}

	if err := app.initLogging(); err != nil {
		return nil, err
	}
	if err := app.initUploadDir(); err != nil {
		return nil, err
	}
	app.initExtractor()
	app.initChannels()
	app.initCoordinator()

	log.Debug("Application initialization complete.")
	return app, nil
}

// --- Private Helper Methods ---

func (a *App) initLogging() error {
	level, err := log.ParseLevel(a.Config.Log.Level)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	log.SetLevel(level)
	return nil
}

func (a *App) initUploadDir() error {
	if err := os.MkdirAll(a.Config.Server.UploadDir, 0o750); err != nil {
		return fmt.Errorf("init upload dir %s: %w", a.Config.Server.UploadDir, err)
	}
	return nil
}

func (a *App) initExtractor() {
	a.Extractor = extractor.NewClient(a.Config.Service.BaseURL, a.Config.Service.Timeout)
}

func (a *App) initChannels() {
	d := a.dialer
	if d == nil {
		d = channel.NewWebSocketDialer(a.Config.Service.WSURL)
	}
	a.Channels = channel.NewManager(d, channel.Options{
		BaseDelay:   a.Config.Channel.BaseDelay,
		MaxAttempts: a.Config.Channel.MaxAttempts,
		DialTimeout: a.Config.Channel.DialTimeout,
	})
}

func (a *App) initCoordinator() {
	a.Store = store.NewStateStore(models.Snapshot{})
	a.Coordinator = coordinator.New(a.submitter(), a.Channels, a.Store, coordinator.Options{})
}

func (a *App) submitter() extractor.Submitter {
	if a.submit != nil {
		return a.submit
	}
	return a.Extractor
}

// Close tears down every open status channel and pending reconnect.
func (a *App) Close() {
	if a.Coordinator != nil {
		a.Coordinator.Close()
	}
}
