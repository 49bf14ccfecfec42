// Package followup provides the lead follow-up engine module.
package followup

import (
	"fmt"

	"nurture_backend/internal/email"
	"nurture_backend/internal/events"
	"nurture_backend/internal/followup/analytics"
	"nurture_backend/internal/followup/channels"
	"nurture_backend/internal/followup/content"
	"nurture_backend/internal/followup/execution"
	"nurture_backend/internal/followup/handler"
	"nurture_backend/internal/followup/repository"
	"nurture_backend/internal/followup/scheduling"
	"nurture_backend/internal/followup/scoring"
	"nurture_backend/internal/followup/sequences"
	"nurture_backend/internal/followup/transport"
	apphttp "nurture_backend/internal/http"
	"nurture_backend/internal/sms"
	"nurture_backend/platform/ai/completion"
	"nurture_backend/platform/config"
	"nurture_backend/platform/logger"
	"nurture_backend/platform/storage"
	"nurture_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Per-channel delivery limits, shared by all enrollments of a process.
const (
	emailPerSecond = 10
	emailBurst     = 10
	smsPerSecond   = 5
	smsBurst       = 5
	chatPerSecond  = 5
	chatBurst      = 5
)

// Config combines the settings the module reads.
type Config interface {
	config.EmailConfig
	config.SMSConfig
	config.ChatConfig
	config.FollowupConfig
}

// Dependencies are the shared collaborators built by the composition root.
type Dependencies struct {
	Config    Config
	Completer completion.Completer
	Archive   storage.Archiver
	Email     email.Sender
	EventBus  events.Bus
	Validator *validator.Validator
	Log       *logger.Logger
}

// Module represents the follow-up domain module
type Module struct {
	handler  *handler.Handler
	repo     *repository.Repo
	enroll   *scheduling.Service
	executor *execution.Executor
}

// NewModule creates the follow-up module with all dependencies wired
func NewModule(pool *pgxpool.Pool, deps Dependencies) (*Module, error) {
	if deps.Validator != nil {
		if err := transport.RegisterValidations(deps.Validator); err != nil {
			return nil, fmt.Errorf("register followup validations: %w", err)
		}
	}
	defaults, err := sequences.DefaultDefinitions()
	if err != nil {
		return nil, fmt.Errorf("load default sequences: %w", err)
	}

	repo := repository.New(pool)

	opts := []content.Option{content.WithSMSMaxLength(deps.Config.GetSMSMaxLength())}
	if deps.Archive != nil {
		opts = append(opts, content.WithArchive(deps.Archive))
	}
	writer := content.NewGenerator(repo, deps.Completer, deps.Log, opts...)

	enroll := scheduling.New(repo, deps.EventBus, deps.Log)
	executor := execution.New(repo, enroll, writer, newRegistry(deps), deps.EventBus, deps.Log)

	h := handler.New(handler.Deps{
		Sequences: sequences.New(repo, deps.Log),
		Enroll:    enroll,
		Scores:    scoring.New(repo, deps.Completer, deps.Log),
		Writer:    writer,
		Stats:     analytics.New(repo),
		Leads:     repo,
		EventBus:  deps.EventBus,
		Defaults:  defaults,
	}, deps.Validator)

	return &Module{
		handler:  h,
		repo:     repo,
		enroll:   enroll,
		executor: executor,
	}, nil
}

// newRegistry registers a dispatcher for every configured channel. Social
// posting has no dispatcher, so social steps fail as unavailable.
func newRegistry(deps Dependencies) *channels.Registry {
	cfg := deps.Config
	dispatchers := []channels.Dispatcher{channels.CallDispatcher{}}

	if cfg.GetEmailEnabled() && deps.Email != nil {
		dispatchers = append(dispatchers, channels.Limit(channels.NewEmailDispatcher(deps.Email), emailPerSecond, emailBurst))
	}
	if client := sms.NewClient(cfg, cfg.GetPhoneDefaultRegion(), deps.Log); client != nil {
		dispatchers = append(dispatchers, channels.Limit(channels.NewSMSDispatcher(client), smsPerSecond, smsBurst))
	}
	if starter := channels.NewChatStarter(cfg); starter != nil {
		dispatchers = append(dispatchers, channels.Limit(starter, chatPerSecond, chatBurst))
	}

	for _, d := range dispatchers {
		deps.Log.Info("followup channel enabled", "channel", d.Channel())
	}
	return channels.NewRegistry(dispatchers...)
}

// Name returns the module name for logging
func (m *Module) Name() string {
	return "followup"
}

// RegisterRoutes registers the module's routes under /api/v1/followup
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/followup"))
}

// RegisterHandlers subscribes enrollment to lead lifecycle events.
func (m *Module) RegisterHandlers(bus events.Bus) {
	m.enroll.RegisterHandlers(bus)
}

// Repository exposes the store for the scheduler process.
func (m *Module) Repository() *repository.Repo {
	return m.repo
}

// Executor runs due steps for the scheduler process.
func (m *Module) Executor() *execution.Executor {
	return m.executor
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
