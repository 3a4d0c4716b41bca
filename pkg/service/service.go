package service

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/serenmind/sentinel/pkg/archive"
	"github.com/serenmind/sentinel/pkg/classifier"
	"github.com/serenmind/sentinel/pkg/config"
	"github.com/serenmind/sentinel/pkg/domain/crisis"
	"github.com/serenmind/sentinel/pkg/domain/safety"
	"github.com/serenmind/sentinel/pkg/engine"
	"github.com/serenmind/sentinel/pkg/escalation"
	"github.com/serenmind/sentinel/pkg/intervention"
	"github.com/serenmind/sentinel/pkg/rulestore"
	"github.com/serenmind/sentinel/pkg/validator"
)

// Service is the composition root of the safety engine. It is an explicit
// instance owned by the caller; nothing in this package is process-global,
// and every dependency can be overridden through options for tests.
type Service struct {
	cfg          *config.Config
	logger       *logrus.Logger
	store        rulestore.Store
	classifier   classifier.Classifier
	coordinator  *intervention.Coordinator
	dispatcher   *escalation.Dispatcher
	validator    *validator.Validator
	protocol     *intervention.Protocol
	watchCancel  context.CancelFunc
	ownsRedis    bool
	redisClient  *redis.Client
}

// Option overrides one dependency before wiring completes.
type Option func(*options)

type options struct {
	store      rulestore.Store
	classifier classifier.Classifier
	notifier   escalation.Notifier
	ledger     escalation.DeliveryLedger
	clock      intervention.Clock
	archiver   intervention.Archiver
	hooks      map[string]safety.HookFunc
	httpClient *http.Client
}

func WithStore(s rulestore.Store) Option {
	return func(o *options) { o.store = s }
}

func WithClassifier(c classifier.Classifier) Option {
	return func(o *options) { o.classifier = c }
}

func WithNotifier(n escalation.Notifier) Option {
	return func(o *options) { o.notifier = n }
}

func WithLedger(l escalation.DeliveryLedger) Option {
	return func(o *options) { o.ledger = l }
}

func WithClock(c intervention.Clock) Option {
	return func(o *options) { o.clock = c }
}

func WithArchiver(a intervention.Archiver) Option {
	return func(o *options) { o.archiver = a }
}

// WithRuleHooks registers external classifier hooks that rule definitions
// may reference by name.
func WithRuleHooks(hooks map[string]safety.HookFunc) Option {
	return func(o *options) { o.hooks = hooks }
}

func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// New wires the safety engine from configuration. A missing backing store is
// never fatal: the service starts on the bundled rule set and reports
// degraded health instead of refusing to serve.
func New(cfg *config.Config, logger *logrus.Logger, opts ...Option) (*Service, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	s := &Service{cfg: cfg, logger: logger}

	if err := s.wireStore(cfg, logger, &o); err != nil {
		return nil, err
	}
	s.wireClassifier(cfg, &o)

	if err := s.wireEscalation(cfg, logger, &o); err != nil {
		return nil, err
	}

	s.protocol = intervention.DefaultProtocol()

	archiver := o.archiver
	if archiver == nil && cfg.Database.Enabled {
		repo, err := archive.NewPostgresRepository(archive.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize intervention archive: %w", err)
		}
		archiver = repo
	}

	s.coordinator = intervention.NewCoordinator(
		s.protocol,
		s.dispatcher,
		archiver,
		o.clock,
		intervention.Config{
			ConfidenceThreshold: cfg.Intervention.ConfidenceThreshold,
			AssessmentWindow:    cfg.Intervention.AssessmentWindow,
			CoolDown:            cfg.Intervention.CoolDown,
			Timeout:             cfg.Intervention.Timeout,
			HardCeiling:         cfg.Intervention.HardCeiling,
			EscalateLevel:       parseEscalateLevel(cfg.Intervention.EscalateLevel),
		},
		logger,
	)

	eng := engine.New(s.store, engine.Config{
		FailureRatio: cfg.Engine.FailureRatio,
		MaxParallel:  cfg.Engine.MaxParallel,
	}, logger)

	s.validator = validator.New(eng, s.classifier, s.coordinator, logger)

	watchCtx, cancel := context.WithCancel(context.Background())
	s.watchCancel = cancel
	go s.store.Watch(watchCtx, func(set *safety.RuleSet) {
		logger.WithField("version", set.Version).Info("active rule set swapped")
	})

	return s, nil
}

func (s *Service) wireStore(cfg *config.Config, logger *logrus.Logger, o *options) error {
	if o.store != nil {
		s.store = o.store
		return nil
	}

	switch cfg.RuleStore.Type {
	case "redis":
		s.ensureRedis(cfg)
		compiler := rulestore.NewCompiler(logger, o.hooks)
		s.store = rulestore.NewRedisStore(
			s.redisClient,
			compiler,
			rulestore.DefaultRuleSet(),
			rulestore.RedisStoreConfig{
				Key:           cfg.RuleStore.Key,
				UpdateChannel: cfg.RuleStore.UpdateChannel,
			},
			logger,
		)
	default:
		s.store = rulestore.NewMemoryStore(nil)
	}
	return nil
}

func (s *Service) wireClassifier(cfg *config.Config, o *options) {
	if o.classifier != nil {
		s.classifier = o.classifier
		return
	}

	heuristic := classifier.NewHeuristic()
	var remote *classifier.Remote
	if cfg.Classifier.Endpoint != "" {
		remote = classifier.NewRemote(classifier.RemoteConfig{
			Endpoint:    cfg.Classifier.Endpoint,
			APIKey:      cfg.Classifier.APIKey,
			Timeout:     cfg.Classifier.Timeout,
			MaxFailures: cfg.Classifier.MaxFailures,
		}, o.httpClient)
	}
	s.classifier = classifier.NewHybrid(remote, heuristic, s.logger)
}

func (s *Service) wireEscalation(cfg *config.Config, logger *logrus.Logger, o *options) error {
	notifier := o.notifier
	if notifier == nil {
		switch cfg.Escalation.Notifier {
		case "kafka":
			kn, err := escalation.NewKafkaNotifier(escalation.KafkaConfig{
				Host:  cfg.Escalation.KafkaHost,
				Port:  cfg.Escalation.KafkaPort,
				Topic: cfg.Escalation.KafkaTopic,
			})
			if err != nil {
				return fmt.Errorf("failed to initialize kafka notifier: %w", err)
			}
			notifier = kn
		default:
			notifier = escalation.NewWebhookNotifier(cfg.Escalation.WebhookURL, o.httpClient, 0)
		}
	}

	ledger := o.ledger
	if ledger == nil {
		if cfg.RuleStore.Type == "redis" {
			s.ensureRedis(cfg)
			ledger = escalation.NewRedisLedger(s.redisClient, 0)
		} else {
			ledger = escalation.NewMemoryLedger()
		}
	}

	s.dispatcher = escalation.NewDispatcher(notifier, ledger, escalation.DispatcherConfig{
		MaxAttempts: cfg.Escalation.MaxAttempts,
		BaseBackoff: cfg.Escalation.BaseBackoff,
		MaxBackoff:  cfg.Escalation.MaxBackoff,
	}, logger)
	return nil
}

func (s *Service) ensureRedis(cfg *config.Config) {
	if s.redisClient != nil {
		return
	}
	s.redisClient = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	s.ownsRedis = true
}

// Validate evaluates one piece of content and returns the gating decision.
func (s *Service) Validate(ctx context.Context, content string, tctx validator.Context) safety.Result {
	return s.validator.Validate(ctx, content, tctx)
}

// ValidateAndAssess returns both the gating decision and the crisis
// assessment that informed it.
func (s *Service) ValidateAndAssess(ctx context.Context, content string, tctx validator.Context) (safety.Result, crisis.Assessment) {
	return s.validator.ValidateAndAssess(ctx, content, tctx)
}

// AssessCrisis runs only the crisis classifier.
func (s *Service) AssessCrisis(ctx context.Context, content string, history []crisis.HistoryEntry) crisis.Assessment {
	return s.classifier.Assess(ctx, content, history)
}

// ActiveIntervention returns a snapshot of the session's active intervention.
func (s *Service) ActiveIntervention(sessionID string) (*crisis.Intervention, bool) {
	return s.coordinator.Active(sessionID)
}

// CompleteActions reports that the pipeline carried out every pending
// intervention action for the session.
func (s *Service) CompleteActions(sessionID string) error {
	return s.coordinator.CompleteActions(sessionID)
}

// Close stops the watch goroutine, pending escalations and owned clients.
func (s *Service) Close() error {
	s.watchCancel()
	s.coordinator.Close()
	if err := s.store.Close(); err != nil {
		return err
	}
	if s.ownsRedis && s.redisClient != nil {
		return s.redisClient.Close()
	}
	return nil
}

func parseEscalateLevel(name string) crisis.Level {
	switch name {
	case "low":
		return crisis.LevelLow
	case "moderate":
		return crisis.LevelModerate
	case "high":
		return crisis.LevelHigh
	default:
		return crisis.LevelCritical
	}
}
