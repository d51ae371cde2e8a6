package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

type Service struct {
	config            Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorFactory      ErrorFactory
	errorMapper       ErrorMapper
	persistenceClient any
	repositoryFactory any
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	signer            Signer
	deliveryClient    DeliveryClient
	retryScheduler    RetryBackoffScheduler
	eventStore        EventStore
	subscriptionStore SubscriptionStore
	attemptStore      AttemptStore
	deadLetterStore   DeadLetterStore
	matcher           *Matcher
	dispatcher        *DeliveryDispatcher
	workers           *WorkerPool
	now               func() time.Time
}

type ServiceDependencies struct {
	Logger            Logger
	LoggerProvider    LoggerProvider
	MetricsRecorder   MetricsRecorder
	ErrorFactory      ErrorFactory
	ErrorMapper       ErrorMapper
	PersistenceClient any
	RepositoryFactory any
	ConfigProvider    ConfigProvider
	OptionsResolver   OptionsResolver
	Signer            Signer
	DeliveryClient    DeliveryClient
	RetryScheduler    RetryBackoffScheduler
	EventStore        EventStore
	SubscriptionStore SubscriptionStore
	AttemptStore      AttemptStore
	DeadLetterStore   DeadLetterStore
}

func NewService(cfg Config, options ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("webhooks", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("webhooks"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.signer == nil {
		builder.signer = HMACSigner{}
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if builder.missingStores() && builder.repositoryFactory != nil {
		if storeFactory, ok := builder.repositoryFactory.(RepositoryStoreFactory); ok {
			storeProvider, buildErr := storeFactory.BuildStores(builder.persistenceClient)
			if buildErr != nil {
				return nil, mapBuildError(builder.errorMapper, buildErr)
			}
			builder.adoptStores(storeProvider)
		} else if storeProvider, ok := builder.repositoryFactory.(StoreProvider); ok {
			builder.adoptStores(storeProvider)
		}
	}

	if builder.retryScheduler == nil {
		builder.retryScheduler = &ExponentialBackoffScheduler{
			Base: finalConfig.BaseBackoff(),
			Max:  finalConfig.MaxBackoff(),
		}
	}
	if builder.deliveryClient == nil {
		builder.deliveryClient = NewHTTPDeliveryClient(finalConfig.HTTPTimeout(), builder.signer)
	}

	service := &Service{
		config:            finalConfig,
		logger:            logger,
		loggerProvider:    provider,
		metricsRecorder:   builder.metricsRecorder,
		errorFactory:      builder.errorFactory,
		errorMapper:       builder.errorMapper,
		persistenceClient: builder.persistenceClient,
		repositoryFactory: builder.repositoryFactory,
		configProvider:    builder.configProvider,
		optionsResolver:   builder.optionsResolver,
		signer:            builder.signer,
		deliveryClient:    builder.deliveryClient,
		retryScheduler:    builder.retryScheduler,
		eventStore:        builder.eventStore,
		subscriptionStore: builder.subscriptionStore,
		attemptStore:      builder.attemptStore,
		deadLetterStore:   builder.deadLetterStore,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}

	if service.subscriptionStore != nil && service.attemptStore != nil {
		matcher, matcherErr := NewMatcher(service.subscriptionStore, service.attemptStore)
		if matcherErr != nil {
			return nil, mapBuildError(builder.errorMapper, matcherErr)
		}
		service.matcher = matcher
	}
	if service.storesConfigured() {
		dispatcher, dispatcherErr := NewDeliveryDispatcher(finalConfig, DispatcherDependencies{
			Events:        service.eventStore,
			Subscriptions: service.subscriptionStore,
			Attempts:      service.attemptStore,
			DeadLetters:   service.deadLetterStore,
			Client:        service.deliveryClient,
			Scheduler:     service.retryScheduler,
			Logger:        logger,
		})
		if dispatcherErr != nil {
			return nil, mapBuildError(builder.errorMapper, dispatcherErr)
		}
		service.dispatcher = dispatcher

		workers, workersErr := NewWorkerPool(finalConfig, dispatcher, logger)
		if workersErr != nil {
			return nil, mapBuildError(builder.errorMapper, workersErr)
		}
		service.workers = workers
	}

	return service, nil
}

func Setup(cfg Config, options ...Option) (*Service, error) {
	return NewService(cfg, options...)
}

func (b *serviceBuilder) missingStores() bool {
	return b.eventStore == nil || b.subscriptionStore == nil ||
		b.attemptStore == nil || b.deadLetterStore == nil
}

func (b *serviceBuilder) adoptStores(provider StoreProvider) {
	if provider == nil {
		return
	}
	if b.eventStore == nil {
		b.eventStore = provider.EventStore()
	}
	if b.subscriptionStore == nil {
		b.subscriptionStore = provider.SubscriptionStore()
	}
	if b.attemptStore == nil {
		b.attemptStore = provider.AttemptStore()
	}
	if b.deadLetterStore == nil {
		b.deadLetterStore = provider.DeadLetterStore()
	}
}

func (s *Service) storesConfigured() bool {
	return s != nil && s.eventStore != nil && s.subscriptionStore != nil &&
		s.attemptStore != nil && s.deadLetterStore != nil
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:            s.logger,
		LoggerProvider:    s.loggerProvider,
		MetricsRecorder:   s.metricsRecorder,
		ErrorFactory:      s.errorFactory,
		ErrorMapper:       s.errorMapper,
		PersistenceClient: s.persistenceClient,
		RepositoryFactory: s.repositoryFactory,
		ConfigProvider:    s.configProvider,
		OptionsResolver:   s.optionsResolver,
		Signer:            s.signer,
		DeliveryClient:    s.deliveryClient,
		RetryScheduler:    s.retryScheduler,
		EventStore:        s.eventStore,
		SubscriptionStore: s.subscriptionStore,
		AttemptStore:      s.attemptStore,
		DeadLetterStore:   s.deadLetterStore,
	}
}

// Dispatcher exposes the queue dispatcher for embedding hosts that drive
// dispatch cycles themselves instead of using the worker pool.
func (s *Service) Dispatcher() *DeliveryDispatcher {
	if s == nil {
		return nil
	}
	return s.dispatcher
}

// StartWorkers launches the background worker pool.
func (s *Service) StartWorkers(ctx context.Context) error {
	if s == nil || s.workers == nil {
		return s.mapError(fmt.Errorf("core: worker pool is not configured"))
	}
	return s.workers.Start(ctx)
}

// StopWorkers shuts the worker pool down, waiting until ctx expires.
func (s *Service) StopWorkers(ctx context.Context) error {
	if s == nil || s.workers == nil {
		return nil
	}
	return s.workers.Stop(ctx)
}

type EmitRequest struct {
	Type    string
	Payload map[string]any
}

type EmitResult struct {
	Event    Event
	Matched  int
	Attempts []DeliveryAttempt
}

// Emit records an event and fans it out to every matching active
// subscription as pending delivery attempts. Emit never performs HTTP calls;
// the worker pool picks the attempts up asynchronously.
func (s *Service) Emit(ctx context.Context, req EmitRequest) (result EmitResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"event_type": req.Type,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "emit", err, fields)
	}()

	if s == nil || s.eventStore == nil || s.matcher == nil {
		err = s.mapError(fmt.Errorf("core: service stores are not configured"))
		return EmitResult{}, err
	}

	event, err := NewEvent(req.Type, req.Payload)
	if err != nil {
		err = s.mapError(err)
		return EmitResult{}, err
	}
	if err = s.eventStore.Save(ctx, event); err != nil {
		err = s.mapError(err)
		return EmitResult{}, err
	}

	matched, err := s.matcher.Match(ctx, event)
	if err != nil {
		err = s.mapError(err)
		return EmitResult{}, err
	}
	attempts, err := s.matcher.FanOut(ctx, event, matched)
	if err != nil {
		err = s.mapError(err)
		return EmitResult{}, err
	}

	fields["event_id"] = event.ID
	fields["matched"] = len(matched)
	return EmitResult{
		Event:    event,
		Matched:  len(matched),
		Attempts: attempts,
	}, nil
}

type TestDeliveryRequest struct {
	SubscriptionID string
	Payload        map[string]any
}

// TestDelivery enqueues a synthetic webhook.test event for a single
// subscription. The event flows through the regular pipeline, so signing,
// classification, retries, and dead lettering all behave exactly as they
// would for a production event.
func (s *Service) TestDelivery(ctx context.Context, req TestDeliveryRequest) (attempt DeliveryAttempt, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"subscription_id": req.SubscriptionID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "test_delivery", err, fields)
	}()

	if s == nil || s.eventStore == nil || s.subscriptionStore == nil || s.attemptStore == nil {
		err = s.mapError(fmt.Errorf("core: service stores are not configured"))
		return DeliveryAttempt{}, err
	}
	subscriptionID := strings.TrimSpace(req.SubscriptionID)
	if subscriptionID == "" {
		err = s.mapError(fmt.Errorf("core: subscription id is required"))
		return DeliveryAttempt{}, err
	}

	subscription, err := s.subscriptionStore.Get(ctx, subscriptionID)
	if err != nil {
		err = s.mapError(err)
		return DeliveryAttempt{}, err
	}

	payload := req.Payload
	if payload == nil {
		payload = map[string]any{"test": true}
	}
	event, err := NewEvent(TestEventType, payload)
	if err != nil {
		err = s.mapError(err)
		return DeliveryAttempt{}, err
	}
	if err = s.eventStore.Save(ctx, event); err != nil {
		err = s.mapError(err)
		return DeliveryAttempt{}, err
	}

	attempt, _, err = s.attemptStore.CreatePending(ctx, event.ID, subscription.ID, FanOutDedupeKey(event.ID, subscription.ID))
	if err != nil {
		err = s.mapError(err)
		return DeliveryAttempt{}, err
	}

	fields["event_id"] = event.ID
	return attempt, nil
}

// ListDeliveries pages through delivery attempts matching filter.
func (s *Service) ListDeliveries(ctx context.Context, filter DeliveryFilter) (page DeliveryPage, err error) {
	startedAt := time.Now().UTC()
	defer func() {
		s.observeOperation(ctx, startedAt, "list_deliveries", err, nil)
	}()

	if s == nil || s.attemptStore == nil {
		err = s.mapError(fmt.Errorf("core: attempt store is not configured"))
		return DeliveryPage{}, err
	}
	page, err = s.attemptStore.List(ctx, filter)
	if err != nil {
		err = s.mapError(err)
		return DeliveryPage{}, err
	}
	return page, nil
}

// GetDelivery returns a single delivery attempt by id.
func (s *Service) GetDelivery(ctx context.Context, id string) (DeliveryAttempt, error) {
	if s == nil || s.attemptStore == nil {
		return DeliveryAttempt{}, s.mapError(fmt.Errorf("core: attempt store is not configured"))
	}
	attempt, err := s.attemptStore.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		return DeliveryAttempt{}, s.mapError(err)
	}
	return attempt, nil
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}
