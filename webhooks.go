// Package webhooks delivers domain events to registered HTTP endpoints with
// signed payloads, durable at-least-once retries, and a dead letter queue for
// permanent failures.
package webhooks

import "github.com/goliatone/go-webhooks/core"

type Config = core.Config

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies

type Event = core.Event
type Subscription = core.Subscription
type DeliveryAttempt = core.DeliveryAttempt
type DeadLetterEntry = core.DeadLetterEntry

type AttemptStatus = core.AttemptStatus
type DeadLetterStatus = core.DeadLetterStatus
type DeadLetterSourceKind = core.DeadLetterSourceKind

type EmitRequest = core.EmitRequest
type EmitResult = core.EmitResult
type TestDeliveryRequest = core.TestDeliveryRequest
type RetryDeadLetterRequest = core.RetryDeadLetterRequest
type RetryDeadLetterResult = core.RetryDeadLetterResult

type DeliveryFilter = core.DeliveryFilter
type DeliveryPage = core.DeliveryPage
type DeadLetterFilter = core.DeadLetterFilter
type DeadLetterPage = core.DeadLetterPage
type DeadLetterStatistics = core.DeadLetterStatistics
type DispatchStats = core.DispatchStats

type Signer = core.Signer
type DeliveryClient = core.DeliveryClient
type DeliveryResult = core.DeliveryResult
type RetryBackoffScheduler = core.RetryBackoffScheduler
type MetricsRecorder = core.MetricsRecorder
type VerifyInput = core.VerifyInput

var (
	WithLogger                = core.WithLogger
	WithLoggerProvider        = core.WithLoggerProvider
	WithMetricsRecorder       = core.WithMetricsRecorder
	WithErrorFactory          = core.WithErrorFactory
	WithErrorMapper           = core.WithErrorMapper
	WithPersistenceClient     = core.WithPersistenceClient
	WithRepositoryFactory     = core.WithRepositoryFactory
	WithConfigProvider        = core.WithConfigProvider
	WithOptionsResolver       = core.WithOptionsResolver
	WithSigner                = core.WithSigner
	WithDeliveryClient        = core.WithDeliveryClient
	WithRetryBackoffScheduler = core.WithRetryBackoffScheduler
	WithEventStore            = core.WithEventStore
	WithSubscriptionStore     = core.WithSubscriptionStore
	WithAttemptStore          = core.WithAttemptStore
	WithDeadLetterStore       = core.WithDeadLetterStore

	VerifySignature = core.VerifySignature
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(cfg, opts...)
}
