package query

import (
	"context"

	"github.com/goliatone/go-webhooks/core"
)

type DeliveryReader interface {
	ListDeliveries(ctx context.Context, filter core.DeliveryFilter) (core.DeliveryPage, error)
	GetDelivery(ctx context.Context, id string) (core.DeliveryAttempt, error)
}

type DeadLetterReader interface {
	ListDeadLetters(ctx context.Context, filter core.DeadLetterFilter) (core.DeadLetterPage, error)
	GetDeadLetter(ctx context.Context, id string) (core.DeadLetterEntry, error)
	DeadLetterStatistics(ctx context.Context) (core.DeadLetterStatistics, error)
}

type ListDeliveriesQuery struct {
	reader DeliveryReader
}

func NewListDeliveriesQuery(reader DeliveryReader) *ListDeliveriesQuery {
	return &ListDeliveriesQuery{reader: reader}
}

func (q *ListDeliveriesQuery) Query(ctx context.Context, msg ListDeliveriesMessage) (core.DeliveryPage, error) {
	if q == nil || q.reader == nil {
		return core.DeliveryPage{}, queryDependencyError("query: delivery reader is required")
	}
	return q.reader.ListDeliveries(ctx, msg.Filter)
}

type GetDeliveryQuery struct {
	reader DeliveryReader
}

func NewGetDeliveryQuery(reader DeliveryReader) *GetDeliveryQuery {
	return &GetDeliveryQuery{reader: reader}
}

func (q *GetDeliveryQuery) Query(ctx context.Context, msg GetDeliveryMessage) (core.DeliveryAttempt, error) {
	if q == nil || q.reader == nil {
		return core.DeliveryAttempt{}, queryDependencyError("query: delivery reader is required")
	}
	return q.reader.GetDelivery(ctx, msg.AttemptID)
}

type ListDeadLettersQuery struct {
	reader DeadLetterReader
}

func NewListDeadLettersQuery(reader DeadLetterReader) *ListDeadLettersQuery {
	return &ListDeadLettersQuery{reader: reader}
}

func (q *ListDeadLettersQuery) Query(ctx context.Context, msg ListDeadLettersMessage) (core.DeadLetterPage, error) {
	if q == nil || q.reader == nil {
		return core.DeadLetterPage{}, queryDependencyError("query: dead letter reader is required")
	}
	return q.reader.ListDeadLetters(ctx, msg.Filter)
}

type GetDeadLetterQuery struct {
	reader DeadLetterReader
}

func NewGetDeadLetterQuery(reader DeadLetterReader) *GetDeadLetterQuery {
	return &GetDeadLetterQuery{reader: reader}
}

func (q *GetDeadLetterQuery) Query(ctx context.Context, msg GetDeadLetterMessage) (core.DeadLetterEntry, error) {
	if q == nil || q.reader == nil {
		return core.DeadLetterEntry{}, queryDependencyError("query: dead letter reader is required")
	}
	return q.reader.GetDeadLetter(ctx, msg.EntryID)
}

type DeadLetterStatisticsQuery struct {
	reader DeadLetterReader
}

func NewDeadLetterStatisticsQuery(reader DeadLetterReader) *DeadLetterStatisticsQuery {
	return &DeadLetterStatisticsQuery{reader: reader}
}

func (q *DeadLetterStatisticsQuery) Query(
	ctx context.Context,
	msg DeadLetterStatisticsMessage,
) (core.DeadLetterStatistics, error) {
	if q == nil || q.reader == nil {
		return core.DeadLetterStatistics{}, queryDependencyError("query: dead letter reader is required")
	}
	return q.reader.DeadLetterStatistics(ctx)
}
