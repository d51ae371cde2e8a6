package query

import (
	"strings"

	"github.com/goliatone/go-webhooks/core"
)

const (
	TypeListDeliveries       = "webhooks.query.deliveries.list"
	TypeGetDelivery          = "webhooks.query.deliveries.get"
	TypeListDeadLetters      = "webhooks.query.dead_letters.list"
	TypeGetDeadLetter        = "webhooks.query.dead_letters.get"
	TypeDeadLetterStatistics = "webhooks.query.dead_letters.statistics"
)

type ListDeliveriesMessage struct {
	Filter core.DeliveryFilter
}

func (ListDeliveriesMessage) Type() string { return TypeListDeliveries }

func (m ListDeliveriesMessage) Validate() error {
	if m.Filter.Page < 0 {
		return queryInvalidInputError("query: page must be >= 0")
	}
	if m.Filter.PerPage < 0 {
		return queryInvalidInputError("query: per_page must be >= 0")
	}
	return nil
}

type GetDeliveryMessage struct {
	AttemptID string
}

func (GetDeliveryMessage) Type() string { return TypeGetDelivery }

func (m GetDeliveryMessage) Validate() error {
	if strings.TrimSpace(m.AttemptID) == "" {
		return queryInvalidInputError("query: attempt id is required")
	}
	return nil
}

type ListDeadLettersMessage struct {
	Filter core.DeadLetterFilter
}

func (ListDeadLettersMessage) Type() string { return TypeListDeadLetters }

func (m ListDeadLettersMessage) Validate() error {
	if m.Filter.Page < 0 {
		return queryInvalidInputError("query: page must be >= 0")
	}
	if m.Filter.PerPage < 0 {
		return queryInvalidInputError("query: per_page must be >= 0")
	}
	return nil
}

type GetDeadLetterMessage struct {
	EntryID string
}

func (GetDeadLetterMessage) Type() string { return TypeGetDeadLetter }

func (m GetDeadLetterMessage) Validate() error {
	if strings.TrimSpace(m.EntryID) == "" {
		return queryInvalidInputError("query: dead letter entry id is required")
	}
	return nil
}

type DeadLetterStatisticsMessage struct{}

func (DeadLetterStatisticsMessage) Type() string { return TypeDeadLetterStatistics }

func (DeadLetterStatisticsMessage) Validate() error { return nil }
