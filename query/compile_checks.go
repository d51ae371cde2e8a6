package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-webhooks/core"
)

var (
	_ gocmd.Querier[ListDeliveriesMessage, core.DeliveryPage]               = (*ListDeliveriesQuery)(nil)
	_ gocmd.Querier[GetDeliveryMessage, core.DeliveryAttempt]               = (*GetDeliveryQuery)(nil)
	_ gocmd.Querier[ListDeadLettersMessage, core.DeadLetterPage]            = (*ListDeadLettersQuery)(nil)
	_ gocmd.Querier[GetDeadLetterMessage, core.DeadLetterEntry]             = (*GetDeadLetterQuery)(nil)
	_ gocmd.Querier[DeadLetterStatisticsMessage, core.DeadLetterStatistics] = (*DeadLetterStatisticsQuery)(nil)
)
