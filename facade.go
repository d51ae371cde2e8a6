package webhooks

import (
	"fmt"

	webhookscommand "github.com/goliatone/go-webhooks/command"
	webhooksquery "github.com/goliatone/go-webhooks/query"
)

// CommandQueryService is the surface the facade wires into the command and
// query buses. *core.Service satisfies it.
type CommandQueryService interface {
	webhookscommand.MutatingService
	webhooksquery.DeliveryReader
	webhooksquery.DeadLetterReader
}

type Commands struct {
	EmitEvent         *webhookscommand.EmitEventCommand
	TestDelivery      *webhookscommand.TestDeliveryCommand
	RetryDeadLetter   *webhookscommand.RetryDeadLetterCommand
	ResolveDeadLetter *webhookscommand.ResolveDeadLetterCommand
	IgnoreDeadLetter  *webhookscommand.IgnoreDeadLetterCommand
}

type Queries struct {
	ListDeliveries       *webhooksquery.ListDeliveriesQuery
	GetDelivery          *webhooksquery.GetDeliveryQuery
	ListDeadLetters      *webhooksquery.ListDeadLettersQuery
	GetDeadLetter        *webhooksquery.GetDeadLetterQuery
	DeadLetterStatistics *webhooksquery.DeadLetterStatisticsQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

func NewFacade(service CommandQueryService) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("webhooks: command/query service is required")
	}
	facade := &Facade{service: service}
	facade.commands = Commands{
		EmitEvent:         webhookscommand.NewEmitEventCommand(service),
		TestDelivery:      webhookscommand.NewTestDeliveryCommand(service),
		RetryDeadLetter:   webhookscommand.NewRetryDeadLetterCommand(service),
		ResolveDeadLetter: webhookscommand.NewResolveDeadLetterCommand(service),
		IgnoreDeadLetter:  webhookscommand.NewIgnoreDeadLetterCommand(service),
	}
	facade.queries = Queries{
		ListDeliveries:       webhooksquery.NewListDeliveriesQuery(service),
		GetDelivery:          webhooksquery.NewGetDeliveryQuery(service),
		ListDeadLetters:      webhooksquery.NewListDeadLettersQuery(service),
		GetDeadLetter:        webhooksquery.NewGetDeadLetterQuery(service),
		DeadLetterStatistics: webhooksquery.NewDeadLetterStatisticsQuery(service),
	}
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}
