package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[EmitEventMessage]         = (*EmitEventCommand)(nil)
	_ gocmd.Commander[TestDeliveryMessage]      = (*TestDeliveryCommand)(nil)
	_ gocmd.Commander[RetryDeadLetterMessage]   = (*RetryDeadLetterCommand)(nil)
	_ gocmd.Commander[ResolveDeadLetterMessage] = (*ResolveDeadLetterCommand)(nil)
	_ gocmd.Commander[IgnoreDeadLetterMessage]  = (*IgnoreDeadLetterCommand)(nil)
)
