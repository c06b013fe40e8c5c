package subscribers

import (
	"context"

	"voicestack.local/voicegate/internal/events"
)

type Subscriber interface {
	Name() string
	Handle(context.Context, events.Envelope) error
}
