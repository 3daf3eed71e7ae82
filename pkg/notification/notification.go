package notification

import (
	"github.com/seedgate/seedgate/pkg/manager"
)

// Sender delivers sweep reports to a notification service.
type Sender interface {
	manager.Notifier
}

type Field struct {
	Name  string
	Value string
	Color EmbedColors
}
