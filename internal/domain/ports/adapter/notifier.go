package adapter

import "context"

type Notification struct {
	Recipient string
	Subject   string
	Body      string
	Kind      string // notification | completion | error
}

// Notifier delivers a message on some channel. Delivery is best-effort.
type Notifier interface {
	Name() string
	Send(ctx context.Context, n Notification) error
}
