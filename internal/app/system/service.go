package system

import "context"

// Service is a lifecycle-managed component such as a scheduler or janitor.
// The Manager starts services in registration order and stops them in
// reverse.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// NoopService satisfies Service without doing any work. It marks components
// that only need to appear in the lifecycle listing.
type NoopService struct {
	ServiceName string
}

func (n NoopService) Name() string { return n.ServiceName }

func (n NoopService) Start(context.Context) error { return nil }

func (n NoopService) Stop(context.Context) error { return nil }
