package system

import "context"

// Service is a component with a managed lifecycle, such as the listing
// expiry sweeper. The manager starts services in registration order and
// stops them in reverse.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
