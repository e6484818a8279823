package adapter

import "context"

// FlagSource exposes the externally controlled generation switch.
type FlagSource interface {
	GenerationEnabled(ctx context.Context) (bool, error)
}
