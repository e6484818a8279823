package ai

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"

	"ai-transform-service/internal/domain/ports/adapter"
)

// transportError wraps a non-API failure. Timeouts and dropped connections are
// transient; anything else is treated as a rejected request.
func transportError(provider string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &adapter.ProviderError{Provider: provider, Retryable: transient(err), Err: err}
}

func transient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
