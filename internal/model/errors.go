package model

import (
	"context"
	"errors"
	"fmt"
	"net"

	"voicestack.local/voicegate/internal/faults"
)

// classifyTransportError maps an http.Client error onto the shared fault
// taxonomy: deadline overruns become gateway timeouts, everything else an
// unreachable runtime.
func classifyTransportError(provider string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %v", faults.ErrGatewayTimeout, provider, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %s: %v", faults.ErrGatewayTimeout, provider, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", faults.ErrGatewayUnavailable, provider, err)
}

func malformed(provider, detail string) error {
	return fmt.Errorf("%w: %s: %s", faults.ErrMalformedResponse, provider, detail)
}
