package llm

import (
	"context"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
)

// transientMarkers are lowercased substrings that identify API failures
// worth retrying: rate limiting, transient overload, and flaky transport
// errors seen in long-running sessions.
var transientMarkers = []string{
	"429",
	"rate limit",
	"overloaded",
	"ssl",
	"record mac",
	"connection reset",
	"timeout",
	"temporarily unavailable",
}

// isTransient classifies an API error by message substring. The SDK does not
// expose a stable typed taxonomy for the transport-level failures we care
// about, so matching the rendered message is the pragmatic option.
func isTransient(err error) bool {
	if err == nil {
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}

	return false
}

// callWithRetry issues the request, retrying transient failures with
// doubling backoff. Non-transient errors and context cancellation abort
// immediately.
func (c *AnthropicClient) callWithRetry(ctx context.Context,
	params sdk.MessageNewParams) (*sdk.Message, error) {

	var lastErr error
	backoff := c.cfg.RetryBase

	for attempt := 0; attempt <= c.cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		msg, err := c.msg.New(ctx, params)
		if err == nil {
			return msg, nil
		}
		lastErr = err

		if !isTransient(err) {
			return nil, err
		}

		log.WarnS(ctx, "Transient API error, retrying", err,
			"attempt", attempt+1,
			"backoff", backoff)
	}

	return nil, lastErr
}
