package classifier

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/dshills/filescope-mcp/internal/retry"
)

// binarySniffLen is how much content is inspected to decide whether a file is binary
const binarySniffLen = 8000

// Policy controls how the gateway uses the remote classifier
type Policy struct {
	Offline    bool          // Never call the remote classifier
	MaxRetries int           // Retries after the first attempt for unreachable/timeout failures
	BaseDelay  time.Duration // Delay before the first retry
	MaxDelay   time.Duration // Cap on any single delay
	Multiplier float64       // Backoff multiplier; values below 1 mean a constant delay
	Timeout    time.Duration // Per-attempt limit; zero relies on the remote's own timeout
}

// Outcome is the result of classifying one file through the gateway
type Outcome struct {
	Result   *Result
	Provider string // Classifier that produced Result
	Fallback bool   // Result came from the offline classifier after the remote one failed
	Attempts int    // Remote attempts made
	Err      error  // Final remote error when Fallback is set

	// Cancelled means the caller's context ended between retries; Result is nil
	// and the file should be left for the next scan.
	Cancelled bool
}

// Gateway selects between the remote and offline classifiers and applies the retry policy
type Gateway struct {
	remote  Classifier
	offline *Offline
	policy  Policy
	logger  *slog.Logger
}

// NewGateway creates a gateway. remote may be nil, which behaves like offline mode.
func NewGateway(remote Classifier, offline *Offline, policy Policy, logger *slog.Logger) *Gateway {
	if offline == nil {
		offline = NewOffline()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		remote:  remote,
		offline: offline,
		policy:  policy,
		logger:  logger.With("component", "classifier"),
	}
}

// Offline reports whether every file is classified offline
func (g *Gateway) Offline() bool {
	return g.policy.Offline || g.remote == nil
}

// Classify runs the policy for one file.
//
// Attempts already in flight are never aborted by ctx; each is bounded by the
// policy timeout. Cancellation is only observed between attempts.
func (g *Gateway) Classify(ctx context.Context, req Request) Outcome {
	if len(bytes.TrimSpace(req.Content)) == 0 {
		return Outcome{
			Result: &Result{
				Category: "Unknown",
				Summary:  "Empty or unreadable file",
				Keywords: []string{},
			},
			Provider: ProviderOffline,
		}
	}

	if g.Offline() || isBinary(req.Content) {
		return Outcome{Result: g.offline.classify(req), Provider: ProviderOffline}
	}

	cfg := retry.Config{
		MaxRetries: g.policy.MaxRetries,
		BaseDelay:  g.policy.BaseDelay,
		MaxDelay:   g.policy.MaxDelay,
		Multiplier: g.policy.Multiplier,
	}
	result, attempts, err := retry.Do(ctx, cfg, IsRetryable, func() (*Result, error) {
		return g.attempt(ctx, req)
	})
	if err == nil {
		return Outcome{Result: result, Provider: g.remote.Name(), Attempts: attempts}
	}

	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return Outcome{Attempts: attempts, Err: err, Cancelled: true}
	}

	g.logger.Warn("remote classification failed, using offline classifier",
		slog.String("path", req.Path),
		slog.String("reason", string(ReasonOf(err))),
		slog.Int("attempts", attempts),
		slog.Any("error", err))

	return Outcome{
		Result:   g.offline.classify(req),
		Provider: ProviderOffline,
		Fallback: true,
		Attempts: attempts,
		Err:      err,
	}
}

// attempt makes one remote call detached from the caller's cancellation
func (g *Gateway) attempt(ctx context.Context, req Request) (*Result, error) {
	attemptCtx := context.WithoutCancel(ctx)
	if g.policy.Timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(attemptCtx, g.policy.Timeout)
		defer cancel()
	}
	return g.remote.Classify(attemptCtx, req)
}

// isBinary reports whether content looks like binary data
func isBinary(content []byte) bool {
	sniff := content
	if len(sniff) > binarySniffLen {
		sniff = sniff[:binarySniffLen]
	}
	if bytes.IndexByte(sniff, 0) >= 0 {
		return true
	}

	// Count undecodable bytes, ignoring a rune cut off at the end of the sample
	invalid := 0
	for i := 0; i < len(sniff); {
		r, size := utf8.DecodeRune(sniff[i:])
		if r == utf8.RuneError && size == 1 && len(sniff)-i >= utf8.UTFMax {
			invalid++
		}
		i += size
	}
	return invalid*10 > len(sniff)
}
