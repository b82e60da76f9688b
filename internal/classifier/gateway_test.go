package classifier

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubRemote returns scripted errors, then succeeds
type stubRemote struct {
	calls  atomic.Int32
	errs   []error
	result *Result
	onCall func(n int)
}

func (s *stubRemote) Name() string { return ProviderOllama }

func (s *stubRemote) Classify(ctx context.Context, req Request) (*Result, error) {
	n := int(s.calls.Add(1))
	if s.onCall != nil {
		s.onCall(n)
	}
	if n <= len(s.errs) {
		return nil, s.errs[n-1]
	}
	if s.result != nil {
		return s.result, nil
	}
	return &Result{Category: "Remote", Summary: "from remote", Keywords: []string{"r"}}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastPolicy(retries int) Policy {
	return Policy{MaxRetries: retries, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2, Timeout: time.Second}
}

var textReq = Request{Path: "/docs/readme.md", Name: "readme.md", Ext: ".md", Size: 2048, Content: []byte("# Title\nSome text.")}

func TestGatewaySuccess(t *testing.T) {
	remote := &stubRemote{}
	gw := NewGateway(remote, nil, fastPolicy(2), discardLogger())

	out := gw.Classify(context.Background(), textReq)
	require.NotNil(t, out.Result)
	assert.Equal(t, "Remote", out.Result.Category)
	assert.Equal(t, ProviderOllama, out.Provider)
	assert.False(t, out.Fallback)
	assert.Equal(t, 1, out.Attempts)
	assert.NoError(t, out.Err)
}

func TestGatewayTimeoutRetriesThenFallsBack(t *testing.T) {
	timeout := &ClassificationError{Reason: ReasonTimeout, Message: "request timed out"}
	remote := &stubRemote{errs: []error{timeout, timeout, timeout, timeout}}
	gw := NewGateway(remote, nil, fastPolicy(2), discardLogger())

	out := gw.Classify(context.Background(), textReq)

	assert.Equal(t, int32(3), remote.calls.Load(), "max_retries=2 means three attempts")
	assert.Equal(t, 3, out.Attempts)
	assert.True(t, out.Fallback)
	assert.Equal(t, ProviderOffline, out.Provider)
	assert.Equal(t, ReasonTimeout, ReasonOf(out.Err))
	require.NotNil(t, out.Result)
	assert.Equal(t, "Markdown document", out.Result.Category)
	assert.Equal(t, "File indexed in offline mode (2.0 kB)", out.Result.Summary)
}

func TestGatewayRecoversAfterRetry(t *testing.T) {
	unreachable := &ClassificationError{Reason: ReasonUnreachable}
	remote := &stubRemote{errs: []error{unreachable}}
	gw := NewGateway(remote, nil, fastPolicy(2), discardLogger())

	out := gw.Classify(context.Background(), textReq)
	assert.False(t, out.Fallback)
	assert.Equal(t, 2, out.Attempts)
	assert.Equal(t, "Remote", out.Result.Category)
}

func TestGatewayMalformedFallsBackImmediately(t *testing.T) {
	remote := &stubRemote{errs: []error{&ClassificationError{Reason: ReasonMalformed}}}
	gw := NewGateway(remote, nil, fastPolicy(5), discardLogger())

	out := gw.Classify(context.Background(), textReq)
	assert.Equal(t, int32(1), remote.calls.Load())
	assert.True(t, out.Fallback)
	assert.Equal(t, ReasonMalformed, ReasonOf(out.Err))
}

func TestGatewayOfflineModeSkipsRemote(t *testing.T) {
	remote := &stubRemote{}
	policy := fastPolicy(2)
	policy.Offline = true
	gw := NewGateway(remote, nil, policy, discardLogger())

	out := gw.Classify(context.Background(), textReq)
	assert.Equal(t, int32(0), remote.calls.Load())
	assert.False(t, out.Fallback)
	assert.Equal(t, ProviderOffline, out.Provider)
	assert.Equal(t, "Markdown document", out.Result.Category)
	assert.True(t, gw.Offline())

	assert.True(t, NewGateway(nil, nil, fastPolicy(0), discardLogger()).Offline())
}

func TestGatewayEmptyContent(t *testing.T) {
	remote := &stubRemote{}
	gw := NewGateway(remote, nil, fastPolicy(2), discardLogger())

	for _, content := range [][]byte{nil, []byte("  \n\t ")} {
		out := gw.Classify(context.Background(), Request{Path: "/e.txt", Ext: ".txt", Content: content})
		assert.Equal(t, "Unknown", out.Result.Category)
		assert.Equal(t, "Empty or unreadable file", out.Result.Summary)
		assert.Empty(t, out.Result.Keywords)
		assert.False(t, out.Fallback)
	}
	assert.Equal(t, int32(0), remote.calls.Load())
}

func TestGatewayBinaryContent(t *testing.T) {
	remote := &stubRemote{}
	gw := NewGateway(remote, nil, fastPolicy(2), discardLogger())

	out := gw.Classify(context.Background(), Request{Path: "/img.png", Ext: ".png", Size: 10, Content: []byte{0x89, 'P', 'N', 'G', 0, 0, 0, 13}})
	assert.Equal(t, int32(0), remote.calls.Load())
	assert.Equal(t, "PNG image", out.Result.Category)
	assert.False(t, out.Fallback)
}

func TestGatewayCancelBetweenRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	remote := &stubRemote{
		errs:   []error{&ClassificationError{Reason: ReasonUnreachable}, &ClassificationError{Reason: ReasonUnreachable}},
		onCall: func(int) { cancel() },
	}
	policy := fastPolicy(3)
	policy.BaseDelay = time.Hour
	policy.MaxDelay = time.Hour
	gw := NewGateway(remote, nil, policy, discardLogger())

	out := gw.Classify(ctx, textReq)
	assert.True(t, out.Cancelled)
	assert.Nil(t, out.Result)
	assert.Equal(t, int32(1), remote.calls.Load())
}

func TestGatewayAttemptNotAbortedByCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var attemptErr error
	remote := &stubRemote{}
	remote.onCall = func(int) {
		cancel()
	}
	wrapped := classifierFunc(func(actx context.Context, req Request) (*Result, error) {
		res, err := remote.Classify(actx, req)
		attemptErr = actx.Err()
		return res, err
	})
	gw := NewGateway(wrapped, nil, fastPolicy(0), discardLogger())

	out := gw.Classify(ctx, textReq)
	assert.NoError(t, attemptErr, "attempt context must survive caller cancellation")
	assert.False(t, out.Cancelled)
	assert.Equal(t, "Remote", out.Result.Category)
}

func TestGatewayCancelDuringFinalAttemptFallsBack(t *testing.T) {
	tests := []struct {
		name    string
		retries int
	}{
		{"no retries", 0},
		{"two retries", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			timeout := &ClassificationError{Reason: ReasonTimeout}
			errs := make([]error, tt.retries+1)
			for i := range errs {
				errs[i] = timeout
			}
			remote := &stubRemote{
				errs: errs,
				onCall: func(n int) {
					if n == tt.retries+1 {
						cancel()
					}
				},
			}
			gw := NewGateway(remote, nil, fastPolicy(tt.retries), discardLogger())

			out := gw.Classify(ctx, textReq)
			assert.False(t, out.Cancelled)
			assert.True(t, out.Fallback)
			require.NotNil(t, out.Result)
			assert.Equal(t, ProviderOffline, out.Provider)
			assert.Equal(t, tt.retries+1, out.Attempts)
			assert.Equal(t, int32(tt.retries+1), remote.calls.Load())
		})
	}
}

type classifierFunc func(ctx context.Context, req Request) (*Result, error)

func (f classifierFunc) Classify(ctx context.Context, req Request) (*Result, error) { return f(ctx, req) }
func (f classifierFunc) Name() string                                               { return "func" }

func TestOfflineClassifier(t *testing.T) {
	tests := []struct {
		ext      string
		size     int64
		category string
		keywords []string
	}{
		{".go", 1500, "Go source code", []string{"go"}},
		{".MD", 10, "Markdown document", []string{"md"}},
		{".xyz", 0, "XYZ file", []string{"xyz"}},
		{"", 5, "Unknown file type", []string{"unknown"}},
	}

	o := NewOffline()
	for _, tt := range tests {
		t.Run(tt.category, func(t *testing.T) {
			res, err := o.Classify(context.Background(), Request{Ext: tt.ext, Size: tt.size})
			require.NoError(t, err)
			assert.Equal(t, tt.category, res.Category)
			assert.Equal(t, tt.keywords, res.Keywords)
			assert.Contains(t, res.Summary, "File indexed in offline mode (")
		})
	}
}

func TestIsBinary(t *testing.T) {
	assert.False(t, isBinary([]byte("plain text\nwith lines")))
	assert.False(t, isBinary([]byte("héllo wörld")))
	assert.True(t, isBinary([]byte{'a', 0, 'b'}))
	assert.True(t, isBinary([]byte{0xff, 0xfe, 0xfd, 0xfc, 0xfb, 0xfa, 0xf9, 0xf8, 0xf7, 0xf6}))
}
