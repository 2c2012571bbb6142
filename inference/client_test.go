package inference

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHealthSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(Config{EndpointURL: srv.URL, Timeout: time.Second})
	ok, err := c.Health(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
}

func TestAuthorizationHeaderPresentIffAPIKeySet(t *testing.T) {
	// P5
	var sawAuth atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			sawAuth.Store(true)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	withKey := NewClient(Config{EndpointURL: srv.URL, APIKey: "secret", Timeout: time.Second})
	_, _ = withKey.Health(context.Background())
	require.True(t, sawAuth.Load())

	sawAuth.Store(false)
	withoutKey := NewClient(Config{EndpointURL: srv.URL, Timeout: time.Second})
	_, _ = withoutKey.Health(context.Background())
	require.False(t, sawAuth.Load())
}

func TestGenerateRetriesThenFails(t *testing.T) {
	// S3 / P4: three 500s with max_retries=3 exhausts the budget.
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(Config{
		EndpointURL: srv.URL,
		Timeout:     time.Second,
		EnableRetry: true,
		MaxRetries:  3,
	})

	start := time.Now()
	_, err := c.Generate(context.Background(), Request{Prompt: "x"})
	elapsed := time.Since(start)

	require.Error(t, err)
	require.True(t, errors.Is(err, ErrMaxRetriesExceeded))
	require.EqualValues(t, 3, calls.Load())
	require.GreaterOrEqual(t, elapsed, 300*time.Millisecond) // ~100ms + 200ms
}

func TestGenerateRetryDisabled(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(Config{
		EndpointURL: srv.URL,
		Timeout:     time.Second,
		EnableRetry: false,
		MaxRetries:  3,
	})

	_, err := c.Generate(context.Background(), Request{Prompt: "x"})
	require.Error(t, err)
	require.EqualValues(t, 1, calls.Load())
}

func TestGenerateCancellationSkipsBackoff(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(Config{
		EndpointURL: srv.URL,
		Timeout:     time.Second,
		EnableRetry: true,
		MaxRetries:  5,
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	_, err := c.Generate(ctx, Request{Prompt: "x"})
	elapsed := time.Since(start)

	require.Error(t, err)
	require.Less(t, elapsed, 50*time.Millisecond)
}

func TestConfidenceZeroTokens(t *testing.T) {
	r := &Response{TokensGenerated: 0, Stats: Stats{TimePerTokenUs: 1, AvgConstraintCheckUs: 1}}
	require.Equal(t, 0.0, r.Confidence())
}

func TestConfidenceFormula(t *testing.T) {
	r := &Response{
		TokensGenerated: 10,
		Stats: Stats{
			TimePerTokenUs:       5000,  // speed_score = 0.5
			AvgConstraintCheckUs: 500,   // constraint_score = 0.5
		},
	}
	require.InDelta(t, 0.5, r.Confidence(), 1e-9)
}
