package ensemble

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/itsneelabh/maze/inference"
	"github.com/itsneelabh/maze/router"
	"github.com/stretchr/testify/require"
)

func fakeServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}

func TestGenerateRoutedFallsThroughOnFailure(t *testing.T) {
	bad := fakeServer(t, http.StatusInternalServerError, "")
	defer bad.Close()
	good := fakeServer(t, http.StatusOK, `{"generated_text":"ok","tokens_generated":1,"model":"good","stats":{}}`)
	defer good.Close()

	primary := router.NewEndpoint("primary", bad.URL, "m1", "", 1, nil, 1, 0)
	fallback := router.NewEndpoint("fallback", good.URL, "m2", "", 1, nil, 2, 0)

	backend := NewBackend(5, func(ep router.Endpoint) *inference.Client {
		return inference.NewClient(inference.Config{
			EndpointURL: ep.EndpointURL,
			Timeout:     time.Second,
			EnableRetry: false,
			MaxRetries:  1,
		})
	})

	decision := router.Decision{Primary: primary, FallbackChain: []router.Endpoint{fallback}}
	resp, err := backend.GenerateRouted(context.Background(), inference.Request{Prompt: "x"}, decision)
	require.NoError(t, err)
	require.Equal(t, "ok", resp.GeneratedText)

	metrics := backend.Metrics()
	require.EqualValues(t, 1, metrics["primary"].Failures)
	require.EqualValues(t, 1, metrics["fallback"].Successes)
}

func TestGenerateRoutedAllFail(t *testing.T) {
	bad := fakeServer(t, http.StatusInternalServerError, "")
	defer bad.Close()

	primary := router.NewEndpoint("primary", bad.URL, "m1", "", 1, nil, 1, 0)
	backend := NewBackend(5, func(ep router.Endpoint) *inference.Client {
		return inference.NewClient(inference.Config{
			EndpointURL: ep.EndpointURL,
			Timeout:     time.Second,
			EnableRetry: false,
			MaxRetries:  1,
		})
	})

	decision := router.Decision{Primary: primary}
	_, err := backend.GenerateRouted(context.Background(), inference.Request{Prompt: "x"}, decision)
	require.Error(t, err)
}
