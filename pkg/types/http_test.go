package types

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// errorTransport is a mock transport that always returns an error.
type errorTransport struct{}

func (e *errorTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return nil, fmt.Errorf("mock transport error")
}

func TestNewRealHTTPClient_Timeout(t *testing.T) {
	require.Equal(t, DefaultHTTPTimeout, NewRealHTTPClient(0).Client.Timeout)
	require.Equal(t, 5*time.Second, NewRealHTTPClient(5*time.Second).Client.Timeout)
}

func TestRealHTTPClient_Do(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer abc", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"repositories":[]}`)) //nolint:errcheck
	}))
	defer ts.Close()

	client := NewRealHTTPClient(time.Second)
	req, err := http.NewRequest(http.MethodGet, ts.URL, nil) //nolint:noctx
	require.NoError(t, err, "failed to create request")
	req.Header.Set("Authorization", "Bearer abc")

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRealHTTPClient_Do_Error(t *testing.T) {
	client := &RealHTTPClient{
		Client: &http.Client{
			Transport: &errorTransport{},
		},
	}

	req, err := http.NewRequest(http.MethodGet, "http://quay.example.com", nil) //nolint:noctx
	require.NoError(t, err, "failed to create request")

	resp, err := client.Do(req) //nolint:bodyclose
	require.Error(t, err)
	require.ErrorContains(t, err, "failed to do request to quay.example.com")
	require.Nil(t, resp)
}
