package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlskdClient_Enqueue_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v0/transfers/peer1", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewSlskdClient(SlskdClientConfig{BaseURL: srv.URL, TimeoutMS: 1000, MaxAttempts: 1, BackoffBaseMS: 10})
	err := c.Enqueue(t.Context(), "peer1", []RemoteFile{{Filename: "a.flac", Size: 10}})
	require.NoError(t, err)
}

func TestSlskdClient_Enqueue_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewSlskdClient(SlskdClientConfig{BaseURL: srv.URL, TimeoutMS: 1000, MaxAttempts: 0, BackoffBaseMS: 10})
	err := c.Enqueue(t.Context(), "peer1", nil)
	require.Error(t, err)

	var rlErr *RateLimitedError
	require.ErrorAs(t, err, &rlErr)
	assert.True(t, rlErr.Retryable())
}

func TestSlskdClient_Cancel_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewSlskdClient(SlskdClientConfig{BaseURL: srv.URL, TimeoutMS: 1000, MaxAttempts: 0, BackoffBaseMS: 10})
	err := c.Cancel(t.Context(), "transfer-1")
	require.Error(t, err)

	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.True(t, statusErr.Retryable())
}

func TestSlskdClient_StreamDownloadEvents_DeliversUntilCompleted(t *testing.T) {
	lines := "" +
		`{"download_id":"d1","status":"accepted"}` + "\n" +
		`{"download_id":"d1","status":"in_progress","bytes_written":1024}` + "\n" +
		`{"download_id":"d1","status":"completed","path":"/tmp/out.flac"}` + "\n"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v0/transfers/events", r.URL.Path)
		w.Write([]byte(lines))
	}))
	defer srv.Close()

	c := NewSlskdClient(SlskdClientConfig{BaseURL: srv.URL, TimeoutMS: 1000, MaxAttempts: 0, BackoffBaseMS: 10})
	events, err := c.StreamDownloadEvents(t.Context(), "key1", 0.01)
	require.NoError(t, err)

	var seen []TransferEvent
	for evt := range events {
		seen = append(seen, evt)
	}

	require.Len(t, seen, 3)
	assert.Equal(t, StatusAccepted, seen[0].Status)
	assert.Equal(t, StatusInProgress, seen[1].Status)
	assert.Equal(t, int64(1024), seen[1].BytesWritten)
	assert.Equal(t, StatusCompleted, seen[2].Status)
	assert.Equal(t, "/tmp/out.flac", seen[2].Path)
}

func TestSlskdClient_StreamDownloadEvents_CtxCancelEndsStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"download_id":"d1","status":"in_progress"}` + "\n"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(t.Context())
	c := NewSlskdClient(SlskdClientConfig{BaseURL: srv.URL, TimeoutMS: 1000, MaxAttempts: 0, BackoffBaseMS: 10})
	events, err := c.StreamDownloadEvents(ctx, "key1", 0.01)
	require.NoError(t, err)

	<-events
	cancel()

	deadline := time.After(2 * time.Second)
	for range events {
	}
	select {
	case <-deadline:
		t.Fatal("stream did not close after cancel")
	default:
	}
}
