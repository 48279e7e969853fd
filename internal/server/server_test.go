package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChuLiYu/workshop-queue/internal/controller"
	"github.com/ChuLiYu/workshop-queue/pkg/types"
)

type fakeProvider struct {
	status controller.Status
}

func (f fakeProvider) Status() controller.Status {
	return f.status
}

func newTestServer() *Server {
	return NewServer(Config{Addr: "127.0.0.1:0"}, fakeProvider{status: controller.Status{
		Stage:       "ContributeMaterials",
		Running:     true,
		Current:     &types.CurrentItem{WorkshopItemID: 7, StartedCrafting: true, PhasesComplete: 1},
		CurrentName: "Bronco Engine",
		Queue:       []types.QueuedItem{{WorkshopItemID: 7, Quantity: 2}},
		Remaining:   2,
	}})
}

func TestStatusEndpoint(t *testing.T) {
	s := newTestServer()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var got controller.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "ContributeMaterials", got.Stage)
	assert.True(t, got.Running)
	require.NotNil(t, got.Current)
	assert.Equal(t, uint32(1), got.Current.PhasesComplete)
	assert.Equal(t, "Bronco Engine", got.CurrentName)
	assert.Equal(t, 2, got.Remaining)
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	s := newTestServer()

	tests := []struct {
		path     string
		contains string
	}{
		{"/healthz", `"status":"ok"`},
		{"/metrics", "go_goroutines"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.contains)
		})
	}
}

func TestUnknownRouteReturnsNotFound(t *testing.T) {
	s := newTestServer()

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/status", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunStopsOnCancel(t *testing.T) {
	s := newTestServer()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestRunReportsListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	s := NewServer(Config{Addr: ln.Addr().String()}, fakeProvider{})

	err = s.Run(context.Background())
	assert.Error(t, err)
}
