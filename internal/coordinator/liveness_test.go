package coordinator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLivenessUnknownNodeDefaultsHealthy(t *testing.T) {
	l := NewLiveness(time.Hour, nil)
	assert.True(t, l.IsHealthy("never-probed:1"), "a node never probed should default to healthy")
}

func TestLivenessProbesReportHealthyAndUnreachable(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer up.Close()

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()

	l := NewLiveness(time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l.probeAll(ctx, []string{up.URL, down.URL})

	assert.True(t, l.IsHealthy(up.URL), "expected up.URL to be healthy")
	assert.False(t, l.IsHealthy(down.URL), "expected down.URL to be unhealthy")
}

func TestLivenessStartStopTerminatesCleanly(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer up.Close()

	l := NewLiveness(10*time.Millisecond, nil)
	l.Start(context.Background(), []string{up.URL})
	time.Sleep(30 * time.Millisecond)
	l.Stop()

	assert.True(t, l.IsHealthy(up.URL), "expected node probed during Start to be healthy")
}
