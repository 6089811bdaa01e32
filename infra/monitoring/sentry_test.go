package monitoring

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremon "github.com/kilianp07/slotshare/core/monitoring"
)

func TestNewSentryMonitorWithoutDSN(t *testing.T) {
	m, err := NewSentryMonitor(Config{})
	require.NoError(t, err)
	assert.IsType(t, coremon.NopMonitor{}, m)
}

func TestSentryMonitorSendsEvents(t *testing.T) {
	var (
		mu     sync.Mutex
		bodies []string
		paths  []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(b))
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	dsn := strings.Replace(srv.URL, "http://", "http://public@", 1) + "/1"
	m, err := NewSentryMonitor(Config{DSN: dsn, Environment: "test"})
	require.NoError(t, err)

	m.CaptureException(errors.New("commit exploded"), map[string]string{"room_id": "r1"})
	require.True(t, m.Flush(2*time.Second))

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, bodies)
	assert.Contains(t, paths[0], "/api/1/")
	assert.Contains(t, bodies[0], "commit exploded")
	assert.Contains(t, bodies[0], "r1")
}

func TestConfigValidate(t *testing.T) {
	assert.Error(t, Config{TracesSampleRate: 2}.Validate())
	c := Config{}
	c.SetDefaults()
	assert.Equal(t, "production", c.Environment)
	assert.NoError(t, c.Validate())
}
