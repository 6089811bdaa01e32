package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/slotshare/core/metrics"
)

type lineServer struct {
	mu     sync.Mutex
	bodies []string
	srv    *httptest.Server
}

func newLineServer(t *testing.T) *lineServer {
	t.Helper()
	ls := &lineServer{}
	ls.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		ls.mu.Lock()
		ls.bodies = append(ls.bodies, strings.TrimSpace(string(data)))
		ls.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(ls.srv.Close)
	return ls
}

func (ls *lineServer) got() []string {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return append([]string(nil), ls.bodies...)
}

func line(p *write.Point) string {
	return strings.TrimSpace(write.PointToLineProtocol(p, time.Nanosecond))
}

func TestInfluxSink_RecordAllocation(t *testing.T) {
	ls := newLineServer(t)
	sink := NewInfluxSink(InfluxConfig{URL: ls.srv.URL, Token: "token", Org: "org", Bucket: "bucket"})
	now := time.Now()
	ev := coremetrics.AllocationEvent{
		RoomID: "r1", Mode: "fair", Slots: 4, AssignedHours: 6.5, Unassigned: 1,
		Duration: 1500 * time.Microsecond, Time: now,
	}
	if err := sink.RecordAllocation(ev); err != nil {
		t.Fatalf("record error: %v", err)
	}
	p := write.NewPointWithMeasurement("allocation_run").
		AddTag("room_id", "r1").
		AddTag("mode", "fair").
		AddTag("dry_run", "false").
		AddField("slots", 4).
		AddField("assigned_hours", 6.5).
		AddField("unassigned", 1).
		AddField("duration_ms", 1.5).
		SetTime(now)
	if got := ls.got(); len(got) != 1 || got[0] != line(p) {
		t.Errorf("unexpected body: %#v", got)
	}
}

func TestInfluxSink_RecordCommitAndExchange(t *testing.T) {
	ls := newLineServer(t)
	sink := NewInfluxSink(InfluxConfig{URL: ls.srv.URL + "/api/v2/write", Token: "t", Org: "o", Bucket: "b"})
	now := time.Now()
	if err := sink.RecordCommit(coremetrics.CommitEvent{RoomID: "r1", Blocks: 3, Err: "boom", Time: now}); err != nil {
		t.Fatalf("record commit: %v", err)
	}
	if err := sink.RecordExchange(coremetrics.ExchangeEvent{RoomID: "r1", Type: "request", Status: "approved", Hops: 2, Time: now}); err != nil {
		t.Fatalf("record exchange: %v", err)
	}
	commit := write.NewPointWithMeasurement("calendar_commit").
		AddTag("room_id", "r1").
		AddTag("skipped", "false").
		AddField("blocks", 3).
		AddField("duration_ms", 0.0).
		AddField("error", "boom").
		SetTime(now)
	exchange := write.NewPointWithMeasurement("exchange_transition").
		AddTag("room_id", "r1").
		AddTag("type", "request").
		AddTag("status", "approved").
		AddField("hops", 2).
		SetTime(now)
	got := ls.got()
	if len(got) != 2 || got[0] != line(commit) || got[1] != line(exchange) {
		t.Errorf("unexpected bodies: %#v", got)
	}
}

func TestNewInfluxSinkWithFallback(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			called = true
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}))
	defer srv.Close()

	sink := NewInfluxSinkWithFallback(InfluxConfig{URL: srv.URL + "/api/v2/write", Token: "tok", Org: "org", Bucket: "bucket"})
	if _, ok := sink.(*InfluxSink); ok {
		t.Fatalf("expected NopSink on failing health check")
	}
	if !called {
		t.Fatalf("health endpoint not called")
	}
}
