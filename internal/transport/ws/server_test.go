package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MortenLohne/simulate-limpwurt/internal/batch"
	"github.com/MortenLohne/simulate-limpwurt/internal/protocol"
	"github.com/MortenLohne/simulate-limpwurt/internal/sim/policy"
	"github.com/MortenLohne/simulate-limpwurt/internal/sim/tuning"
)

func baseTuning() tuning.Tuning {
	t := tuning.Defaults()
	t.Policy = policy.NameMinimizeLock
	t.Replications = 6
	t.Workers = 2
	t.MaxSteps = 20_000
	t.ProgressEvery = 3
	return t
}

func dial(t *testing.T, s *Server) *websocket.Conn {
	t.Helper()
	hs := httptest.NewServer(s.Handler())
	t.Cleanup(hs.Close)
	u := "ws" + strings.TrimPrefix(hs.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

type inbound struct {
	Type    string          `json:"type"`
	BatchID string          `json:"batch_id"`
	Code    string          `json:"code"`
	Done    int             `json:"done"`
	Total   int             `json:"total"`
	Report  json.RawMessage `json:"report"`
}

func read(t *testing.T, conn *websocket.Conn) inbound {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	_, b, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var m inbound
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal %s: %v", b, err)
	}
	return m
}

func write(t *testing.T, conn *websocket.Conn, raw string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestServer_SimulateStreamsReport(t *testing.T) {
	conn := dial(t, NewServer(&batch.Runner{}, baseTuning(), 1, nil))
	write(t, conn, `{"type":"SIMULATE","protocol_version":"1.0","request_id":"r1","seed":5}`)

	acc := read(t, conn)
	if acc.Type != protocol.TypeAccepted || acc.BatchID == "" {
		t.Fatalf("first message=%+v", acc)
	}
	var progress []inbound
	for {
		m := read(t, conn)
		if m.Type == protocol.TypeReport {
			if m.BatchID != acc.BatchID || len(m.Report) == 0 {
				t.Fatalf("report=%+v", m)
			}
			break
		}
		if m.Type != protocol.TypeProgress {
			t.Fatalf("unexpected %+v", m)
		}
		progress = append(progress, m)
	}
	if len(progress) != 2 || progress[1].Done != 6 || progress[1].Total != 6 {
		t.Fatalf("progress=%+v", progress)
	}
}

func TestServer_RejectsBadRequests(t *testing.T) {
	conn := dial(t, NewServer(&batch.Runner{}, baseTuning(), 1, nil))
	cases := []struct {
		raw  string
		code string
	}{
		{`not json`, protocol.ErrProtoBadRequest},
		{`{"type":"SIMULATE","protocol_version":"0.1"}`, protocol.ErrProtoVersion},
		{`{"type":"HELLO","protocol_version":"1.0"}`, protocol.ErrProtoBadRequest},
		{`{"type":"SIMULATE","protocol_version":"1.0","replications":0}`, protocol.ErrProtoBadRequest},
		{`{"type":"SIMULATE","protocol_version":"1.0","start":{"experience":1,"task":{"state":"completed","creature":"DRAGONS"}}}`, protocol.ErrBadRequest},
	}
	for _, c := range cases {
		write(t, conn, c.raw)
		m := read(t, conn)
		if m.Type != protocol.TypeError || m.Code != c.code {
			t.Fatalf("%s: got %+v want code %s", c.raw, m, c.code)
		}
	}
}

// blockingRunner waits for cancellation.
type blockingRunner struct{ started chan struct{} }

func (b blockingRunner) Run(ctx context.Context, t tuning.Tuning, h batch.Hooks) (batch.Result, error) {
	h.OnStart(batch.Manifest{BatchID: "blocked", Tuning: t})
	close(b.started)
	<-ctx.Done()
	return batch.Result{}, ctx.Err()
}

func TestServer_BusyAndCancel(t *testing.T) {
	br := blockingRunner{started: make(chan struct{})}
	conn := dial(t, NewServer(br, baseTuning(), 1, nil))

	write(t, conn, `{"type":"SIMULATE","protocol_version":"1.0"}`)
	if m := read(t, conn); m.Type != protocol.TypeAccepted || m.BatchID != "blocked" {
		t.Fatalf("accepted=%+v", m)
	}
	<-br.started

	write(t, conn, `{"type":"SIMULATE","protocol_version":"1.0"}`)
	if m := read(t, conn); m.Type != protocol.TypeError || m.Code != protocol.ErrBusy {
		t.Fatalf("second simulate=%+v", m)
	}

	write(t, conn, `{"type":"CANCEL","protocol_version":"1.0"}`)
	if m := read(t, conn); m.Type != protocol.TypeError || m.Code != protocol.ErrCancelled || m.BatchID != "blocked" {
		t.Fatalf("cancel=%+v", m)
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	for addr, want := range map[string]bool{
		"127.0.0.1:5000": true,
		"[::1]:80":       true,
		"10.0.0.4:80":    false,
		"garbage":        false,
	} {
		if got := isLoopbackRemote(addr); got != want {
			t.Fatalf("isLoopbackRemote(%q)=%v want=%v", addr, got, want)
		}
	}
}
