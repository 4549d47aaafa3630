package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MortenLohne/simulate-limpwurt/internal/batch"
	"github.com/MortenLohne/simulate-limpwurt/internal/protocol"
	"github.com/MortenLohne/simulate-limpwurt/internal/sim/tuning"
)

// Runner executes one batch. *batch.Runner implements it.
type Runner interface {
	Run(ctx context.Context, t tuning.Tuning, h batch.Hooks) (batch.Result, error)
}

type Server struct {
	runner Runner
	base   tuning.Tuning
	log    *log.Logger

	// LoopbackOnly rejects connections from non-loopback addresses.
	LoopbackOnly bool

	upgrader websocket.Upgrader
	slots    chan struct{}
}

// NewServer serves batches built from base. maxBatches bounds batches
// running at once across all connections.
func NewServer(r Runner, base tuning.Tuning, maxBatches int, logger *log.Logger) *Server {
	if maxBatches <= 0 {
		maxBatches = 1
	}
	return &Server{
		runner: r,
		base:   base,
		log:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		slots: make(chan struct{}, maxBatches),
	}
}

// Running is the number of batches currently executing.
func (s *Server) Running() int { return len(s.slots) }

// Capacity is the maximum number of concurrent batches.
func (s *Server) Capacity() int { return cap(s.slots) }

func (s *Server) logf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}

// session is one connection. At most one batch runs per session.
type session struct {
	out chan []byte

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
}

func (ss *session) send(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	ss.out <- b
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if s.LoopbackOnly && !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		ss := &session{out: make(chan []byte, 64)}
		var batches sync.WaitGroup

		// Writer goroutine.
		writerDone := make(chan struct{})
		go func() {
			defer close(writerDone)
			for b := range ss.out {
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					cancel()
					// Keep draining so batch goroutines never block.
					for range ss.out {
					}
					return
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(10 * time.Minute))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			s.handle(ctx, ss, &batches, msg)
		}

		// Cleanup: stop this connection's batch and flush what it sent.
		cancel()
		batches.Wait()
		close(ss.out)
		<-writerDone
	}
}

func (s *Server) handle(ctx context.Context, ss *session, batches *sync.WaitGroup, msg []byte) {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		ss.send(protocol.NewError("", protocol.ErrProtoBadRequest, "bad json: %v", err))
		return
	}
	if base.ProtocolVersion != protocol.Version {
		ss.send(protocol.NewError("", protocol.ErrProtoVersion, "protocol_version %q, want %q", base.ProtocolVersion, protocol.Version))
		return
	}

	switch base.Type {
	case protocol.TypeCancel:
		ss.mu.Lock()
		if ss.cancel != nil {
			ss.cancel()
		}
		ss.mu.Unlock()

	case protocol.TypeSimulate:
		req, err := protocol.DecodeSimulate(msg)
		if err != nil {
			ss.send(protocol.NewError("", protocol.ErrProtoBadRequest, "%v", err))
			return
		}
		t, err := req.Tuning(s.base)
		if err != nil {
			ss.send(protocol.NewError(req.RequestID, protocol.ErrBadRequest, "%v", err))
			return
		}

		ss.mu.Lock()
		if ss.running {
			ss.mu.Unlock()
			ss.send(protocol.NewError(req.RequestID, protocol.ErrBusy, "a batch is already running on this connection"))
			return
		}
		select {
		case s.slots <- struct{}{}:
		default:
			ss.mu.Unlock()
			ss.send(protocol.NewError(req.RequestID, protocol.ErrBusy, "server is running its maximum number of batches"))
			return
		}
		bctx, bcancel := context.WithCancel(ctx)
		ss.running, ss.cancel = true, bcancel
		ss.mu.Unlock()

		batches.Add(1)
		go func() {
			defer batches.Done()
			defer func() {
				<-s.slots
				bcancel()
				ss.mu.Lock()
				ss.running, ss.cancel = false, nil
				ss.mu.Unlock()
			}()
			s.runBatch(bctx, ss, req.RequestID, t)
		}()

	default:
		ss.send(protocol.NewError("", protocol.ErrProtoBadRequest, "unexpected message type %q", base.Type))
	}
}

func (s *Server) runBatch(ctx context.Context, ss *session, requestID string, t tuning.Tuning) {
	var batchID string
	res, err := s.runner.Run(ctx, t, batch.Hooks{
		OnStart: func(m batch.Manifest) {
			batchID = m.BatchID
			ss.send(protocol.AcceptedMsg{
				Type:            protocol.TypeAccepted,
				ProtocolVersion: protocol.Version,
				RequestID:       requestID,
				BatchID:         m.BatchID,
				Tuning:          m.Tuning,
			})
		},
		OnProgress: func(p batch.Progress) {
			ss.send(protocol.ProgressMsg{
				Type:            protocol.TypeProgress,
				ProtocolVersion: protocol.Version,
				BatchID:         p.BatchID,
				Done:            p.Done,
				Total:           p.Total,
				Successes:       p.Successes,
				Failures:        p.Failures,
				StepLimited:     p.StepLimited,
				Violations:      p.Violations,
			})
		},
	})
	if err != nil {
		code := protocol.ErrInternal
		if errors.Is(err, context.Canceled) {
			code = protocol.ErrCancelled
		}
		e := protocol.NewError(requestID, code, "%v", err)
		e.BatchID = batchID
		ss.send(e)
		s.logf("batch %s: %v", batchID, err)
		return
	}
	ss.send(protocol.ReportMsg{
		Type:            protocol.TypeReport,
		ProtocolVersion: protocol.Version,
		RequestID:       requestID,
		BatchID:         res.Manifest.BatchID,
		Report:          res.Report,
	})
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
