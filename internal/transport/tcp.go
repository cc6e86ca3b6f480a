// Package transport hosts the TCP trading/quote session listeners and the
// WebSocket market-data sink, per spec.md §6's two logical endpoints and
// §4.7's subscriber interface. It is grounded on the teacher's
// internal/net/server.go (tomb-supervised accept loop + worker pool)
// adapted from a single-read-then-requeue task model to a persistent
// per-connection session loop, since this protocol is a streaming,
// multi-message session rather than one-shot datagrams.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"
	tomb "gopkg.in/tomb.v2"

	"github.com/saiputra/lobx/internal/protocol"
	"github.com/saiputra/lobx/internal/session"
)

const (
	maxRecvChunk   = 4 * 1024
	defaultWorkers = 16
)

// Kind distinguishes the trading session (accepts every message type) from
// the quote session (read-only subset only), per §6.
type Kind int

const (
	Trading Kind = iota
	Quote
)

func (k Kind) readOnly() bool { return k == Quote }

var readOnlyTypes = map[string]bool{
	protocol.TypeOrderStatusRequest:     true,
	protocol.TypeMarketDataRequest:      true,
	protocol.TypeUserOrderStatusRequest: true,
	protocol.TypeUserBalanceRequest:     true,
	protocol.TypeCaptureReportRequest:   true,
}

// Server is one TCP listener (trading or quote) backed by a bounded
// worker pool; each accepted connection is handled for its entire
// lifetime by a single worker.
type Server struct {
	addr       string
	kind       Kind
	dispatcher *session.Dispatcher
	pool       *WorkerPool
	log        zerolog.Logger
}

// NewServer builds a listener for one endpoint kind.
func NewServer(addr string, kind Kind, dispatcher *session.Dispatcher, log zerolog.Logger) *Server {
	return &Server{
		addr:       addr,
		kind:       kind,
		dispatcher: dispatcher,
		pool:       NewWorkerPool(defaultWorkers, log),
		log:        log,
	}
}

// Run accepts connections until ctx is canceled, then stops accepting and
// waits for in-flight connections to close.
func (s *Server) Run(ctx context.Context) error {
	t, ctx := tomb.WithContext(ctx)

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("transport: listen on %s: %w", s.addr, err)
	}
	defer listener.Close()

	s.pool.Run(t, s.handleConnection)

	t.Go(func() error {
		<-t.Dying()
		return listener.Close()
	})

	t.Go(func() error {
		for {
			conn, err := listener.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return nil
				}
				s.log.Error().Err(err).Msg("accept failed")
				continue
			}
			s.pool.AddTask(conn)
		}
	})

	s.log.Info().Str("addr", s.addr).Str("kind", kindName(s.kind)).Msg("listening")
	<-ctx.Done()
	t.Kill(nil)
	return t.Wait()
}

func kindName(k Kind) string {
	if k == Trading {
		return "trading"
	}
	return "quote"
}

// handleConnection owns a connection for its whole lifetime: it reads
// chunks, feeds them to a per-connection codec, dispatches every decoded
// message, and writes back exactly one response per request (§4.5).
func (s *Server) handleConnection(t *tomb.Tomb, task any) error {
	conn, ok := task.(net.Conn)
	if !ok {
		return fmt.Errorf("transport: unexpected task type %T", task)
	}
	defer conn.Close()

	codec := protocol.NewCodec("server", conn.RemoteAddr().String())
	buf := make([]byte, maxRecvChunk)

	for {
		select {
		case <-t.Dying():
			return nil
		default:
		}

		if err := conn.SetReadDeadline(time.Now().Add(5 * time.Minute)); err != nil {
			return nil
		}
		n, err := conn.Read(buf)
		if err != nil {
			return nil
		}

		msg, ok, err := codec.Push(buf[:n])
		if err != nil {
			s.writeReject(conn, codec, "malformed message: "+err.Error())
			continue
		}
		if !ok {
			continue
		}
		for ok {
			s.handleMessage(conn, codec, msg)
			msg, ok, err = codec.Push(nil)
			if err != nil {
				s.writeReject(conn, codec, "malformed message: "+err.Error())
				break
			}
		}
	}
}

func (s *Server) handleMessage(conn net.Conn, codec *protocol.Codec, msg protocol.Message) {
	if s.kind.readOnly() && !readOnlyTypes[msg.Header().MsgType] {
		s.writeReject(conn, codec, "mutating request on read-only session")
		return
	}

	requester := msg.Header().Sender
	resp := s.dispatcher.Dispatch(requester, msg)

	frame, err := codec.Encode(resp, time.Now().UnixMicro())
	if err != nil {
		s.log.Error().Err(err).Msg("failed to encode response")
		return
	}
	if _, err := conn.Write(frame); err != nil {
		s.log.Debug().Err(err).Msg("failed to write response")
	}
}

func (s *Server) writeReject(conn net.Conn, codec *protocol.Codec, reason string) {
	frame, err := codec.Encode(protocol.Reject{Reason: reason}, time.Now().UnixMicro())
	if err != nil {
		return
	}
	conn.Write(frame)
}
