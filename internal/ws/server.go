package ws

import (
	"bufio"
	"context"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"chargelink/internal/ocpp"
	"chargelink/internal/registry"
	"chargelink/internal/service"
)

const websocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

var supportedSubprotocols = []string{"ocpp1.6", "ocpp1.6j"}

// Server owns the HTTP-upgrade handshake and the per-socket read loop. Each
// connection is served by one goroutine that fully handles a message before
// extracting the next buffered frame; there is no overlap within a socket.
type Server struct {
	registry     *registry.Registry
	router       *ocpp.Router
	queue        *service.MessageQueue
	writeTimeout time.Duration
	logger       *zap.Logger
}

// NewServer builds the transport driver.
func NewServer(reg *registry.Registry, router *ocpp.Router, queue *service.MessageQueue, writeTimeout time.Duration, logger *zap.Logger) *Server {
	return &Server{
		registry:     reg,
		router:       router,
		queue:        queue,
		writeTimeout: writeTimeout,
		logger:       logger,
	}
}

// HandleUpgrade is the HTTP handler for the .../ocpp/{identity} endpoint.
func (s *Server) HandleUpgrade(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromPath(r.URL.Path)
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	if !strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		http.Error(w, "websocket upgrade required", http.StatusBadRequest)
		return
	}

	key := strings.TrimSpace(r.Header.Get("Sec-WebSocket-Key"))
	if key == "" {
		http.Error(w, "missing Sec-WebSocket-Key", http.StatusBadRequest)
		return
	}

	subprotocol, reject := negotiateSubprotocol(r.Header.Values("Sec-WebSocket-Protocol"))
	if reject {
		http.Error(w, "unsupported subprotocol", http.StatusBadRequest)
		return
	}

	hijacker, ok := w.(http.Hijacker)
	if !ok {
		http.Error(w, "upgrade not supported", http.StatusInternalServerError)
		return
	}
	conn, buffered, err := hijacker.Hijack()
	if err != nil {
		s.logger.Error("hijack failed", zap.String("identity", identity), zap.Error(err))
		return
	}

	if err := writeHandshake(conn, key, subprotocol); err != nil {
		s.logger.Warn("handshake write failed", zap.String("identity", identity), zap.Error(err))
		conn.Close()
		return
	}

	t := newTransport(conn, s.writeTimeout)
	connection := s.registry.Register(identity, t)
	s.logger.Info("station connected", zap.String("identity", identity))

	go s.serve(t, conn, buffered.Reader, identity, r.URL.Path, connection.StationID)
}

// identityFromPath accepts any path of the form .../ocpp/<identity>.
func identityFromPath(path string) (string, bool) {
	segments := make([]string, 0, 4)
	for _, segment := range strings.Split(path, "/") {
		if segment != "" {
			segments = append(segments, segment)
		}
	}
	if len(segments) < 2 || segments[len(segments)-2] != "ocpp" {
		return "", false
	}
	return segments[len(segments)-1], true
}

// negotiateSubprotocol picks the first supported value. An absent header is
// fine; a header with no supported value rejects the upgrade.
func negotiateSubprotocol(headers []string) (selected string, reject bool) {
	if len(headers) == 0 {
		return "", false
	}
	for _, header := range headers {
		for _, offered := range strings.Split(header, ",") {
			offered = strings.TrimSpace(offered)
			for _, supported := range supportedSubprotocols {
				if offered == supported {
					return offered, false
				}
			}
		}
	}
	return "", true
}

func writeHandshake(conn net.Conn, key, subprotocol string) error {
	digest := sha1.Sum([]byte(key + websocketGUID))
	accept := base64.StdEncoding.EncodeToString(digest[:])

	var b strings.Builder
	b.WriteString("HTTP/1.1 101 Switching Protocols\r\n")
	b.WriteString("Upgrade: websocket\r\n")
	b.WriteString("Connection: Upgrade\r\n")
	fmt.Fprintf(&b, "Sec-WebSocket-Accept: %s\r\n", accept)
	if subprotocol != "" {
		fmt.Fprintf(&b, "Sec-WebSocket-Protocol: %s\r\n", subprotocol)
	}
	b.WriteString("\r\n")

	_, err := conn.Write([]byte(b.String()))
	return err
}

// serve runs the per-socket loop: accumulate bytes, extract complete frames,
// route text frames, answer pings, tear down on close or protocol violations.
func (s *Server) serve(t *transport, conn net.Conn, reader *bufio.Reader, identity, endpoint, stationID string) {
	ctx := context.Background()

	// A station that reconnects with a bound station id gets its queued
	// commands replayed before it sends anything.
	if stationID != "" {
		s.flushQueuedMessages(ctx, stationID, t)
	}

	buffer := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)

	for {
		n, err := reader.Read(chunk)
		if n > 0 {
			buffer = append(buffer, chunk[:n]...)

			done, reason := s.drainBuffer(ctx, &buffer, t, identity, endpoint)
			if done {
				s.registry.MarkDisconnected(t, reason)
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.logger.Warn("socket read failed", zap.String("identity", identity), zap.Error(err))
			}
			s.registry.MarkDisconnected(t, "socket closed")
			_ = conn.Close()
			return
		}
	}
}

// drainBuffer extracts and handles every complete frame currently buffered.
// It reports whether the connection is finished and why.
func (s *Server) drainBuffer(ctx context.Context, buffer *[]byte, t *transport, identity, endpoint string) (done bool, reason string) {
	for {
		frame, remaining, ok, err := DecodeFrame(*buffer)
		*buffer = remaining

		if errors.Is(err, ErrFragmented) {
			_ = t.Close(CloseUnsupported, "Fragmentation not supported")
			return true, "fragmented frame"
		}
		if err != nil {
			_ = t.Close(CloseUnsupported, "Unsupported frame")
			return true, "oversized frame"
		}
		if !ok {
			return false, ""
		}

		switch frame.Opcode {
		case OpcodeText:
			if closed := s.handleText(ctx, t, identity, endpoint, frame.Payload); closed {
				return true, "protocol error"
			}
		case OpcodePing:
			if err := t.WritePong(frame.Payload); err != nil {
				_ = t.Close(CloseInternal, "Write failed")
				return true, "pong write failed"
			}
		case OpcodePong:
			// Ignored.
		case OpcodeClose:
			_ = t.Close(CloseNormal, "")
			return true, "close frame"
		default:
			_ = t.Close(CloseUnsupported, "Unsupported frame")
			return true, "unsupported opcode"
		}
	}
}

// handleText routes one OCPP text message and writes the reply. Dispatch
// failures become CALLERROR envelopes addressed to the original uniqueId;
// when none can be recovered the connection closes with 1011 instead.
func (s *Server) handleText(ctx context.Context, t *transport, identity, endpoint string, raw []byte) (closed bool) {
	outcome, err := s.router.HandleMessage(ctx, ocpp.Caller{Identity: identity, Endpoint: endpoint}, raw)
	if err != nil {
		callError, ok := ocpp.BuildCallErrorFrom(raw, err)
		if !ok {
			_ = t.Close(CloseInternal, "Protocol error")
			return true
		}
		if writeErr := t.WriteText(callError); writeErr != nil {
			s.logger.Warn("call error write failed", zap.String("identity", identity), zap.Error(writeErr))
			_ = t.Close(CloseInternal, "Write failed")
			return true
		}
		return false
	}

	s.registry.UpdateActivity(identity)

	if err := t.WriteText(outcome.Reply); err != nil {
		s.logger.Warn("reply write failed", zap.String("identity", identity), zap.Error(err))
		_ = t.Close(CloseInternal, "Write failed")
		return true
	}

	if outcome.StationID != "" {
		s.registry.AssociateStation(identity, outcome.StationID)
	}

	if outcome.FlushPending {
		if connection, ok := s.registry.GetContext(identity); ok && connection.StationID != "" {
			s.flushQueuedMessages(ctx, connection.StationID, t)
		}
	}

	return false
}

// flushQueuedMessages replays pending station-bound commands strictly in
// order, stopping at the first delivery failure: that message is marked
// FAILED and the rest stay PENDING for the next flush.
func (s *Server) flushQueuedMessages(ctx context.Context, stationID string, t registry.Transport) {
	pending, err := s.queue.ListPending(ctx, stationID)
	if err != nil {
		s.logger.Warn("listing pending messages failed", zap.String("station_id", stationID), zap.Error(err))
		return
	}

	for _, message := range pending {
		frame, err := ocpp.BuildCall(message.UniqueID, message.Action, message.Payload)
		if err == nil {
			err = t.WriteText(frame)
		}
		if err != nil {
			if markErr := s.queue.MarkFailed(ctx, message.ID, err); markErr != nil {
				s.logger.Warn("marking message failed", zap.String("message_id", message.ID), zap.Error(markErr))
			}
			return
		}
		if err := s.queue.MarkDispatched(ctx, message.ID); err != nil {
			s.logger.Warn("marking message dispatched", zap.String("message_id", message.ID), zap.Error(err))
		}
	}
}
