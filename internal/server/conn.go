package server

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/nerrad567/tem-emulator/internal/device"
	"github.com/nerrad567/tem-emulator/internal/dispatch"
	"github.com/nerrad567/tem-emulator/internal/wire"
)

// serveConn runs the request/response loop for one client.
func (l *Listener) serveConn(ctx context.Context, conn net.Conn) {
	l.active.Add(1)
	defer l.active.Add(-1)
	defer conn.Close() //nolint:errcheck // connection finished

	label := l.target.Label()
	remote := conn.RemoteAddr().String()
	l.logger.Info("client connected", "device", label, "remote", remote)

	// Unblock any pending read as soon as shutdown starts.
	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Now()) //nolint:errcheck // best effort wake-up
	})
	defer stop()

	br := bufio.NewReader(conn)
	dec := wire.NewDecoder(br, l.cfg.Codec, l.cfg.MaxFrameSize)
	enc := wire.NewEncoder(conn, l.cfg.Codec)
	served := 0

	reason := func() string {
		for {
			if ctx.Err() != nil {
				return "shutdown"
			}

			// Wait for the first byte of the next request without consuming it.
			if err := conn.SetReadDeadline(time.Now().Add(l.cfg.PollInterval)); err != nil {
				return "deadline: " + err.Error()
			}
			if _, err := br.Peek(1); err != nil {
				if isTimeout(err) {
					continue
				}
				if errors.Is(err, io.EOF) {
					return "client closed connection"
				}
				l.logger.Warn("read failed", "device", label, "remote", remote, "error", err)
				return "read error"
			}

			if err := conn.SetReadDeadline(time.Now().Add(l.cfg.FrameTimeout)); err != nil {
				return "deadline: " + err.Error()
			}
			body, err := dec.Decode()
			if err != nil {
				if ctx.Err() != nil {
					return "shutdown"
				}
				l.logger.Warn("invalid frame, closing connection", "device", label, "remote", remote, "error", err)
				return "invalid frame"
			}

			req, sentinel, err := wire.ParseRequest(body)
			if err != nil {
				l.logger.Warn("malformed request, closing connection", "device", label, "remote", remote, "error", err)
				return "malformed request"
			}
			switch sentinel {
			case wire.SentinelDisconnect:
				return "client sent exit"
			case wire.SentinelTerminate:
				return "client sent kill"
			}

			resp := l.dispatch(ctx, req)
			if err := conn.SetWriteDeadline(time.Now().Add(l.cfg.WriteTimeout)); err != nil {
				return "deadline: " + err.Error()
			}
			if err := enc.Encode(resp); err != nil {
				l.logger.Warn("write failed", "device", label, "remote", remote, "operation", req.Operation, "error", err)
				return "write error"
			}
			served++
		}
	}()

	l.logger.Info("client disconnected", "device", label, "remote", remote, "reason", reason, "requests", served)
}

// dispatch submits req and converts the outcome to a wire response.
// Submission failures become ServiceUnavailable errors so the client is
// always answered.
func (l *Listener) dispatch(ctx context.Context, req wire.Request) wire.Response {
	resp, err := l.target.Submit(ctx, req.Operation, device.Call{Args: req.Args, Kwargs: req.Kwargs})
	if err != nil {
		l.logger.Warn("submission rejected", "device", l.target.Label(), "operation", req.Operation, "error", err)
		return wire.Failure(device.KindServiceUnavailable, []any{err.Error()})
	}
	return toWire(resp)
}

func toWire(resp dispatch.Response) wire.Response {
	return wire.Response{Status: int(resp.Status), Payload: resp.Payload}
}
