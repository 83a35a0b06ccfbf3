package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/tem-emulator/internal/device"
	"github.com/nerrad567/tem-emulator/internal/wire"
)

// handleListDevices returns the stats of every hosted device.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// handleGetDevice returns the stats of one device.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, dev.Stats())
}

// handleInvoke queues one command and returns the device's answer.
//
// The body has the socket request shape ({operation, args, kwargs}). A
// device error is still HTTP 200: the body carries status 500 and the
// (kind, args) payload, exactly as on the socket.
func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.lookup(w, r)
	if !ok {
		return
	}

	var body any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "request body too large")
			return
		}
		writeBadRequest(w, "invalid JSON body")
		return
	}

	req, sentinel, err := wire.ParseRequest(body)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if sentinel != wire.SentinelNone {
		writeBadRequest(w, "connection sentinels are not accepted over HTTP")
		return
	}

	resp, err := dev.Submit(r.Context(), req.Operation, device.Call{Args: req.Args, Kwargs: req.Kwargs})
	if err != nil {
		s.logger.Warn("api invoke rejected", "device", dev.Label(), "operation", req.Operation, "error", err)
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, wire.Response{Status: int(resp.Status), Payload: resp.Payload})
}

// lookup resolves the {label} URL parameter, writing a 404 when unknown.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (Device, bool) {
	label := chi.URLParam(r, "label")
	dev, ok := s.devices[label]
	if !ok {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "device not found: "+label)
		return nil, false
	}
	return dev, true
}
