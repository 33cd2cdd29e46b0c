package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/loqalabs/loqa-pitch/internal/media"
	"github.com/loqalabs/loqa-pitch/internal/pipeline"
	"github.com/loqalabs/loqa-pitch/internal/protocol"
)

// uploadFields are tried in order; deployments disagree on the name.
var uploadFields = []string{"audio", "file"}

type errorResponse struct {
	Error   string             `json:"error"`
	Kind    pipeline.Kind      `json:"kind,omitempty"`
	Session *pipeline.Snapshot `json:"session,omitempty"`
}

type capabilitiesResponse struct {
	Capabilities []protocol.Capability `json:"capabilities"`
}

type transcriptRequest struct {
	Transcript string `json:"transcript"`
}

func (s *server) handleCapabilities(w http.ResponseWriter, _ *http.Request) {
	var caps []protocol.Capability
	if s.opts.Capabilities != nil {
		caps = s.opts.Capabilities.Capabilities()
	}
	if caps == nil {
		caps = []protocol.Capability{}
	}
	writeJSON(w, http.StatusOK, capabilitiesResponse{Capabilities: caps})
}

func (s *server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.opts.Pipeline.Snapshot())
}

func (s *server) handleStartDictation(w http.ResponseWriter, _ *http.Request) {
	s.respond(w, http.StatusCreated)(s.opts.Pipeline.StartDictation())
}

func (s *server) handleStartRecording(w http.ResponseWriter, _ *http.Request) {
	s.respond(w, http.StatusCreated)(s.opts.Pipeline.StartRecording())
}

func (s *server) handleStop(w http.ResponseWriter, _ *http.Request) {
	s.respond(w, http.StatusOK)(s.opts.Pipeline.StopCapture())
}

func (s *server) handleFeedback(w http.ResponseWriter, _ *http.Request) {
	s.respond(w, http.StatusAccepted)(s.opts.Pipeline.RequestFeedback())
}

func (s *server) handleSetTranscript(w http.ResponseWriter, r *http.Request) {
	var req transcriptRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid transcript body: " + err.Error()})
		return
	}
	s.respond(w, http.StatusOK)(s.opts.Pipeline.SetTranscript(req.Transcript))
}

func (s *server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid multipart upload: " + err.Error()})
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := formFile(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "failed to read upload: " + err.Error()})
		return
	}
	s.respond(w, http.StatusAccepted)(s.opts.Pipeline.Upload(header.Filename, header.Header.Get("Content-Type"), data))
}

func formFile(r *http.Request) (multipart.File, *multipart.FileHeader, error) {
	for _, field := range uploadFields {
		file, header, err := r.FormFile(field)
		if err == nil {
			return file, header, nil
		}
		if !errors.Is(err, http.ErrMissingFile) {
			return nil, nil, err
		}
	}
	return nil, nil, errors.New("missing audio file: expected form field audio or file")
}

// respond writes the snapshot on success or maps err onto a status code.
func (s *server) respond(w http.ResponseWriter, okStatus int) func(pipeline.Snapshot, error) {
	return func(snap pipeline.Snapshot, err error) {
		if err == nil {
			writeJSON(w, okStatus, snap)
			return
		}
		status, kind := classify(err)
		if status >= http.StatusInternalServerError {
			s.logger.Warn("session request failed", slogError(err))
		}
		writeJSON(w, status, errorResponse{Error: message(err), Kind: kind, Session: &snap})
	}
}

func classify(err error) (int, pipeline.Kind) {
	var pe *pipeline.Error
	if errors.As(err, &pe) {
		switch pe.Kind {
		case pipeline.KindUnsupportedCapability:
			return http.StatusNotImplemented, pe.Kind
		case pipeline.KindPermissionDenied:
			return http.StatusForbidden, pe.Kind
		case pipeline.KindDeviceUnavailable:
			return http.StatusServiceUnavailable, pe.Kind
		default:
			return http.StatusUnprocessableEntity, pe.Kind
		}
	}
	switch {
	case errors.Is(err, pipeline.ErrBusy), errors.Is(err, pipeline.ErrNotCapturing):
		return http.StatusConflict, ""
	case errors.Is(err, media.ErrNotAudio):
		return http.StatusUnsupportedMediaType, ""
	}
	return http.StatusInternalServerError, ""
}

func message(err error) string {
	var pe *pipeline.Error
	if errors.As(err, &pe) {
		return pe.Message()
	}
	return err.Error()
}

// handleEvents streams snapshots to a websocket client, starting with the
// current one.
func (s *server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", slogError(err))
		return
	}
	defer conn.Close()

	updates, unsubscribe := s.opts.Pipeline.Subscribe(32)
	defer unsubscribe()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(s.opts.PingInterval)
	defer ping.Stop()

	if err := s.writeSnapshot(conn, s.opts.Pipeline.Snapshot()); err != nil {
		return
	}
	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case snap, ok := <-updates:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(time.Second))
				return
			}
			if err := s.writeSnapshot(conn, snap); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}

func (s *server) writeSnapshot(conn *websocket.Conn, snap pipeline.Snapshot) error {
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteJSON(snap); err != nil {
		s.logger.Debug("websocket write failed", slogError(err))
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
