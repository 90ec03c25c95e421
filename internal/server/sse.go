package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/jonathan/gtm-copilot/internal/pipeline"
)

// SSE event names
const (
	EventLog      = "log"
	EventComplete = "complete"
	EventError    = "error"
)

var errStreamingUnsupported = errors.New("streaming not supported")

// runStream writes a run's progress as Server-Sent Events. Log events carry the
// trail sequence number as their id.
type runStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// newRunStream sends the event-stream headers and flushes them.
func newRunStream(w http.ResponseWriter) (*runStream, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errStreamingUnsupported
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &runStream{w: w, flusher: flusher}, nil
}

// Log sends one trail entry.
func (s *runStream) Log(ev pipeline.ProgressEvent) error {
	return s.send(EventLog, strconv.Itoa(ev.Entry.Seq), ev)
}

// Complete sends the finished run.
func (s *runStream) Complete(run *pipeline.Run) error {
	return s.send(EventComplete, "", run)
}

// Error sends a terminal error event.
func (s *runStream) Error(message string) error {
	return s.send(EventError, "", map[string]string{"error": message})
}

// send writes one frame in a single write so a frame is never split between
// flushes.
func (s *runStream) send(event, id string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}

	var frame bytes.Buffer
	if id != "" {
		frame.WriteString("id: " + id + "\n")
	}
	frame.WriteString("event: " + event + "\n")
	frame.WriteString("data: ")
	frame.Write(payload)
	frame.WriteString("\n\n")

	if _, err := s.w.Write(frame.Bytes()); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
