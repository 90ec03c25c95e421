package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/gtm-copilot/internal/pipeline"
	"github.com/jonathan/gtm-copilot/internal/types"
)

// maxBodyBytes bounds a run request body.
const maxBodyBytes = 1 << 20

// decodeInput reads and validates the product context of a run request.
func decodeInput(w http.ResponseWriter, r *http.Request) (types.ProductContext, error) {
	var pc types.ProductContext
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&pc); err != nil {
		if errors.Is(err, io.EOF) {
			return pc, &ErrValidation{Field: "body", Message: "request body is empty"}
		}
		return pc, &ErrValidation{Field: "body", Message: err.Error()}
	}
	if err := pc.Validate(); err != nil {
		return pc, err
	}
	return pc, nil
}

// inputErrorResponse answers 400 with the empty critical fields when known.
func (s *Server) inputErrorResponse(w http.ResponseWriter, err error) {
	var missing *types.MissingFieldsError
	if errors.As(err, &missing) {
		s.jsonResponse(w, http.StatusBadRequest, map[string]any{
			"error":          err.Error(),
			"missing_fields": missing.Fields,
		})
		return
	}
	s.errorResponse(w, HTTPStatus(err), err.Error())
}

// handleRun executes a run and answers with the finished run.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	pc, err := decodeInput(w, r)
	if err != nil {
		s.inputErrorResponse(w, err)
		return
	}

	run := s.runner.Stream(r.Context(), pc, s.registry.Progress)
	s.registry.Finish(run)
	s.logger.Info("run completed",
		zap.String("run_id", run.ID.String()),
		zap.String("status", string(run.Status)),
	)

	s.jsonResponse(w, RunHTTPStatus(run), run)
}

// handleRunStream executes a run and streams its trail as "log" events,
// followed by a "complete" event carrying the finished run.
func (s *Server) handleRunStream(w http.ResponseWriter, r *http.Request) {
	pc, err := decodeInput(w, r)
	if err != nil {
		s.inputErrorResponse(w, err)
		return
	}

	stream, err := newRunStream(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Events arrive one at a time, in trail order.
	clientGone := false
	run := s.runner.Stream(r.Context(), pc, func(ev pipeline.ProgressEvent) {
		s.registry.Progress(ev)
		if clientGone {
			return
		}
		if err := stream.Log(ev); err != nil {
			clientGone = true
			s.logger.Debug("stream client went away", zap.String("run_id", ev.RunID), zap.Error(err))
		}
	})
	s.registry.Finish(run)

	if clientGone {
		return
	}
	if run.Status == pipeline.StatusFailed {
		if err := stream.Error(run.Diagnostic); err != nil {
			s.logger.Debug("failed to write error event", zap.Error(err))
			return
		}
	}
	if err := stream.Complete(run); err != nil {
		s.logger.Debug("failed to write complete event", zap.Error(err))
	}
}

// handleListRuns returns the runs held in memory, newest first.
func (s *Server) handleListRuns(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]any{"runs": s.registry.List()})
}

// handleGetRun returns a run from memory, or its stored record.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if summary, ok := s.registry.Get(id); ok {
		if summary.Done {
			s.jsonResponse(w, http.StatusOK, summary.Run)
			return
		}
		s.jsonResponse(w, http.StatusOK, summary)
		return
	}

	runID, err := uuid.Parse(id)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid run ID format")
		return
	}
	if s.store == nil {
		err := &ErrRunNotFound{RunID: id}
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}

	record, err := s.store.GetRun(r.Context(), runID)
	if err != nil {
		s.logger.Error("run lookup failed", zap.String("run_id", id), zap.Error(err))
		s.errorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	if record == nil {
		err := &ErrRunNotFound{RunID: id}
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, record)
}
