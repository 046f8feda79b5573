package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/jonathan/daily-brief/internal/pipeline"
	"github.com/jonathan/daily-brief/internal/server/middleware"
	"github.com/jonathan/daily-brief/internal/types"
)

// RunRequest represents the request body for /v1/runs
type RunRequest struct {
	Topic string `json:"topic" validate:"required"`
	// UserID is ignored when the request is authenticated.
	UserID    string          `json:"user_id,omitempty"`
	Overrides types.Overrides `json:"overrides"`
}

// RunFailure is the error body of a failed run.
type RunFailure struct {
	Error string         `json:"error"`
	RunID string         `json:"run_id,omitempty"`
	State types.Stage    `json:"state,omitempty"`
	Trace types.RunTrace `json:"trace"`
}

func (s *Server) decodeRunRequest(r *http.Request) (RunRequest, error) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, &ErrValidation{Field: "body", Message: err.Error()}
	}
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return req, &ErrValidation{Field: verrs[0].Namespace(), Message: "failed " + verrs[0].Tag()}
		}
		return req, &ErrValidation{Field: "body", Message: err.Error()}
	}
	return req, nil
}

// userFor returns the user a request acts as: the token subject when
// authentication is on, otherwise the requested id or DefaultUserID.
func (s *Server) userFor(r *http.Request, requested string) (string, error) {
	if s.jwtService != nil {
		return middleware.GetUserID(r)
	}
	if requested = strings.TrimSpace(requested); requested != "" {
		return requested, nil
	}
	return DefaultUserID, nil
}

func (s *Server) writeRunError(w http.ResponseWriter, err error) {
	status := HTTPStatus(err)
	var runErr *pipeline.RunError
	if errors.As(err, &runErr) {
		s.jsonResponse(w, status, RunFailure{
			Error: runErr.Cause.Error(),
			RunID: runErr.Trace.RunID,
			State: runErr.State,
			Trace: runErr.Trace,
		})
		return
	}
	s.errorResponse(w, status, err.Error())
}

// handleRun runs the pipeline synchronously and returns the brief and trace.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeRunRequest(r)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	userID, err := s.userFor(r, req.UserID)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, err.Error())
		return
	}

	res, err := s.orchestrator.Run(r.Context(), pipeline.Request{
		UserID:    userID,
		Topic:     req.Topic,
		Overrides: req.Overrides,
	})
	if err != nil {
		s.logger.Warn("run failed", zap.String("user_id", userID), zap.Error(err))
		s.writeRunError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, res)
}

// handleRunStream runs the pipeline and streams stage transitions as
// Server-Sent Events, finishing with a complete or error event.
func (s *Server) handleRunStream(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeRunRequest(r)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	userID, err := s.userFor(r, req.UserID)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, err.Error())
		return
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	res, err := s.orchestrator.Run(r.Context(), pipeline.Request{
		UserID:    userID,
		Topic:     req.Topic,
		Overrides: req.Overrides,
		OnProgress: func(event pipeline.ProgressEvent) {
			if werr := sse.WriteEvent("progress", event); werr != nil {
				s.logger.Debug("dropping progress event", zap.Error(werr))
			}
		},
	})
	if err != nil {
		sse.WriteError(err.Error())
		return
	}
	sse.WriteComplete(res)
}

// handleGetProfile returns the live profile of a user.
func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	if s.jwtService != nil {
		if sub, _ := middleware.GetUserID(r); sub != userID {
			err := &ErrForbidden{UserID: userID}
			s.errorResponse(w, HTTPStatus(err), err.Error())
			return
		}
	}

	profile, err := s.profiles.Get(r.Context(), userID)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, profile)
}

// handleGetRun returns a stored run trace.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")
	if s.traces == nil {
		s.errorResponse(w, http.StatusNotFound, "run traces are not stored by this server")
		return
	}

	rt, err := s.traces.Load(r.Context(), runID)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}
	if s.jwtService != nil {
		if sub, _ := middleware.GetUserID(r); sub != rt.UserID {
			err := &ErrForbidden{UserID: rt.UserID}
			s.errorResponse(w, HTTPStatus(err), err.Error())
			return
		}
	}
	s.jsonResponse(w, http.StatusOK, rt)
}
