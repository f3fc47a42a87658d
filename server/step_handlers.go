package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/ranierimazili/o2b2-fido-client/internal/errors"
	"github.com/ranierimazili/o2b2-fido-client/internal/utils"
	"github.com/ranierimazili/o2b2-fido-client/oauthmodel"
	"github.com/rs/zerolog/log"
)

const maxBodyBytes = 1 << 20

type platformRequest struct {
	Platform oauthmodel.Platform `json:"platform"`
}

type assertionRequest struct {
	FidoAssertion json.RawMessage `json:"fidoAssertion"`
}

func (s *Server) RegisterHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeResults(w, r, s.flows.Register(r.Context(), r.PathValue("id")))
	}
}

func (s *Server) BindStep1Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeResults(w, r, s.flows.BindStep1(r.Context(), r.PathValue("id")))
	}
}

// BindStep2Handler expects {"platform": "ANDROID" | "IOS" | "BROWSER"}
func (s *Server) BindStep2Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req platformRequest
		if err := decodeBody(r, &req); err != nil {
			writeFailure(w, "reading request body", err)
			return
		}
		s.writeResults(w, r, s.flows.BindStep2(r.Context(), r.PathValue("id"), req.Platform))
	}
}

// BindStep3Handler expects the registration credential itself as the body
func (s *Server) BindStep3Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var credential json.RawMessage
		if err := decodeBody(r, &credential); err != nil {
			writeFailure(w, "reading request body", err)
			return
		}
		s.writeResults(w, r, s.flows.BindStep3(r.Context(), r.PathValue("id"), credential))
	}
}

func (s *Server) PaymentStep1Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req platformRequest
		if err := decodeBody(r, &req); err != nil {
			writeFailure(w, "reading request body", err)
			return
		}
		s.writeResults(w, r, s.flows.PaymentStep1(r.Context(), r.PathValue("id"), req.Platform))
	}
}

// PaymentStep2Handler expects {"fidoAssertion": {...}}
func (s *Server) PaymentStep2Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req assertionRequest
		if err := decodeBody(r, &req); err != nil {
			writeFailure(w, "reading request body", err)
			return
		}
		if len(req.FidoAssertion) == 0 {
			writeFailure(w, "reading request body",
				apperrors.New(apperrors.KindInvalidRequest, r.URL.Path, fmt.Errorf("%w: fidoAssertion is required", apperrors.ErrInvalidRequest)))
			return
		}
		s.writeResults(w, r, s.flows.PaymentStep2(r.Context(), r.PathValue("id"), req.FidoAssertion))
	}
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, body := http.StatusOK, map[string]string{"status": "ok"}
		for _, check := range s.health {
			if err := check(r.Context()); err != nil {
				status, body = http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()}
				break
			}
		}
		writeJSON(w, status, body)
	}
}

func decodeBody(r *http.Request, v any) error {
	body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err != nil {
		return apperrors.New(apperrors.KindInvalidRequest, r.URL.Path, err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) || len(body) == 0 {
			err = fmt.Errorf("%w: body is not valid JSON", apperrors.ErrInvalidRequest)
		}
		return apperrors.New(apperrors.KindInvalidRequest, r.URL.Path, err)
	}
	return nil
}

func (s *Server) writeResults(w http.ResponseWriter, r *http.Request, results []oauthmodel.StepResult) {
	if s.env == "DEV" {
		for _, result := range results {
			log.Info().Msgf("  %s%s%s", outcomeColor(result.Success), result.Message, ResetColor)
		}
	}
	if results == nil {
		results = []oauthmodel.StepResult{}
	}
	writeJSON(w, http.StatusOK, results)
}

// writeFailure answers with a single failure entry; steps always answer 200.
func writeFailure(w http.ResponseWriter, message string, err error) {
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		appErr = apperrors.New(apperrors.KindInternal, "", err)
	}
	writeJSON(w, http.StatusOK, []oauthmodel.StepResult{{
		Message: message,
		Details: utils.PrettyJSON(appErr),
	}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}
