package server

import (
	"mime"
	"net/http"

	"github.com/ranierimazili/o2b2-fido-client/oauthmodel"
	"github.com/rs/zerolog/log"
)

const callbackPage = "cb.html"

// CallbackPageHandler serves the page that forwards a fragment-encoded
// authorization response to POST /cb. A response carried in the query string
// is stored directly.
func (s *Server) CallbackPageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if query.Get("code") != "" && query.Get("state") != "" {
			s.storeCallback(r, oauthmodel.CallbackPayload{
				State:   query.Get("state"),
				Code:    query.Get("code"),
				IDToken: query.Get("id_token"),
			})
		}
		if err := StreamFile(w, callbackPage); err != nil {
			log.Error().Err(err).Msg("failed to serve callback page")
			http.Error(w, "404 - Page Not Found", http.StatusNotFound)
		}
	}
}

// CallbackSubmitHandler accepts the authorization response as JSON or as a form
// post. It answers 200 whether or not a flow was waiting for it.
func (s *Server) CallbackSubmitHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload oauthmodel.CallbackPayload
		mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

		switch mediaType {
		case "application/x-www-form-urlencoded", "multipart/form-data":
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
			// r.FormValue covers both the query string and the posted form
			payload = oauthmodel.CallbackPayload{
				State:   r.FormValue("state"),
				Code:    r.FormValue("code"),
				IDToken: r.FormValue("id_token"),
			}
		default:
			if err := decodeBody(r, &payload); err != nil {
				log.Warn().Err(err).Msg("ignoring unreadable callback")
				w.WriteHeader(http.StatusOK)
				return
			}
		}

		if errParam := r.FormValue("error"); errParam != "" {
			log.Warn().
				Str("flow", payload.State).
				Str("error", errParam).
				Str("error_description", r.FormValue("error_description")).
				Msg("authorization server returned an error")
		}
		s.storeCallback(r, payload)
		w.WriteHeader(http.StatusOK)
	}
}

func (s *Server) storeCallback(r *http.Request, payload oauthmodel.CallbackPayload) {
	if err := s.flows.Callback(r.Context(), payload); err != nil {
		log.Warn().Err(err).Str("flow", payload.State).Msg("callback ignored")
	}
}
