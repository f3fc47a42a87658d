package fakeecosystem

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	enrollmentsPath = ResourcePrefix + "/open-banking/enrollments/v1"
	paymentsPath    = ResourcePrefix + "/open-banking/payments/v4"
)

type resourceHandler func(w http.ResponseWriter, r *http.Request, clientID string, data json.RawMessage)

func (e *Ecosystem) resourceRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST "+enrollmentsPath+"/enrollments", e.resource("enrollment", e.createEnrollment))
	mux.HandleFunc("POST "+enrollmentsPath+"/enrollments/{id}/risk-signals", e.resource("risk-signals", e.riskSignals))
	mux.HandleFunc("POST "+enrollmentsPath+"/enrollments/{id}/fido-registration-options", e.resource("registration-options", e.registrationOptions))
	mux.HandleFunc("POST "+enrollmentsPath+"/enrollments/{id}/fido-registration", e.resource("fido-registration", e.fidoRegistration))
	mux.HandleFunc("POST "+enrollmentsPath+"/enrollments/{id}/fido-sign-options", e.resource("sign-options", e.signOptions))
	mux.HandleFunc("POST "+paymentsPath+"/consents", e.resource("consent", e.createConsent))
	mux.HandleFunc("POST "+enrollmentsPath+"/consents/{id}/authorise", e.resource("authorise", e.authorise))
}

// resource checks the bearer token, the JWT content type and the FAPI headers,
// records the headers and hands the verified data claim to next.
func (e *Ecosystem) resource(name string, next resourceHandler) http.HandlerFunc {
	return e.guard(name, func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

		e.mu.Lock()
		e.headers[name] = append(e.headers[name], r.Header.Clone())
		clientID, known := e.accessTokens[token]
		e.mu.Unlock()

		switch {
		case !known:
			writeOAuthError(w, http.StatusUnauthorized, "invalid_token", "unknown access token")
			return
		case r.Header.Get("Content-Type") != "application/jwt":
			writeOAuthError(w, http.StatusUnsupportedMediaType, "invalid_request", "content type must be application/jwt")
			return
		case r.Header.Get("x-fapi-interaction-id") == "" || r.Header.Get("x-idempotency-key") == "":
			writeOAuthError(w, http.StatusBadRequest, "invalid_request", "missing FAPI headers")
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeOAuthError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		claims, err := e.verifyJWT(strings.TrimSpace(string(body)))
		if err != nil {
			writeOAuthError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("invalid signed body: %v", err))
			return
		}
		data, err := json.Marshal(claims["data"])
		if err != nil || claims["data"] == nil {
			writeOAuthError(w, http.StatusBadRequest, "invalid_request", "missing data claim")
			return
		}
		next(w, r, clientID, data)
	})
}

func (e *Ecosystem) writeSigned(w http.ResponseWriter, status int, data any) {
	signed, err := e.asSigner.SignPayload(map[string]any{"data": data}, "tpp")
	if err != nil {
		writeOAuthError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/jwt")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(signed))
}

func (e *Ecosystem) lookupEnrollment(w http.ResponseWriter, id, clientID string) (*enrollment, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	en, ok := e.enrollments[id]
	if !ok || en.ClientID != clientID {
		writeOAuthError(w, http.StatusNotFound, "NOT_FOUND", "unknown enrollment")
		return nil, false
	}
	return en, true
}

func (e *Ecosystem) createEnrollment(w http.ResponseWriter, _ *http.Request, clientID string, data json.RawMessage) {
	var req struct {
		Permissions []string `json:"permissions"`
	}
	if err := json.Unmarshal(data, &req); err != nil || len(req.Permissions) == 0 {
		writeOAuthError(w, http.StatusUnprocessableEntity, "PARAMETRO_INVALIDO", "permissions required")
		return
	}

	e.mu.Lock()
	id := "urn:fakebank:enrollment:" + e.next("e")
	e.enrollments[id] = &enrollment{ClientID: clientID}
	e.mu.Unlock()

	e.writeSigned(w, http.StatusCreated, map[string]any{
		"enrollmentId": id,
		"status":       "AWAITING_RISK_SIGNALS",
		"permissions":  req.Permissions,
	})
}

func (e *Ecosystem) riskSignals(w http.ResponseWriter, r *http.Request, clientID string, data json.RawMessage) {
	if _, ok := e.lookupEnrollment(w, r.PathValue("id"), clientID); !ok {
		return
	}
	var signals struct {
		DeviceID string `json:"deviceId"`
	}
	if err := json.Unmarshal(data, &signals); err != nil || signals.DeviceID == "" {
		writeOAuthError(w, http.StatusUnprocessableEntity, "PARAMETRO_INVALIDO", "deviceId required")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (e *Ecosystem) registrationOptions(w http.ResponseWriter, r *http.Request, clientID string, data json.RawMessage) {
	en, ok := e.lookupEnrollment(w, r.PathValue("id"), clientID)
	if !ok {
		return
	}
	var req struct {
		RP       string `json:"rp"`
		Platform string `json:"platform"`
	}
	if err := json.Unmarshal(data, &req); err != nil || req.RP == "" || req.Platform == "" {
		writeOAuthError(w, http.StatusUnprocessableEntity, "PARAMETRO_INVALIDO", "rp and platform required")
		return
	}

	challenge := randomChallenge()
	e.mu.Lock()
	en.RegistrationChallenge = challenge
	e.mu.Unlock()

	e.writeSigned(w, http.StatusCreated, map[string]any{
		"enrollmentId": r.PathValue("id"),
		"challenge":    challenge,
		"rp":           map[string]string{"id": e.opts.RPID, "name": "Fake Bank"},
		"user":         map[string]string{"id": "fake-user-handle", "name": "11111111111", "displayName": "Fake User"},
		"pubKeyCredParams": []map[string]any{
			{"type": "public-key", "alg": -7},
			{"type": "public-key", "alg": -257},
		},
		"timeout":     60000,
		"attestation": "none",
		"authenticatorSelection": map[string]any{
			"userVerification": "preferred",
			"residentKey":      "preferred",
		},
	})
}

// clientDataChallenge returns the challenge carried by a base64url clientDataJSON.
func clientDataChallenge(encoded string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(encoded, "="))
	if err != nil {
		return "", err
	}
	var clientData struct {
		Challenge string `json:"challenge"`
	}
	if err := json.Unmarshal(raw, &clientData); err != nil {
		return "", err
	}
	return clientData.Challenge, nil
}

type credentialEnvelope struct {
	ID       string `json:"id"`
	RawID    string `json:"rawId"`
	Type     string `json:"type"`
	Response struct {
		ClientDataJSON string `json:"clientDataJSON"`
	} `json:"response"`
}

func (e *Ecosystem) fidoRegistration(w http.ResponseWriter, r *http.Request, clientID string, data json.RawMessage) {
	en, ok := e.lookupEnrollment(w, r.PathValue("id"), clientID)
	if !ok {
		return
	}
	var cred credentialEnvelope
	if err := json.Unmarshal(data, &cred); err != nil || cred.ID == "" {
		writeOAuthError(w, http.StatusUnprocessableEntity, "PARAMETRO_INVALIDO", "credential id required")
		return
	}
	challenge, err := clientDataChallenge(cred.Response.ClientDataJSON)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil || en.RegistrationChallenge == "" || challenge != en.RegistrationChallenge {
		writeOAuthError(w, http.StatusUnprocessableEntity, "CHALLENGE_INVALIDO", "challenge mismatch")
		return
	}
	en.CredentialID = cred.ID
	en.RegistrationChallenge = ""
	w.WriteHeader(http.StatusNoContent)
}

func (e *Ecosystem) signOptions(w http.ResponseWriter, r *http.Request, clientID string, data json.RawMessage) {
	en, ok := e.lookupEnrollment(w, r.PathValue("id"), clientID)
	if !ok {
		return
	}
	var req struct {
		RP        string `json:"rp"`
		Platform  string `json:"platform"`
		ConsentID string `json:"consentId"`
	}
	if err := json.Unmarshal(data, &req); err != nil || req.ConsentID == "" {
		writeOAuthError(w, http.StatusUnprocessableEntity, "PARAMETRO_INVALIDO", "consentId required")
		return
	}

	challenge := randomChallenge()
	e.mu.Lock()
	credentialID := en.CredentialID
	en.SignChallenge = challenge
	e.mu.Unlock()
	if credentialID == "" {
		writeOAuthError(w, http.StatusUnprocessableEntity, "STATUS_VINCULO_INVALIDO", "enrollment has no credential")
		return
	}

	e.writeSigned(w, http.StatusCreated, map[string]any{
		"challenge": challenge,
		"rpId":      e.opts.RPID,
		"allowCredentials": []map[string]string{
			{"type": "public-key", "id": credentialID},
		},
		"timeout":          60000,
		"userVerification": "preferred",
	})
}

func (e *Ecosystem) createConsent(w http.ResponseWriter, _ *http.Request, _ string, data json.RawMessage) {
	var req struct {
		Payment struct {
			Amount string `json:"amount"`
		} `json:"payment"`
	}
	if err := json.Unmarshal(data, &req); err != nil || req.Payment.Amount == "" {
		writeOAuthError(w, http.StatusUnprocessableEntity, "PARAMETRO_INVALIDO", "payment amount required")
		return
	}

	e.mu.Lock()
	id := "urn:fakebank:consent:" + e.next("c")
	e.consents[id] = &consent{}
	e.mu.Unlock()

	e.writeSigned(w, http.StatusCreated, map[string]any{
		"consentId": id,
		"status":    "AWAITING_AUTHORISATION",
		"payment":   req.Payment,
	})
}

func (e *Ecosystem) authorise(w http.ResponseWriter, r *http.Request, clientID string, data json.RawMessage) {
	var req struct {
		EnrollmentID  string             `json:"enrollmentId"`
		FidoAssertion credentialEnvelope `json:"fidoAssertion"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		writeOAuthError(w, http.StatusUnprocessableEntity, "PARAMETRO_INVALIDO", err.Error())
		return
	}
	en, ok := e.lookupEnrollment(w, req.EnrollmentID, clientID)
	if !ok {
		return
	}
	challenge, err := clientDataChallenge(req.FidoAssertion.Response.ClientDataJSON)

	e.mu.Lock()
	defer e.mu.Unlock()
	c, known := e.consents[r.PathValue("id")]
	switch {
	case !known:
		writeOAuthError(w, http.StatusNotFound, "NOT_FOUND", "unknown consent")
	case req.FidoAssertion.ID != en.CredentialID:
		writeOAuthError(w, http.StatusUnprocessableEntity, "CREDENCIAL_INVALIDA", "unknown credential")
	case err != nil || en.SignChallenge == "" || challenge != en.SignChallenge:
		writeOAuthError(w, http.StatusUnprocessableEntity, "CHALLENGE_INVALIDO", "challenge mismatch")
	default:
		c.Authorized = true
		en.SignChallenge = ""
		w.WriteHeader(http.StatusNoContent)
	}
}
