package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/ranierimazili/o2b2-fido-client/internal/config"
	"github.com/ranierimazili/o2b2-fido-client/oauthmodel"
	"github.com/rs/zerolog/log"
)

// Flows is the flow orchestrator as seen by the HTTP surface
type Flows interface {
	Register(ctx context.Context, id string) []oauthmodel.StepResult
	BindStep1(ctx context.Context, id string) []oauthmodel.StepResult
	Callback(ctx context.Context, payload oauthmodel.CallbackPayload) error
	BindStep2(ctx context.Context, id string, platform oauthmodel.Platform) []oauthmodel.StepResult
	BindStep3(ctx context.Context, id string, credential json.RawMessage) []oauthmodel.StepResult
	PaymentStep1(ctx context.Context, id string, platform oauthmodel.Platform) []oauthmodel.StepResult
	PaymentStep2(ctx context.Context, id string, fidoAssertion json.RawMessage) []oauthmodel.StepResult
}

// HealthCheck reports whether a dependency is usable
type HealthCheck func(ctx context.Context) error

type Server struct {
	env     string // Environment (e.g., "DEV", "PROD")
	mux     *http.ServeMux
	routes  []string
	config  config.Config
	flows   Flows
	limiter *flowLimiter
	health  []HealthCheck
}

type Option func(*Server)

// WithHealthCheck adds a check run by the health endpoint.
func WithHealthCheck(check HealthCheck) Option {
	return func(s *Server) {
		s.health = append(s.health, check)
	}
}

func New(config config.Config, flows Flows, opts ...Option) *Server {
	s := &Server{
		env:     config.GetEnv(),
		mux:     http.NewServeMux(),
		config:  config,
		flows:   flows,
		limiter: newFlowLimiter(config.GetStepRateLimit(), config.GetStepRateBurst()),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.initRoutes()
	s.logRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	log.Info().Msgf("[%-19s] %s", colouredMethod(method), path)
}

func colouredMethod(method string) string {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		return color + paddedMethod + ResetColor
	}
	return Gray + paddedMethod + ResetColor
}
