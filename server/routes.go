package server

import (
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) initRoutes() {
	// Authorization server redirect lands here
	s.RegisterRouteHandler("GET "+RouteCallback, ChainMiddleware(s.CallbackPageHandler(), s.PageMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteCallback, ChainMiddleware(s.CallbackSubmitHandler(), s.APIMiddleware()...))

	// Flow steps
	s.RegisterRouteHandler("POST "+RouteDCR, ChainMiddleware(s.RegisterHandler(), s.StepMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteBindStep1, ChainMiddleware(s.BindStep1Handler(), s.StepMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteBindStep2, ChainMiddleware(s.BindStep2Handler(), s.StepMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteBindStep3, ChainMiddleware(s.BindStep3Handler(), s.StepMiddleware()...))
	s.RegisterRouteHandler("POST "+RoutePaymentStep1, ChainMiddleware(s.PaymentStep1Handler(), s.StepMiddleware()...))
	s.RegisterRouteHandler("POST "+RoutePaymentStep2, ChainMiddleware(s.PaymentStep2Handler(), s.StepMiddleware()...))

	// CORS preflight for the step routes
	s.RegisterRouteHandler("OPTIONS /", ChainMiddleware(noContent, s.APIMiddleware()...))

	s.RegisterRouteHandler("GET "+RouteMetrics, promhttp.Handler())
	s.RegisterRouteHandler("GET "+RouteHealth, ChainMiddleware(s.HealthHandler(), s.APIMiddleware()...))
}
