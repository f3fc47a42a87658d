package server

// Route path constants
// The step routes keep the paths the browser front end has always called
const (
	// Authorization response delivery
	RouteCallback = "/cb"

	// Dynamic client registration
	RouteDCR = "/dcr/{id}"

	// Device binding
	RouteBindStep1 = "/vincularDispositivo/step1/{id}"
	RouteBindStep2 = "/vincularDispositivo/step2/{id}"
	RouteBindStep3 = "/vincularDispositivo/step3/{id}"

	// Payment consent
	RoutePaymentStep1 = "/pagamento/step1/{id}"
	RoutePaymentStep2 = "/pagamento/step2/{id}"

	// Operations
	RouteMetrics = "/metrics"
	RouteHealth  = "/healthz"
)
