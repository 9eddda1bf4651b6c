package metrics

import "github.com/prometheus/client_golang/prometheus"

// PaymentMetrics tracks reconciliation outcomes against the payment gateway.
type PaymentMetrics struct {
	reconciled    *prometheus.CounterVec
	gatewayErrors prometheus.Counter
	intentsOpened prometheus.Counter
}

// NewPaymentMetrics registers the payment metrics on the provided registerer.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	reconciled := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_reconcile_total",
		Help: "Reconciliation outcomes grouped by resulting order status.",
	}, []string{"outcome"})
	gatewayErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "payment_gateway_errors_total",
		Help: "Failed calls to the payment gateway.",
	})
	intentsOpened := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "payment_intents_opened_total",
		Help: "Checkout preferences created with the gateway.",
	})
	reg.MustRegister(reconciled, gatewayErrors, intentsOpened)
	return &PaymentMetrics{
		reconciled:    reconciled,
		gatewayErrors: gatewayErrors,
		intentsOpened: intentsOpened,
	}
}

// IncReconciled records one reconciliation with its resulting outcome label.
func (p *PaymentMetrics) IncReconciled(outcome string) {
	if p == nil || p.reconciled == nil {
		return
	}
	p.reconciled.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncGatewayError records a failed gateway call.
func (p *PaymentMetrics) IncGatewayError() {
	if p == nil || p.gatewayErrors == nil {
		return
	}
	p.gatewayErrors.Inc()
}

// IncIntentOpened records a newly created checkout preference.
func (p *PaymentMetrics) IncIntentOpened() {
	if p == nil || p.intentsOpened == nil {
		return
	}
	p.intentsOpened.Inc()
}
