package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ChargesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payeez_charges_total",
		Help: "Card charges by PSP and outcome.",
	}, []string{"psp", "outcome"})

	TransfersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payeez_transfers_total",
		Help: "ACH settlement executions by provider and outcome.",
	}, []string{"provider", "outcome"})

	RiskDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payeez_risk_decisions_total",
		Help: "Risk assessments by decision.",
	}, []string{"decision"})

	WebhookDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payeez_webhook_deliveries_total",
		Help: "Outbound merchant webhook deliveries by outcome.",
	}, []string{"outcome"})

	BillingScanItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payeez_billing_scan_items_total",
		Help: "Items processed per billing scan by scan name and outcome.",
	}, []string{"scan", "outcome"})
)
