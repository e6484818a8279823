package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(budgetDenials, budgetSpentUnits, budgetRemainingUnits) }

var (
	budgetDenials = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "budget_reservations_denied_total",
			Help: "Reservations refused because a spend window was full.",
		},
	)

	budgetSpentUnits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "budget_spent_units_total",
			Help: "Units charged to the budget ledger.",
		},
		[]string{"path"}, // reserve | record
	)

	budgetRemainingUnits = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "budget_remaining_units",
			Help: "Remaining units per budget window at last snapshot.",
		},
		[]string{"window"},
	)
)

func IncBudgetDenied() { budgetDenials.Inc() }

func AddBudgetSpend(path string, units int64) {
	budgetSpentUnits.WithLabelValues(norm(path)).Add(float64(units))
}

func SetBudgetRemaining(window string, units int64) {
	budgetRemainingUnits.WithLabelValues(norm(window)).Set(float64(units))
}
