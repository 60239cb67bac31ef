package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// BillsOpenedTotal counts bills opened.
	BillsOpenedTotal prometheus.Counter
	// BillsClosedTotal counts bills that reached CLOSED.
	BillsClosedTotal prometheus.Counter
	// PairsFormedTotal counts promotional pairs formed by scans.
	PairsFormedTotal prometheus.Counter
	// LinesVoidedTotal counts voided bill lines.
	LinesVoidedTotal prometheus.Counter
	// MutationConflictsTotal counts lost version races by operation.
	MutationConflictsTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		BillsOpenedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bills_opened_total",
			Help:      "Total number of bills opened.",
		})
		BillsClosedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bills_closed_total",
			Help:      "Total number of bills closed.",
		})
		PairsFormedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pairs_formed_total",
			Help:      "Total number of promotional pairs formed.",
		})
		LinesVoidedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_voided_total",
			Help:      "Total number of bill lines voided.",
		})
		MutationConflictsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutation_conflicts_total",
			Help:      "Count of bill mutations retried after losing a version race.",
		}, []string{"operation"})

		mustRegisterCollector(reg, BillsOpenedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				BillsOpenedTotal = v
			}
		})
		mustRegisterCollector(reg, BillsClosedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				BillsClosedTotal = v
			}
		})
		mustRegisterCollector(reg, PairsFormedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				PairsFormedTotal = v
			}
		})
		mustRegisterCollector(reg, LinesVoidedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				LinesVoidedTotal = v
			}
		})
		mustRegisterCollector(reg, MutationConflictsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				MutationConflictsTotal = v
			}
		})
	})
}

// IncBillOpened bumps the opened counter when metrics are registered.
func IncBillOpened() {
	if BillsOpenedTotal != nil {
		BillsOpenedTotal.Inc()
	}
}

// IncBillClosed bumps the closed counter when metrics are registered.
func IncBillClosed() {
	if BillsClosedTotal != nil {
		BillsClosedTotal.Inc()
	}
}

// IncPairFormed bumps the pair counter when metrics are registered.
func IncPairFormed() {
	if PairsFormedTotal != nil {
		PairsFormedTotal.Inc()
	}
}

// IncLineVoided bumps the void counter when metrics are registered.
func IncLineVoided() {
	if LinesVoidedTotal != nil {
		LinesVoidedTotal.Inc()
	}
}

// IncMutationConflict records a lost version race for the given operation.
func IncMutationConflict(operation string) {
	if MutationConflictsTotal != nil {
		MutationConflictsTotal.WithLabelValues(operation).Inc()
	}
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
