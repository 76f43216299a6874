package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rustyeddy/capwatch/account"
)

const namespace = "capwatch"

// Collector mirrors engine snapshots into prometheus gauges and keeps the
// latest snapshot for the /snapshot endpoint.
type Collector struct {
	equity         prometheus.Gauge
	drawdown       prometheus.Gauge
	positionSize   prometheus.Gauge
	availableFunds prometheus.Gauge
	returnPerc     prometheus.Gauge
	aborts         *prometheus.CounterVec

	mu   sync.Mutex
	last *account.Snapshot
}

func gauge(name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	})
}

// NewCollector creates the collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		equity:         gauge("equity", "Equity curve marked at the latest price"),
		drawdown:       gauge("drawdown", "Fractional decline of equity from its peak"),
		positionSize:   gauge("position_size", "Signed open position size"),
		availableFunds: gauge("available_funds", "Funds not committed to the open position"),
		returnPerc:     gauge("return_perc", "Return as a fraction of the allocation"),
		aborts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "aborts_total",
				Help:      "Run aborts by exit mode",
			},
			[]string{"mode"},
		),
	}

	for _, m := range []prometheus.Collector{
		c.equity, c.drawdown, c.positionSize, c.availableFunds, c.returnPerc, c.aborts,
	} {
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Collector) OnUpdate(s account.Snapshot) {
	c.equity.Set(s.EquityCurve.InexactFloat64())
	c.drawdown.Set(s.Drawdown.InexactFloat64())
	c.positionSize.Set(s.PositionSize.InexactFloat64())
	c.availableFunds.Set(s.AvailableFunds.InexactFloat64())
	c.returnPerc.Set(s.ReturnPerc.InexactFloat64())

	c.mu.Lock()
	c.last = &s
	c.mu.Unlock()
}

func (c *Collector) RecordAbort(mode string) {
	c.aborts.WithLabelValues(mode).Inc()
}

// Last returns the most recent snapshot seen by the collector.
func (c *Collector) Last() (account.Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return account.Snapshot{}, false
	}
	return *c.last, true
}
