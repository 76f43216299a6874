package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/capwatch/account"
)

func newCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)
	return c, reg
}

// value gathers reg and returns the sample of name whose labels match.
func value(t *testing.T, reg *prometheus.Registry, name string, labels ...string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if !hasLabels(m, labels) {
				continue
			}
			if m.GetGauge() != nil {
				return m.GetGauge().GetValue()
			}
			return m.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s%v not found", name, labels)
	return 0
}

func hasLabels(m *dto.Metric, kv []string) bool {
	for i := 0; i+1 < len(kv); i += 2 {
		found := false
		for _, lp := range m.GetLabel() {
			if lp.GetName() == kv[i] && lp.GetValue() == kv[i+1] {
				found = true
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func TestCollectorTracksSnapshot(t *testing.T) {
	c, reg := newCollector(t)
	_, ok := c.Last()
	assert.False(t, ok)

	c.OnUpdate(account.Snapshot{
		EquityCurve:    decimal.NewFromInt(1050),
		Drawdown:       decimal.RequireFromString("0.02"),
		PositionSize:   decimal.NewFromInt(-3),
		AvailableFunds: decimal.NewFromInt(500),
		ReturnPerc:     decimal.RequireFromString("0.05"),
	})

	assert.InDelta(t, 1050, value(t, reg, "capwatch_equity"), 1e-9)
	assert.InDelta(t, 0.02, value(t, reg, "capwatch_drawdown"), 1e-9)
	assert.InDelta(t, -3, value(t, reg, "capwatch_position_size"), 1e-9)
	assert.InDelta(t, 500, value(t, reg, "capwatch_available_funds"), 1e-9)
	assert.InDelta(t, 0.05, value(t, reg, "capwatch_return_perc"), 1e-9)

	last, ok := c.Last()
	require.True(t, ok)
	assert.Equal(t, "1050", last.EquityCurve.String())
}

func TestRecordAbort(t *testing.T) {
	c, reg := newCollector(t)
	c.RecordAbort("CLOSE_AT_MARKET")
	c.RecordAbort("CLOSE_AT_MARKET")
	c.RecordAbort("LIQUIDATION")

	assert.InDelta(t, 2, value(t, reg, "capwatch_aborts_total", "mode", "CLOSE_AT_MARKET"), 1e-9)
	assert.InDelta(t, 1, value(t, reg, "capwatch_aborts_total", "mode", "LIQUIDATION"), 1e-9)
}

func TestNewCollectorRejectsDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewCollector(reg)
	require.NoError(t, err)
	_, err = NewCollector(reg)
	assert.Error(t, err)
}

func TestServerRoutes(t *testing.T) {
	c, reg := newCollector(t)
	l, _ := test.NewNullLogger()
	srv := NewServer(":0", reg, c, logrus.NewEntry(l))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/snapshot", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	c.OnUpdate(account.Snapshot{EquityCurve: decimal.NewFromInt(990), HasPrice: true})

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/snapshot", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"equity":"990"`)
	assert.Contains(t, rec.Body.String(), `"has_price":true`)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "capwatch_equity 990")
}
