package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAndHandler(t *testing.T) {
	m := New()
	m.Swaps.WithLabelValues("sol", Outcome(nil)).Inc()
	m.Swaps.WithLabelValues("sol", Outcome(errors.New("x"))).Inc()
	m.QuotaDenials.Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Swaps.WithLabelValues("sol", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Swaps.WithLabelValues("sol", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QuotaDenials))

	srv := NewServer(":0", m)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "airdrop_bot_quota_denials_total 1")
}
