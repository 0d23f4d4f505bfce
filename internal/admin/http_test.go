package admin

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-pos-hostswitch/internal/hostswitch"
)

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	rec := get(t, Router(NewState(), zerolog.Nop()), "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestLinks(t *testing.T) {
	st := NewState()
	st.LinkChanged("diners", true, nil)
	st.LinkChanged("diners", false, errors.New("connection reset"))
	st.LinkChanged("amex", true, nil)
	h := Router(st, zerolog.Nop())

	var links []LinkStat
	require.NoError(t, json.Unmarshal(get(t, h, "/links").Body.Bytes(), &links))
	require.Len(t, links, 2)
	assert.Equal(t, "amex", links[0].Host)
	assert.True(t, links[0].Up)
	assert.Equal(t, uint64(1), links[1].Drops)
	assert.Equal(t, "connection reset", links[1].LastError)

	assert.Equal(t, http.StatusOK, get(t, h, "/links/amex").Code)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/links/visa").Code)
}

func TestCountersAndMetrics(t *testing.T) {
	st := NewState()
	st.Observe(hostswitch.Event{Operation: "sale", HostIndex: 3, Protocol: hostswitch.ProtocolDiners, Bound: true, Status: hostswitch.Completed, Duration: time.Second})
	st.Observe(hostswitch.Event{Operation: "sale", HostIndex: 3, Protocol: hostswitch.ProtocolDiners, Bound: true, Status: hostswitch.TransientFailure})
	st.Observe(hostswitch.Event{Operation: "sale", Status: hostswitch.PermFailure})

	counters := st.Counters()
	require.Len(t, counters, 2)
	assert.Equal(t, uint64(1), counters[0].Unbound)
	assert.Equal(t, "diners", counters[1].Protocol)
	assert.Equal(t, uint64(1), counters[1].Completed)
	assert.Equal(t, uint64(1), counters[1].Transient)
	assert.Equal(t, time.Second, counters[1].Busy)

	st.LinkChanged("diners", true, nil)
	body := get(t, Router(st, zerolog.Nop()), "/metrics").Body.String()
	assert.Contains(t, body, `terminal_link_up{host="diners"} 1`)
	assert.Contains(t, body, `terminal_operations_total{operation="sale",host_index="3",status="completed"} 1`)
	assert.Contains(t, body, `terminal_operations_total{operation="sale",host_index="0",status="unbound"} 1`)
}
