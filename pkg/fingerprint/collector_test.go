package fingerprint

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edusso/sso-proxy/pkg/config"
)

func TestHash_Deterministic(t *testing.T) {
	c := Components{
		SystemUUID: "uuid-1",
		CPUSerial:  "cpu-1",
		Hostname:   "WS-01",
	}
	first := Hash(c)
	second := Hash(c)
	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
}

func TestHash_SensitiveToEveryComponent(t *testing.T) {
	base := Components{SystemUUID: "uuid-1", CPUSerial: "cpu-1", Hostname: "WS-01"}
	changed := base
	changed.MacAddress = "00:11:22:33:44:55"
	assert.NotEqual(t, Hash(base), Hash(changed))
}

func TestCollect_AgentRunning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"hash":"agent-hash-1","componentes":{"uuid_sistema":"uuid-1","numero_serie_cpu":"cpu-1","nombre_maquina":"WS-01","mac_address":"00:11:22:33:44:55"}}`))
	}))
	defer srv.Close()

	collector := NewCollector(config.AgentConfig{URL: srv.URL, Timeout: time.Second})
	fp := collector.Collect(context.Background())
	require.NotNil(t, fp)
	assert.Equal(t, "agent-hash-1", fp.Hash)
	assert.Equal(t, "uuid-1", fp.Components.SystemUUID)

	m := fp.Components.Map()
	assert.Equal(t, "WS-01", m["nombre_maquina"])
}

func TestCollect_MissingHashOrComponents(t *testing.T) {
	bodies := []string{
		`{"componentes":{"uuid_sistema":"uuid-1"}}`,
		`{"hash":"agent-hash-1"}`,
		`{}`,
	}
	for _, body := range bodies {
		body := body
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(body))
		}))
		collector := NewCollector(config.AgentConfig{URL: srv.URL, Timeout: time.Second})
		assert.Nil(t, collector.Collect(context.Background()), "body %s", body)
		srv.Close()
	}
}

func TestCollect_AgentAbsent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	collector := NewCollector(config.AgentConfig{URL: srv.URL, Timeout: time.Second})
	assert.Nil(t, collector.Collect(context.Background()))
}

func TestCollect_BadBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	collector := NewCollector(config.AgentConfig{URL: srv.URL, Timeout: time.Second})
	assert.Nil(t, collector.Collect(context.Background()))
}

func TestCollect_RespectsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	collector := NewCollector(config.AgentConfig{URL: srv.URL, Timeout: 10 * time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.Nil(t, collector.Collect(ctx))
}
