// Package fingerprint talks to the optional local hardware agent and derives
// the device hash sent with device-bound logins. The agent not running is a
// normal condition, not an error; login proceeds without a fingerprint.
package fingerprint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/edusso/sso-proxy/pkg/config"
)

// Components are the hardware identifiers reported by the local agent.
// Field tags match the agent's wire format, which the backend shares.
type Components struct {
	SystemUUID      string `json:"uuid_sistema"`
	CPUSerial       string `json:"numero_serie_cpu"`
	DiskSerial      string `json:"numero_serie_disco"`
	BaseboardSerial string `json:"baseboard_serial"`
	BiosSerial      string `json:"bios_serial"`
	MacAddress      string `json:"mac_address"`
	Hostname        string `json:"nombre_maquina"`
}

// Map renders the components in the shape the login request carries them
func (c Components) Map() map[string]interface{} {
	data, _ := json.Marshal(c)
	var m map[string]interface{}
	_ = json.Unmarshal(data, &m)
	return m
}

// Fingerprint is a collected device identity: the raw components plus the
// hash the backend keys device records on. The hash is computed by the
// agent and carried verbatim; the proxy never derives its own.
type Fingerprint struct {
	Hash       string
	Components Components
}

// agentStatus is the agent's /status response envelope. Both fields must be
// present for the answer to count as a fingerprint.
type agentStatus struct {
	Hash       string      `json:"hash"`
	Components *Components `json:"componentes"`
}

// Hash is the reference derivation the agent applies to its component
// values. The order of fields is part of the contract and must not change.
func Hash(c Components) string {
	combined := fmt.Sprintf("%s|%s|%s|%s|%s|%s|%s",
		c.SystemUUID,
		c.CPUSerial,
		c.DiskSerial,
		c.BaseboardSerial,
		c.BiosSerial,
		c.MacAddress,
		c.Hostname,
	)
	sum := sha256.Sum256([]byte(combined))
	return hex.EncodeToString(sum[:])
}

// Collector probes the local agent for hardware components
type Collector struct {
	url    string
	client *http.Client
}

// Option configures a Collector
type Option func(*Collector)

// WithHTTPClient replaces the probe's HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Collector) {
		c.client = hc
	}
}

// NewCollector builds a Collector from agent configuration
func NewCollector(cfg config.AgentConfig, opts ...Option) *Collector {
	c := &Collector{
		url:    cfg.URL,
		client: &http.Client{Timeout: cfg.Timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Collect probes the agent and returns the device fingerprint, or nil when
// the agent is unreachable or answers with something unusable. Collect never
// returns an error; a missing agent must not block login.
func (c *Collector) Collect(ctx context.Context) *Fingerprint {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		slog.Warn("invalid agent URL", "url", c.url, "err", err)
		return nil
	}

	resp, err := c.client.Do(req)
	if err != nil {
		slog.Debug("fingerprint agent not reachable", "url", c.url)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slog.Debug("fingerprint agent returned non-OK status", "status", resp.StatusCode)
		return nil
	}

	var status agentStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		slog.Warn("fingerprint agent returned unexpected body", "err", err)
		return nil
	}
	if status.Hash == "" || status.Components == nil {
		slog.Debug("fingerprint agent answered without a usable fingerprint")
		return nil
	}

	return &Fingerprint{
		Hash:       status.Hash,
		Components: *status.Components,
	}
}
