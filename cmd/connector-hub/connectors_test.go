package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/open-sspm/connector-hub/internal/config"
	"github.com/open-sspm/connector-hub/internal/connectors/registry"
)

func TestBuildConnectorRegistry(t *testing.T) {
	t.Parallel()

	cfg := config.Config{
		DatadogSite: "datadoghq.eu",
		OAuthClients: map[string]config.OAuthClient{
			"slack":  {ClientID: "slack-id", ClientSecret: "slack-secret"},
			"notion": {ClientID: "notion-id"},
		},
	}
	reg, err := buildConnectorRegistry(cfg, http.DefaultClient)
	if err != nil {
		t.Fatalf("buildConnectorRegistry() error = %v", err)
	}

	byKey := map[string]registry.Availability{}
	for _, a := range reg.Availability() {
		byKey[a.Key] = a
	}
	for _, key := range []string{"jira", "confluence", "slack", "notion", "figma", "datadog"} {
		if _, ok := byKey[key]; !ok {
			t.Fatalf("connector %q missing from catalogue", key)
		}
	}

	if !byKey["slack"].Usable() {
		t.Fatalf("slack = %+v, want usable", byKey["slack"])
	}
	if _, _, err := reg.Get("slack"); err != nil {
		t.Fatalf("Get(slack) error = %v", err)
	}
	if byKey["notion"].Configured {
		t.Fatalf("notion without a secret should be unconfigured: %+v", byKey["notion"])
	}
	if _, _, err := reg.Get("jira"); err == nil {
		t.Fatal("Get(jira) should fail without client credentials")
	}
	if got := byKey["figma"].Requirements; len(got) != 2 || got[0] != "FIGMA_CLIENT_ID" || got[1] != "FIGMA_CLIENT_SECRET" {
		t.Fatalf("figma requirements = %v", got)
	}
}

func TestBuildConnectorRegistryHonorsEnabledList(t *testing.T) {
	t.Parallel()

	cfg := config.Config{
		ConnectorsEnabled: []string{"figma"},
		OAuthClients: map[string]config.OAuthClient{
			"slack": {ClientID: "id", ClientSecret: "secret"},
			"figma": {ClientID: "id", ClientSecret: "secret"},
		},
	}
	reg, err := buildConnectorRegistry(cfg, http.DefaultClient)
	if err != nil {
		t.Fatalf("buildConnectorRegistry() error = %v", err)
	}
	if _, _, err := reg.Get("slack"); err == nil {
		t.Fatal("slack should be disabled when not listed")
	}
	if _, _, err := reg.Get("figma"); err != nil {
		t.Fatalf("Get(figma) error = %v", err)
	}
}

func TestWriteConnectors(t *testing.T) {
	t.Parallel()

	items := []registry.Availability{
		{Key: "slack", Name: "Slack", Scopes: []string{"users:read", "team:read"}, SupportsOAuth: true, Configured: true, Enabled: true},
		{Key: "figma", Name: "Figma", Scopes: []string{"file_read"}, SupportsOAuth: true},
	}

	var table bytes.Buffer
	if err := writeConnectorsTable(&table, items); err != nil {
		t.Fatalf("writeConnectorsTable() error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(table.String()), "\n")
	if len(lines) != 3 || !strings.HasPrefix(lines[0], "KEY") {
		t.Fatalf("table = %q", table.String())
	}
	if !strings.Contains(lines[1], "Enabled") || !strings.Contains(lines[2], "Not configured") {
		t.Fatalf("table rows = %q", lines[1:])
	}

	var raw bytes.Buffer
	if err := writeConnectorsJSON(&raw, items); err != nil {
		t.Fatalf("writeConnectorsJSON() error = %v", err)
	}
	var decoded []registry.Availability
	if err := json.Unmarshal(raw.Bytes(), &decoded); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if len(decoded) != 2 || decoded[0].Key != "slack" {
		t.Fatalf("decoded = %+v", decoded)
	}
}
