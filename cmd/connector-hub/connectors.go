package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/open-sspm/connector-hub/internal/config"
	"github.com/open-sspm/connector-hub/internal/connectors/atlassian"
	"github.com/open-sspm/connector-hub/internal/connectors/datadog"
	"github.com/open-sspm/connector-hub/internal/connectors/figma"
	"github.com/open-sspm/connector-hub/internal/connectors/notion"
	"github.com/open-sspm/connector-hub/internal/connectors/registry"
	"github.com/open-sspm/connector-hub/internal/connectors/slack"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// connectorFactory pairs a connector's definition with the constructor of its
// plugin. build is only called when client credentials are present.
type connectorFactory struct {
	definition func(cfg config.Config) registry.Definition
	build      func(cfg config.Config, client config.OAuthClient, hc *http.Client) (registry.Plugin, error)
}

var connectorFactories = []connectorFactory{
	{
		definition: func(config.Config) registry.Definition { return atlassian.Jira.Definition() },
		build: func(_ config.Config, c config.OAuthClient, hc *http.Client) (registry.Plugin, error) {
			return atlassian.New(atlassian.Jira, c.ClientID, c.ClientSecret, hc)
		},
	},
	{
		definition: func(config.Config) registry.Definition { return atlassian.Confluence.Definition() },
		build: func(_ config.Config, c config.OAuthClient, hc *http.Client) (registry.Plugin, error) {
			return atlassian.New(atlassian.Confluence, c.ClientID, c.ClientSecret, hc)
		},
	},
	{
		definition: func(config.Config) registry.Definition { return slack.Definition() },
		build: func(_ config.Config, c config.OAuthClient, hc *http.Client) (registry.Plugin, error) {
			return slack.New(c.ClientID, c.ClientSecret, hc)
		},
	},
	{
		definition: func(config.Config) registry.Definition { return notion.Definition() },
		build: func(_ config.Config, c config.OAuthClient, hc *http.Client) (registry.Plugin, error) {
			return notion.New(c.ClientID, c.ClientSecret, hc)
		},
	},
	{
		definition: func(config.Config) registry.Definition { return figma.Definition() },
		build: func(_ config.Config, c config.OAuthClient, hc *http.Client) (registry.Plugin, error) {
			return figma.New(c.ClientID, c.ClientSecret, hc)
		},
	},
	{
		definition: func(cfg config.Config) registry.Definition { return datadog.Definition(cfg.DatadogSite) },
		build: func(cfg config.Config, c config.OAuthClient, hc *http.Client) (registry.Plugin, error) {
			return datadog.NewPlugin(c.ClientID, c.ClientSecret, cfg.DatadogSite, hc)
		},
	},
}

// buildConnectorRegistry registers every built-in connector. Connectors
// without client credentials stay in the catalogue as unconfigured.
func buildConnectorRegistry(cfg config.Config, hc *http.Client) (*registry.ConnectorRegistry, error) {
	reg := registry.NewRegistry()
	for _, f := range connectorFactories {
		def := f.definition(cfg)
		client := cfg.OAuthClient(def.Key)
		prefix := strings.ToUpper(def.Key)
		def.Requirements = []string{prefix + "_CLIENT_ID", prefix + "_CLIENT_SECRET"}
		def.Configured = client.Configured()
		def.Enabled = cfg.ConnectorEnabled(def.Key)

		var plugin registry.Plugin
		if def.Configured {
			p, err := f.build(cfg, client, hc)
			if err != nil {
				return nil, fmt.Errorf("build %s connector: %w", def.Key, err)
			}
			plugin = p
		}
		if err := reg.Register(def, plugin); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

var connectorsJSON bool

var connectorsCmd = &cobra.Command{
	Use:         "connectors",
	Short:       "List the connector catalogue and whether each connector is usable.",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{annotationPlainOutput: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadOptionalDB()
		if err != nil {
			return err
		}
		reg, err := buildConnectorRegistry(cfg, http.DefaultClient)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		asJSON := connectorsJSON
		if f, ok := out.(*os.File); ok && !term.IsTerminal(int(f.Fd())) {
			asJSON = true
		}
		if asJSON {
			return writeConnectorsJSON(out, reg.Availability())
		}
		return writeConnectorsTable(out, reg.Availability())
	},
}

func init() {
	connectorsCmd.Flags().BoolVar(&connectorsJSON, "json", false, "print the catalogue as JSON")
}

func writeConnectorsJSON(w io.Writer, items []registry.Availability) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(items)
}

func writeConnectorsTable(w io.Writer, items []registry.Availability) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tNAME\tSTATUS\tSCOPES")
	for _, a := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", a.Key, a.Name, a.StatusLabel(), strings.Join(a.Scopes, ","))
	}
	return tw.Flush()
}
