package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/hookgate/hookgate/internal/core"
	"github.com/hookgate/hookgate/internal/core/events"
	"github.com/hookgate/hookgate/internal/integrations"
	"github.com/hookgate/hookgate/internal/observability"
	"github.com/hookgate/hookgate/internal/output"
)

var integrationCmd = &cobra.Command{
	Use:   "integration",
	Short: "Manage webhook integrations",
}

var integrationAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create or update an integration",
	Long: `Create or update an integration in the store.

An id and key are generated when omitted. The key is printed once; senders
present it as a Bearer token or in the x-integration-key header.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		integration, err := integrationFromFlags(cmd)
		if err != nil {
			return err
		}

		db, err := openStore(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		if err := db.UpsertIntegration(cmd.Context(), integration); err != nil {
			return err
		}

		observability.CLILogger.Info("Integration saved",
			zap.String("id", integration.ID),
			zap.String("type", string(integration.Type)))

		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(out, "id:   %s\n", integration.ID)
		_, _ = fmt.Fprintf(out, "type: %s\n", integration.Type)
		_, _ = fmt.Fprintf(out, "path: /api/integrations/%s?integrationId=%s\n", integration.Type, integration.ID)
		_, _ = fmt.Fprintf(out, "key:  %s\n", integration.Key)
		return nil
	},
}

var integrationListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured integrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}
		outPath, err := cmd.Flags().GetString("out")
		if err != nil {
			return err
		}

		db, err := openStore(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		list, err := db.ListIntegrations(cmd.Context())
		if err != nil {
			return err
		}

		rendered, err := output.NewFormatter(format).FormatIntegrations(list)
		if err != nil {
			return err
		}

		sink, err := openSink(cmd, outPath, format)
		if err != nil {
			return err
		}
		defer sink.close() // nolint:errcheck // best-effort cleanup

		if _, err := io.WriteString(sink.writer, rendered); err != nil {
			return err
		}
		if !strings.HasSuffix(rendered, "\n") {
			_, _ = io.WriteString(sink.writer, "\n")
		}
		if sink.path != "-" {
			observability.CLILogger.Info("Integration list written", zap.String("path", sink.path))
		}
		return nil
	},
}

var integrationRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Delete an integration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		deleted, err := db.DeleteIntegration(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !deleted {
			return fmt.Errorf("integration %q not found", args[0])
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
		return err
	},
}

var integrationImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Upsert integrations from a YAML file",
	Long: `Upsert integrations from a YAML file of the form:

  integrations:
    - id: gh-main
      type: github
      service_id: svc-platform
      key: <api key>
      signature_secret: <webhook secret>
      enabled: true     # optional, defaults to true`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer file.Close() // nolint:errcheck // read-only

		list, err := parseIntegrationFile(file)
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}

		db, err := openStore(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		for i := range list {
			if err := db.UpsertIntegration(cmd.Context(), &list[i]); err != nil {
				return fmt.Errorf("integration %s: %w", list[i].ID, err)
			}
		}

		_, err = fmt.Fprintf(cmd.OutOrStdout(), "imported %d integration(s)\n", len(list))
		return err
	},
}

type integrationFile struct {
	Integrations []integrationEntry `yaml:"integrations"`
}

// integrationEntry is one import row. Enabled defaults to true.
type integrationEntry struct {
	ID              string `yaml:"id"`
	Name            string `yaml:"name"`
	Type            string `yaml:"type"`
	ServiceID       string `yaml:"service_id"`
	Key             string `yaml:"key"`
	SignatureSecret string `yaml:"signature_secret"`
	Enabled         *bool  `yaml:"enabled"`
}

func (e integrationEntry) integration() core.Integration {
	enabled := true
	if e.Enabled != nil {
		enabled = *e.Enabled
	}
	return core.Integration{
		ID:              strings.TrimSpace(e.ID),
		Name:            e.Name,
		Type:            core.IntegrationType(strings.ToLower(strings.TrimSpace(e.Type))),
		ServiceID:       e.ServiceID,
		Key:             e.Key,
		SignatureSecret: e.SignatureSecret,
		Enabled:         enabled,
	}
}

// parseIntegrationFile decodes and validates an import file. Missing ids and
// keys are generated.
func parseIntegrationFile(r io.Reader) ([]core.Integration, error) {
	var doc integrationFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("empty integration file")
		}
		return nil, fmt.Errorf("decode integrations: %w", err)
	}

	list := make([]core.Integration, 0, len(doc.Integrations))
	seen := make(map[string]bool, len(doc.Integrations))
	for i, entry := range doc.Integrations {
		integration := entry.integration()
		if err := validateIntegration(&integration); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i+1, err)
		}
		if seen[integration.ID] {
			return nil, fmt.Errorf("entry %d: duplicate id %q", i+1, integration.ID)
		}
		seen[integration.ID] = true
		list = append(list, integration)
	}
	return list, nil
}

func integrationFromFlags(cmd *cobra.Command) (*core.Integration, error) {
	flags := cmd.Flags()
	id, _ := flags.GetString("id")
	name, _ := flags.GetString("name")
	typ, _ := flags.GetString("type")
	service, _ := flags.GetString("service")
	key, _ := flags.GetString("key")
	secret, _ := flags.GetString("secret")
	disabled, _ := flags.GetBool("disabled")

	integration := &core.Integration{
		ID:              id,
		Name:            name,
		Type:            core.IntegrationType(strings.ToLower(strings.TrimSpace(typ))),
		ServiceID:       service,
		Key:             key,
		SignatureSecret: secret,
		Enabled:         !disabled,
	}
	if err := validateIntegration(integration); err != nil {
		return nil, err
	}
	return integration, nil
}

// validateIntegration checks the type against the route catalog and fills in
// a generated id and key.
func validateIntegration(integration *core.Integration) error {
	if !knownType(integration.Type) {
		return fmt.Errorf("unknown integration type %q (expected one of %s)", integration.Type, strings.Join(knownTypes(), ", "))
	}
	if strings.TrimSpace(integration.ServiceID) == "" {
		return fmt.Errorf("service id is required")
	}
	if integration.ID == "" {
		integration.ID = events.NewID()
	}
	if integration.Key == "" {
		integration.Key = uuid.NewString()
	}
	return nil
}

func knownTypes() []string {
	routes := integrations.Catalog()
	types := make([]string, 0, len(routes))
	for _, route := range routes {
		types = append(types, string(route.Type))
	}
	return types
}

func knownType(t core.IntegrationType) bool {
	for _, name := range knownTypes() {
		if name == string(t) {
			return true
		}
	}
	return false
}

func init() {
	rootCmd.AddCommand(integrationCmd)
	integrationCmd.AddCommand(integrationAddCmd, integrationListCmd, integrationRemoveCmd, integrationImportCmd)

	integrationAddCmd.Flags().String("id", "", "integration id (generated when empty)")
	integrationAddCmd.Flags().String("name", "", "display name")
	integrationAddCmd.Flags().String("type", "", "integration type: "+strings.Join(knownTypes(), ", "))
	integrationAddCmd.Flags().String("service", "", "service id incidents are raised against")
	integrationAddCmd.Flags().String("key", "", "API key (generated when empty)")
	integrationAddCmd.Flags().String("secret", "", "signature secret shared with the provider")
	integrationAddCmd.Flags().Bool("disabled", false, "create the integration disabled")
	_ = integrationAddCmd.MarkFlagRequired("type")
	_ = integrationAddCmd.MarkFlagRequired("service")

	integrationListCmd.Flags().String("output-format", string(output.FormatTable), "output format: table, json, markdown")
	integrationListCmd.Flags().String("out", "", "write output to a file or directory instead of stdout")
}
