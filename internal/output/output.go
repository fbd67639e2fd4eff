// Package output renders integration listings for the CLI.
package output

import (
	"fmt"
	"strings"

	"github.com/hookgate/hookgate/internal/core"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// Formatter renders stored integrations.
type Formatter interface {
	FormatIntegrations(integrations []core.Integration) (string, error)
}

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatMarkdown), "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// NewFormatter returns a formatter for the requested format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatMarkdown:
		return &MarkdownFormatter{}
	default:
		return &TableFormatter{}
	}
}

// Extension is the file extension used when writing format to a directory.
func Extension(format Format) string {
	switch format {
	case FormatJSON:
		return "json"
	case FormatMarkdown:
		return "md"
	default:
		return "txt"
	}
}

// View is the listing row of one integration. Secrets are reduced to flags.
type View struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Type      string `json:"type"`
	ServiceID string `json:"service_id"`
	Enabled   bool   `json:"enabled"`
	Signed    bool   `json:"signed"`
	Path      string `json:"path"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// Views converts integrations into listing rows.
func Views(integrations []core.Integration) []View {
	views := make([]View, 0, len(integrations))
	for i := range integrations {
		in := &integrations[i]
		v := View{
			ID:        in.ID,
			Name:      in.Name,
			Type:      string(in.Type),
			ServiceID: in.ServiceID,
			Enabled:   in.Enabled,
			Signed:    in.HasSignatureSecret(),
			Path:      "/api/integrations/" + string(in.Type) + "?integrationId=" + in.ID,
		}
		if !in.UpdatedAt.IsZero() {
			v.UpdatedAt = in.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z")
		}
		views = append(views, v)
	}
	return views
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
