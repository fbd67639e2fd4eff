package output

import (
	"strings"

	"github.com/hookgate/hookgate/internal/core"
)

// MarkdownFormatter renders integrations as a markdown table.
type MarkdownFormatter struct{}

func (f *MarkdownFormatter) FormatIntegrations(integrations []core.Integration) (string, error) {
	var sb strings.Builder
	sb.WriteString("## Integrations\n\n")
	sb.WriteString(integrationTable(integrations).RenderMarkdown())
	sb.WriteString("\n")
	return sb.String(), nil
}
