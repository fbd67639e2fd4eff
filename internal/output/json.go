package output

import (
	"github.com/hookgate/hookgate/internal/core"
	"github.com/hookgate/hookgate/internal/jsoncodec"
)

// JSONFormatter renders integrations as JSON.
type JSONFormatter struct {
	Indent bool
}

func (f *JSONFormatter) FormatIntegrations(integrations []core.Integration) (string, error) {
	var (
		data []byte
		err  error
	)

	views := Views(integrations)
	if f.Indent {
		data, err = jsoncodec.MarshalIndent(views, "", "  ")
	} else {
		data, err = jsoncodec.Marshal(views)
	}
	if err != nil {
		return "", err
	}

	return string(data), nil
}
