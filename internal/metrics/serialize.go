package metrics

import "time"

// isoLayout matches the millisecond ISO-8601 form used by API clients.
const isoLayout = "2006-01-02T15:04:05.000Z"

// Serialized is the API representation of one scope.
type Serialized struct {
	TotalReceived    int64   `json:"totalReceived"`
	TotalSuccess     int64   `json:"totalSuccess"`
	TotalErrors      int64   `json:"totalErrors"`
	SuccessRate      float64 `json:"successRate"`
	AverageLatencyMs float64 `json:"averageLatencyMs"`
	LastReceived     *string `json:"lastReceived"`
	LastSuccess      *string `json:"lastSuccess"`
	LastError        *string `json:"lastError"`
}

// SummaryView is the API representation of a Summary.
type SummaryView struct {
	Global       Serialized            `json:"global"`
	ByType       map[string]Serialized `json:"byType"`
	ErrorRate    float64               `json:"errorRate"`
	Health       Health                `json:"health"`
	Integrations int                   `json:"integrations"`
}

// Serialize rounds rates and latency to two decimals and renders timestamps
// as ISO-8601 strings or null.
func Serialize(m IntegrationMetrics) Serialized {
	successRate := 100.0
	if m.TotalReceived > 0 {
		successRate = round2(float64(m.TotalSuccess) * 100 / float64(m.TotalReceived))
	}
	return Serialized{
		TotalReceived:    m.TotalReceived,
		TotalSuccess:     m.TotalSuccess,
		TotalErrors:      m.TotalErrors,
		SuccessRate:      successRate,
		AverageLatencyMs: round2(m.AverageLatencyMs),
		LastReceived:     isoOrNil(m.LastReceived),
		LastSuccess:      isoOrNil(m.LastSuccess),
		LastError:        isoOrNil(m.LastError),
	}
}

// View serializes every scope of the summary.
func (s Summary) View() SummaryView {
	byType := make(map[string]Serialized, len(s.ByType))
	for t, m := range s.ByType {
		byType[t] = Serialize(m)
	}
	return SummaryView{
		Global:       Serialize(s.Global),
		ByType:       byType,
		ErrorRate:    s.ErrorRate,
		Health:       s.Health,
		Integrations: s.Integrations,
	}
}

func isoOrNil(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(isoLayout)
	return &s
}
