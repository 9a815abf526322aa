package excel

import (
	"strings"

	"gofactor/domain/core"
)

// Schema maps tabular columns onto factorial records
type Schema struct {
	FactorColumns      []string `json:"factor_columns"`
	OutcomeColumn      string   `json:"outcome_column,omitempty"`
	AttributionColumns []string `json:"attribution_columns,omitempty"`
	AttributionPrefix  string   `json:"attribution_prefix,omitempty"` // Used when AttributionColumns is empty
	BaselineColumn     string   `json:"baseline_column,omitempty"`
	CostColumn         string   `json:"cost_column,omitempty"`
	Sheet              string   `json:"sheet,omitempty"` // xlsx only; first sheet when empty
}

// HasAttribution reports whether the schema reads attribution vectors
func (s Schema) HasAttribution() bool {
	return len(s.AttributionColumns) > 0 || s.AttributionPrefix != ""
}

// Validate checks the schema before any file is read
func (s Schema) Validate() error {
	if len(s.FactorColumns) < 2 {
		return core.NewConfigurationError("schema.factor_columns", "need at least 2 factor columns")
	}
	seen := make(map[string]bool)
	for _, c := range s.FactorColumns {
		c = strings.TrimSpace(c)
		if c == "" {
			return core.NewConfigurationError("schema.factor_columns", "empty column name")
		}
		if seen[c] {
			return core.NewConfigurationError("schema.factor_columns", "duplicate column "+c)
		}
		seen[c] = true
	}
	if s.OutcomeColumn == "" && !s.HasAttribution() {
		return core.NewConfigurationError("schema.outcome_column", "an outcome column or attribution columns are required")
	}
	return nil
}

// attributionColumns resolves the attribution columns against the headers
func (s Schema) attributionColumns(headers []string) []string {
	if len(s.AttributionColumns) > 0 {
		return s.AttributionColumns
	}
	if s.AttributionPrefix == "" {
		return nil
	}
	var cols []string
	for _, h := range headers {
		if strings.HasPrefix(h, s.AttributionPrefix) {
			cols = append(cols, h)
		}
	}
	return cols
}
