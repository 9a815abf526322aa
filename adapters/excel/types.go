package excel

// RawRowData represents a row of raw tabular data as string key-value pairs
type RawRowData map[string]string

// ExcelData represents the complete tabular dataset
type ExcelData struct {
	Headers []string     // Column headers
	Rows    []RawRowData // Data rows
}

// HasColumn reports whether a header is present
func (d *ExcelData) HasColumn(name string) bool {
	for _, h := range d.Headers {
		if h == name {
			return true
		}
	}
	return false
}
