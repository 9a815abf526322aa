package excel

import (
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"gofactor/domain/core"
	"gofactor/domain/factorial"
	"gofactor/internal"
)

// DataReader handles reading Excel and CSV files
type DataReader struct {
	filePath string
	fileType string // "xlsx" or "csv"
	sheet    string
	logger   *internal.Logger
}

// NewDataReader creates a new data reader that handles both Excel and CSV files
func NewDataReader(filePath string, logger *internal.Logger) *DataReader {
	ext := strings.ToLower(filepath.Ext(filePath))
	fileType := "xlsx"
	if ext == ".csv" {
		fileType = "csv"
	}
	return &DataReader{filePath: filePath, fileType: fileType, logger: logger.OrDefault().WithComponent("excel")}
}

// WithSheet selects the worksheet of an xlsx file
func (r *DataReader) WithSheet(sheet string) *DataReader {
	r.sheet = sheet
	return r
}

// ReadData reads data from Excel or CSV files into structured format
func (r *DataReader) ReadData() (*ExcelData, error) {
	r.logger.Debug("reading %s file: %s", r.fileType, r.filePath)

	// Check if file exists
	if _, err := os.Stat(r.filePath); os.IsNotExist(err) {
		return nil, core.NewMalformedDataError("%s file not found: %s", strings.ToUpper(r.fileType), r.filePath)
	}

	switch r.fileType {
	case "csv":
		return r.readCSVData()
	case "xlsx":
		return r.readExcelData()
	default:
		return nil, fmt.Errorf("unsupported file type: %s", r.fileType)
	}
}

// readExcelData reads the selected sheet, or the first one
func (r *DataReader) readExcelData() (*ExcelData, error) {
	startTime := time.Now()
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheet := r.sheet
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	r.logger.Debug("sheet %s read in %.2fms (%d rows)", sheet, float64(time.Since(startTime).Nanoseconds())/1e6, len(rows))

	if len(rows) < 2 {
		return nil, core.NewMalformedDataError("Excel file must have at least a header row and one data row")
	}

	return r.processRows(rows)
}

// readCSVData reads CSV data into structured format
func (r *DataReader) readCSVData() (*ExcelData, error) {
	file, err := os.Open(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, core.NewMalformedDataError("failed to read CSV file: %v", err)
	}

	if len(rows) < 2 {
		return nil, core.NewMalformedDataError("CSV file must have at least a header row and one data row")
	}

	return r.processRows(rows)
}

// processRows converts raw string rows into ExcelData format. Blank rows are
// dropped.
func (r *DataReader) processRows(rows [][]string) (*ExcelData, error) {
	headerRow := rows[0]
	headers := make([]string, len(headerRow))
	for i, header := range headerRow {
		headers[i] = strings.TrimSpace(header)
	}

	var dataRows []RawRowData
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		rowData := make(RawRowData)
		blank := true

		for j, cell := range row {
			if j < len(headers) {
				rowData[headers[j]] = strings.TrimSpace(cell)
				if rowData[headers[j]] != "" {
					blank = false
				}
			}
		}

		if !blank {
			dataRows = append(dataRows, rowData)
		}
	}

	r.logger.Debug("%s file processed (%d columns, %d rows)", strings.ToUpper(r.fileType), len(headers), len(dataRows))

	return &ExcelData{
		Headers: headers,
		Rows:    dataRows,
	}, nil
}

// Reader implements ports.DatasetReader for csv and xlsx files
type Reader struct {
	schema Schema
	logger *internal.Logger
}

// NewReader creates a dataset reader for a schema
func NewReader(schema Schema, logger *internal.Logger) *Reader {
	return &Reader{schema: schema, logger: logger.OrDefault().WithComponent("excel")}
}

// Read loads a factorial dataset from a file
func (r *Reader) Read(ctx context.Context, path string) (*factorial.Dataset, error) {
	if err := r.schema.Validate(); err != nil {
		return nil, err
	}
	data, err := NewDataReader(path, r.logger).WithSheet(r.schema.Sheet).ReadData()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ds, err := r.Build(data)
	if err != nil {
		return nil, err
	}
	r.logger.Info("loaded %d records over %d factors from %s", len(ds.Records), len(ds.Factors), filepath.Base(path))
	return ds, nil
}

// Build maps raw rows onto records. Factor levels are kept in order of first
// appearance.
func (r *Reader) Build(data *ExcelData) (*factorial.Dataset, error) {
	s := r.schema
	required := append([]string(nil), s.FactorColumns...)
	for _, c := range []string{s.OutcomeColumn, s.BaselineColumn, s.CostColumn} {
		if c != "" {
			required = append(required, c)
		}
	}
	attrCols := s.attributionColumns(data.Headers)
	if s.HasAttribution() && len(attrCols) == 0 {
		return nil, core.NewMalformedDataError("no attribution columns match prefix %q", s.AttributionPrefix)
	}
	required = append(required, attrCols...)
	for _, c := range required {
		if !data.HasColumn(c) {
			return nil, core.NewMalformedDataError("missing column %q", c)
		}
	}

	ds := &factorial.Dataset{Factors: make([]factorial.Factor, len(s.FactorColumns))}
	seen := make([]map[string]bool, len(s.FactorColumns))
	for fi, name := range s.FactorColumns {
		ds.Factors[fi].Name = name
		seen[fi] = make(map[string]bool)
	}

	for i, row := range data.Rows {
		line := i + 2 // header is line 1
		rec := factorial.Record{Levels: make([]string, len(s.FactorColumns))}
		for fi, col := range s.FactorColumns {
			level := row[col]
			if level == "" {
				return nil, core.NewMalformedDataError("row %d: empty level for factor %q", line, col)
			}
			rec.Levels[fi] = level
			if !seen[fi][level] {
				seen[fi][level] = true
				ds.Factors[fi].Levels = append(ds.Factors[fi].Levels, level)
			}
		}

		if s.BaselineColumn != "" {
			v, err := parseNumber(row, s.BaselineColumn, line)
			if err != nil {
				return nil, err
			}
			rec.Baseline = v
		}
		if len(attrCols) > 0 {
			rec.Attribution = make([]float64, len(attrCols))
			for k, col := range attrCols {
				v, err := parseNumber(row, col, line)
				if err != nil {
					return nil, err
				}
				rec.Attribution[k] = v
			}
		}

		if s.OutcomeColumn != "" {
			v, err := parseNumber(row, s.OutcomeColumn, line)
			if err != nil {
				return nil, err
			}
			rec.Outcome = v
		} else {
			rec.Outcome = rec.AttributionTotal()
		}

		if s.CostColumn != "" && row[s.CostColumn] != "" {
			v, err := parseNumber(row, s.CostColumn, line)
			if err != nil {
				return nil, err
			}
			rec.Cost = &v
		}

		ds.Records = append(ds.Records, rec)
	}

	if err := ds.Validate(len(attrCols) > 0); err != nil {
		return nil, err
	}
	return ds, nil
}

// ReadCostTable reads a standalone cost file keyed by factor columns. Repeated
// combinations are averaged.
func ReadCostTable(path string, factorColumns []string, costColumn string, logger *internal.Logger) (factorial.CostTable, error) {
	data, err := NewDataReader(path, logger).ReadData()
	if err != nil {
		return nil, err
	}
	for _, c := range append(append([]string(nil), factorColumns...), costColumn) {
		if !data.HasColumn(c) {
			return nil, core.NewMalformedDataError("cost file: missing column %q", c)
		}
	}

	sums := make(map[string]float64)
	counts := make(map[string]int)
	for i, row := range data.Rows {
		levels := make(factorial.Combination, len(factorColumns))
		for fi, col := range factorColumns {
			levels[fi] = row[col]
		}
		v, err := parseNumber(row, costColumn, i+2)
		if err != nil {
			return nil, err
		}
		sums[levels.Key()] += v
		counts[levels.Key()]++
	}

	costs := make(factorial.CostTable, len(sums))
	for k, s := range sums {
		costs[k] = s / float64(counts[k])
	}
	return costs, nil
}

func parseNumber(row RawRowData, col string, line int) (float64, error) {
	raw := row[col]
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, core.NewMalformedDataError("row %d column %q: %q is not a finite number", line, col, raw)
	}
	return v, nil
}
