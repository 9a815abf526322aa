package excel

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"gofactor/app"
	"gofactor/domain/factorial"
	"gofactor/internal"
)

// Report sheet names, in workbook order
const (
	SheetCellMeans   = "CellMeans"
	SheetEffects     = "Effects"
	SheetMarginals   = "Marginals"
	SheetPCI         = "PCI"
	SheetDiagnostics = "Diagnostics"
	SheetBootstrap   = "Bootstrap"
	SheetScores      = "Scores"
	SheetSelection   = "Selection"
)

// ReportWriter exports an analysis report as an xlsx workbook
type ReportWriter struct {
	logger *internal.Logger
}

func NewReportWriter(logger *internal.Logger) *ReportWriter {
	return &ReportWriter{logger: logger.OrDefault().WithComponent("excel")}
}

// Write creates the workbook at path, one sheet per artifact
func (w *ReportWriter) Write(path string, report *app.Report) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetCellMeans); err != nil {
		return err
	}
	for _, name := range []string{SheetEffects, SheetMarginals, SheetPCI, SheetDiagnostics, SheetBootstrap, SheetScores, SheetSelection} {
		if _, err := f.NewSheet(name); err != nil {
			return err
		}
	}

	sheets := []struct {
		name string
		rows [][]interface{}
	}{
		{SheetCellMeans, cellMeanRows(report)},
		{SheetEffects, effectRows(report)},
		{SheetMarginals, marginalRows(report)},
		{SheetPCI, pciRows(report)},
		{SheetDiagnostics, diagnosticRows(report)},
		{SheetBootstrap, bootstrapRows(report)},
		{SheetScores, scoreRows(report)},
		{SheetSelection, selectionRows(report)},
	}
	for _, s := range sheets {
		if err := writeRows(f, s.name, s.rows); err != nil {
			return fmt.Errorf("sheet %s: %w", s.name, err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	w.logger.Info("report written to %s", path)
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		row := row
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}

func pairName(report *app.Report, i int) string {
	d := report.Model.Pairs[i]
	f := report.Model.Factors
	return f[d.Pair.I].Name + "×" + f[d.Pair.J].Name
}

func cellMeanRows(report *app.Report) [][]interface{} {
	rows := [][]interface{}{{"pair", "a", "b", "mean", "count", "std_dev", "std_err", "imputed"}}
	for i, d := range report.Model.Pairs {
		if d.Table == nil {
			continue
		}
		for _, c := range d.Table.Cells() {
			rows = append(rows, []interface{}{pairName(report, i), c.Key.A, c.Key.B, c.Mean, c.Count, c.StdDev, c.StdErr, c.Imputed})
		}
	}
	return rows
}

func effectRows(report *app.Report) [][]interface{} {
	rows := [][]interface{}{{"pair", "term", "a", "b", "value"}}
	for i, d := range report.Model.Pairs {
		name := pairName(report, i)
		rows = append(rows, []interface{}{name, "grand_mean", "", "", d.GrandMean})
		for _, level := range d.A.Levels {
			if v, ok := d.MainA[level]; ok {
				rows = append(rows, []interface{}{name, "main_" + d.A.Name, level, "", v})
			}
		}
		for _, level := range d.B.Levels {
			if v, ok := d.MainB[level]; ok {
				rows = append(rows, []interface{}{name, "main_" + d.B.Name, "", level, v})
			}
		}
		for _, a := range d.A.Levels {
			for _, b := range d.B.Levels {
				if v, ok := d.InteractionAt(a, b); ok {
					rows = append(rows, []interface{}{name, "interaction", a, b, v})
				}
				if i < len(report.Classical) {
					if v, ok := report.Classical[i][factorial.CellKey{A: a, B: b}]; ok {
						rows = append(rows, []interface{}{name, "classical_interaction", a, b, v})
					}
				}
			}
		}
		rows = append(rows, []interface{}{name, "mse", "", "", d.MSE})
	}
	return rows
}

func marginalRows(report *app.Report) [][]interface{} {
	rows := [][]interface{}{{"factor", "level", "weighted_mean", "unweighted_mean"}}
	for _, m := range report.Marginals {
		for _, level := range m.Levels {
			w, okW := m.Weighted[level]
			u, okU := m.Unweighted[level]
			if !okW || !okU {
				continue
			}
			rows = append(rows, []interface{}{m.Factor, level, w, u})
		}
	}
	return rows
}

func diagnosticRows(report *app.Report) [][]interface{} {
	rows := [][]interface{}{{"factor", "pairwise_mse", "saturated_mse", "collapsed_gap", "higher_order_share", "flagged"}}
	diag := report.Diagnostics
	if diag == nil {
		return rows
	}
	for _, a := range diag.Ablation {
		rows = append(rows, []interface{}{a.Factor, a.PairwiseMSE, a.SaturatedMSE, a.CollapsedGap, a.HigherOrderShare, a.Flagged})
	}
	rows = append(rows, []interface{}{"interaction_share", diag.InteractionShare, "", "", "", ""})
	rows = append(rows, []interface{}{"residual_share", diag.ResidualShare, "", "", "", diag.HigherOrderSuspected()})
	return rows
}

func pciRows(report *app.Report) [][]interface{} {
	rows := [][]interface{}{{"pair", "a", "b", "pci"}}
	for i, r := range report.PCI {
		name := pairName(report, i)
		d := report.Model.Pairs[i]
		for _, a := range d.A.Levels {
			for _, b := range d.B.Levels {
				if v, ok := r.At(a, b); ok {
					rows = append(rows, []interface{}{name, a, b, v})
				}
			}
		}
		if r.AggregateDefined {
			rows = append(rows, []interface{}{name, "aggregate", "", r.Aggregate})
		}
		rows = append(rows, []interface{}{name, "simple", "", r.Simple})
		rows = append(rows, []interface{}{name, "variance_share", "", r.VarianceShare()})
	}
	return rows
}

func bootstrapRows(report *app.Report) [][]interface{} {
	rows := [][]interface{}{{"quantity", "kind", "estimate", "lower", "upper", "std_err", "replicates", "skipped"}}
	if report.Bootstrap == nil || report.Bootstrap.CI == nil {
		return rows
	}
	for _, q := range report.Bootstrap.CI.Quantities {
		rows = append(rows, []interface{}{q.Name, string(q.Kind), q.Estimate, q.Lower, q.Upper, q.StdErr, q.Replicates, q.Skipped})
	}
	return rows
}

func scoreRows(report *app.Report) [][]interface{} {
	rows := [][]interface{}{{"combination", "prediction", "uncertainty", "cost", "scored_cost", "score"}}
	if report.Scores == nil {
		return rows
	}
	for _, e := range report.Scores.Entries {
		rows = append(rows, []interface{}{e.Combination.String(), e.Prediction, e.Uncertainty, e.Cost, e.ScoredCost, e.Score})
	}
	return rows
}

func selectionRows(report *app.Report) [][]interface{} {
	sel := report.Selection
	rows := [][]interface{}{{"combination", "cost", "score"}}
	for _, it := range sel.Items() {
		rows = append(rows, []interface{}{it.Combination.String(), it.Cost, it.Score})
	}
	if sel.IsEmpty() {
		rows = append(rows, []interface{}{"(empty) " + sel.Reason(), 0, 0})
	}
	rows = append(rows, []interface{}{"total", sel.TotalCost(), sel.TotalScore()})
	rows = append(rows, []interface{}{"budget", sel.Budget(), string(sel.Mode())})
	return rows
}
