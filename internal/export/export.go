// Package export writes the Pareto set of a finished run to a spreadsheet or a
// CSV file.
package export

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/copyleftdev/augmecon/internal/optimization"
	"github.com/copyleftdev/augmecon/internal/optimization/augmecon"
)

const component = "export"

// Supported formats.
const (
	FormatXLSX = "xlsx"
	FormatCSV  = "csv"
)

// Sheet names of an xlsx export.
const (
	ParetoSheet = "Pareto"
	PayoffSheet = "Payoff"
)

// File writes <Dir>/<run name>.<Format>. One row per solution, one column per
// objective, with a header row of objective names.
type File struct {
	Dir    string
	Format string
	// Objectives names the columns. Missing names become f1, f2, ...
	Objectives []string

	// Path is set after a successful export.
	Path string
}

var _ augmecon.Exporter = (*File)(nil)

// NewFile returns an exporter for format, which must be xlsx or csv.
func NewFile(dir, format string, objectives []string) (*File, error) {
	format = strings.ToLower(strings.TrimPrefix(format, "."))
	switch format {
	case FormatXLSX, FormatCSV:
	default:
		return nil, optimization.ConfigErrorf("unsupported export format %q", format).WithComponent(component)
	}
	return &File{Dir: dir, Format: format, Objectives: objectives}, nil
}

// Export implements augmecon.Exporter.
func (f *File) Export(ctx context.Context, r *augmecon.Result) error {
	const op = "Export"
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(f.Dir, 0o755); err != nil {
		return optimization.WrapErrorf(err, "creating %s", f.Dir).WithComponent(component).WithOperation(op)
	}
	path := filepath.Join(f.Dir, r.Name+"."+f.Format)
	header := Header(f.Objectives, r.Objectives)

	var err error
	switch f.Format {
	case FormatCSV:
		err = writeCSV(path, header, r.ParetoSet)
	default:
		err = writeXLSX(path, header, r)
	}
	if err != nil {
		return optimization.WrapErrorf(err, "writing %s", path).WithComponent(component).WithOperation(op)
	}
	f.Path = path
	return nil
}

// Header returns p column names, taking them from names where present.
func Header(names []string, p int) []string {
	header := make([]string, p)
	for i := range header {
		if i < len(names) && names[i] != "" {
			header[i] = names[i]
		} else {
			header[i] = "f" + strconv.Itoa(i+1)
		}
	}
	return header
}

func writeCSV(path string, header []string, rows [][]float64) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := file.Close(); err == nil {
			err = cerr
		}
	}()

	w := csv.NewWriter(file)
	if err := w.Write(header); err != nil {
		return err
	}
	record := make([]string, len(header))
	for _, row := range rows {
		for i, v := range row {
			record[i] = strconv.FormatFloat(v, 'f', -1, 64)
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func writeXLSX(path string, header []string, r *augmecon.Result) (err error) {
	x := excelize.NewFile()
	defer func() {
		if cerr := x.Close(); err == nil {
			err = cerr
		}
	}()

	if err := x.SetSheetName("Sheet1", ParetoSheet); err != nil {
		return err
	}
	if err := setRows(x, ParetoSheet, header, r.ParetoSet); err != nil {
		return err
	}

	if r.PayoffTable != nil {
		if _, err := x.NewSheet(PayoffSheet); err != nil {
			return err
		}
		p, _ := r.PayoffTable.Dims()
		payoff := make([][]float64, p)
		for i := range payoff {
			payoff[i] = make([]float64, p)
			for j := range payoff[i] {
				payoff[i][j] = r.PayoffTable.At(i, j)
			}
		}
		if err := setRows(x, PayoffSheet, header, payoff); err != nil {
			return err
		}
	}
	return x.SaveAs(path)
}

func setRows(x *excelize.File, sheet string, header []string, rows [][]float64) error {
	cells := make([]interface{}, len(header))
	for i, h := range header {
		cells[i] = h
	}
	if err := x.SetSheetRow(sheet, "A1", &cells); err != nil {
		return err
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := make([]interface{}, len(row))
		for j, v := range row {
			values[j] = v
		}
		if err := x.SetSheetRow(sheet, cell, &values); err != nil {
			return err
		}
	}
	return nil
}
