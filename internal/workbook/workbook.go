package workbook

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

type Format string

const (
	FormatXLSX    Format = "xlsx"
	FormatXLS     Format = "xls"
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrUnreadable        = errors.New("unreadable file content")
)

// Sheet is one loaded table. Parquet sheets carry only their header and are
// scanned in place through ParquetPath.
type Sheet struct {
	Name        string
	Columns     []string
	Rows        [][]string
	ParquetPath string
}

type Workbook struct {
	Path   string
	Format Format
	Sheets []Sheet
}

func SupportedExtensions() []string {
	return []string{".xlsx", ".xlsm", ".xls", ".csv", ".parquet"}
}

func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	case ".xls":
		return FormatXLS, nil
	case ".csv":
		return FormatCSV, nil
	case ".parquet":
		return FormatParquet, nil
	default:
		return "", fmt.Errorf("%w %q: use one of %s", ErrUnsupportedFormat, filepath.Ext(path), strings.Join(SupportedExtensions(), ", "))
	}
}

// Load reads every sheet of the file. Nothing is cached between calls.
func Load(path string) (*Workbook, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	var sheets []Sheet
	switch format {
	case FormatXLSX:
		sheets, err = loadXLSX(path)
	case FormatXLS:
		sheets, err = loadXLS(path)
	case FormatCSV:
		sheets, err = loadCSV(path)
	case FormatParquet:
		sheets, err = loadParquet(path)
	}
	if err != nil {
		return nil, err
	}
	return &Workbook{Path: path, Format: format, Sheets: sheets}, nil
}

// Probe opens the file with its format reader and closes it again.
func Probe(path string) error {
	format, err := DetectFormat(path)
	if err != nil {
		return err
	}
	switch format {
	case FormatXLSX:
		return probeXLSX(path)
	case FormatXLS:
		return probeXLS(path)
	case FormatCSV:
		return probeCSV(path)
	case FormatParquet:
		return probeParquet(path)
	}
	return nil
}

// ListSheets returns sheet names in load order without reading cell data.
func ListSheets(path string) ([]string, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatXLSX:
		return listXLSX(path)
	case FormatXLS:
		return listXLS(path)
	default:
		return []string{stem(path)}, nil
	}
}

func (w *Workbook) SheetNames() []string {
	names := make([]string, 0, len(w.Sheets))
	for _, sheet := range w.Sheets {
		names = append(names, sheet.Name)
	}
	return names
}

func (w *Workbook) Headers() map[string][]string {
	out := make(map[string][]string, len(w.Sheets))
	for _, sheet := range w.Sheets {
		out[sheet.Name] = append([]string{}, sheet.Columns...)
	}
	return out
}

func (w *Workbook) Sheet(name string) (Sheet, bool) {
	for _, sheet := range w.Sheets {
		if sheet.Name == name {
			return sheet, true
		}
	}
	return Sheet{}, false
}

// SanitizeName makes a sheet name usable as a script variable.
func SanitizeName(name string) string {
	name = strings.ReplaceAll(name, " ", "_")
	return strings.ReplaceAll(name, "-", "_")
}

func PositionalAlias(index int) string {
	return "df_" + strconv.Itoa(index)
}

// newSheet names header cells the way data frame readers do: blanks become
// "Unnamed: <i>" and repeats get a ".<n>" suffix. Rows are padded to the header
// width and fully blank rows are dropped.
func newSheet(name string, raw [][]string) Sheet {
	if len(raw) == 0 {
		return Sheet{Name: name, Columns: []string{}, Rows: [][]string{}}
	}
	width := 0
	for _, row := range raw {
		if len(row) > width {
			width = len(row)
		}
	}
	header := make([]string, width)
	copy(header, raw[0])
	columns := dedupeColumns(header)

	rows := make([][]string, 0, len(raw)-1)
	for _, row := range raw[1:] {
		if isBlankRow(row) {
			continue
		}
		padded := make([]string, width)
		copy(padded, row)
		rows = append(rows, padded)
	}
	return Sheet{Name: name, Columns: columns, Rows: rows}
}

func dedupeColumns(header []string) []string {
	columns := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, cell := range header {
		name := strings.TrimSpace(cell)
		if name == "" {
			name = "Unnamed: " + strconv.Itoa(i)
		}
		if count, ok := seen[name]; ok {
			candidate := name + "." + strconv.Itoa(count)
			for {
				if _, taken := seen[candidate]; !taken {
					break
				}
				count++
				candidate = name + "." + strconv.Itoa(count)
			}
			seen[name] = count + 1
			seen[candidate] = 1
			name = candidate
		} else {
			seen[name] = 1
		}
		columns[i] = name
	}
	return columns
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
