package workbook

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

func loadXLSX(path string) ([]Sheet, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open excel file: %v", ErrUnreadable, err)
	}
	defer func() { _ = f.Close() }()

	names := f.GetSheetList()
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: no sheets found in excel file", ErrUnreadable)
	}
	sheets := make([]Sheet, 0, len(names))
	for _, name := range names {
		rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("%w: read sheet %q: %v", ErrUnreadable, name, err)
		}
		sheets = append(sheets, newSheet(name, rows))
	}
	return sheets, nil
}

func probeXLSX(path string) error {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return fmt.Errorf("%w: open excel file: %v", ErrUnreadable, err)
	}
	defer func() { _ = f.Close() }()
	if len(f.GetSheetList()) == 0 {
		return fmt.Errorf("%w: no sheets found in excel file", ErrUnreadable)
	}
	return nil
}

func listXLSX(path string) ([]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open excel file: %v", ErrUnreadable, err)
	}
	defer func() { _ = f.Close() }()
	return f.GetSheetList(), nil
}
