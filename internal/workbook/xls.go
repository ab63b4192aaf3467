package workbook

import (
	"fmt"
	"os"

	"github.com/extrame/xls"
)

func openXLS(path string) (*xls.WorkBook, func(), error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: open xls file: %v", ErrUnreadable, err)
	}
	book, err := xls.OpenReader(file, "utf-8")
	if err != nil {
		_ = file.Close()
		return nil, nil, fmt.Errorf("%w: parse xls file: %v", ErrUnreadable, err)
	}
	return book, func() { _ = file.Close() }, nil
}

func loadXLS(path string) ([]Sheet, error) {
	book, closeFn, err := openXLS(path)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	count := book.NumSheets()
	if count == 0 {
		return nil, fmt.Errorf("%w: no sheets found in xls file", ErrUnreadable)
	}
	sheets := make([]Sheet, 0, count)
	for i := 0; i < count; i++ {
		sheet := book.GetSheet(i)
		if sheet == nil {
			continue
		}
		raw := make([][]string, 0, int(sheet.MaxRow)+1)
		for r := 0; r <= int(sheet.MaxRow); r++ {
			row := sheet.Row(r)
			if row == nil {
				raw = append(raw, nil)
				continue
			}
			cells := make([]string, 0, row.LastCol())
			for c := 0; c < row.LastCol(); c++ {
				cells = append(cells, row.Col(c))
			}
			raw = append(raw, cells)
		}
		sheets = append(sheets, newSheet(sheet.Name, trimTrailingBlank(raw)))
	}
	return sheets, nil
}

func probeXLS(path string) error {
	book, closeFn, err := openXLS(path)
	if err != nil {
		return err
	}
	defer closeFn()
	if book.NumSheets() == 0 {
		return fmt.Errorf("%w: no sheets found in xls file", ErrUnreadable)
	}
	return nil
}

func trimTrailingBlank(raw [][]string) [][]string {
	end := len(raw)
	for end > 0 && isBlankRow(raw[end-1]) {
		end--
	}
	return raw[:end]
}

func listXLS(path string) ([]string, error) {
	book, closeFn, err := openXLS(path)
	if err != nil {
		return nil, err
	}
	defer closeFn()
	names := make([]string, 0, book.NumSheets())
	for i := 0; i < book.NumSheets(); i++ {
		if sheet := book.GetSheet(i); sheet != nil {
			names = append(names, sheet.Name)
		}
	}
	return names, nil
}
