package workbook

import (
	"fmt"
	"os"

	"github.com/parquet-go/parquet-go"
)

func loadParquet(path string) ([]Sheet, error) {
	columns, err := parquetColumns(path)
	if err != nil {
		return nil, err
	}
	return []Sheet{{Name: stem(path), Columns: columns, ParquetPath: path}}, nil
}

func probeParquet(path string) error {
	_, err := parquetColumns(path)
	return err
}

func parquetColumns(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open parquet file: %v", ErrUnreadable, err)
	}
	defer func() { _ = file.Close() }()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: stat parquet file: %v", ErrUnreadable, err)
	}
	pf, err := parquet.OpenFile(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("%w: parse parquet file: %v", ErrUnreadable, err)
	}
	fields := pf.Schema().Fields()
	columns := make([]string, 0, len(fields))
	for _, field := range fields {
		columns = append(columns, field.Name())
	}
	return columns, nil
}
