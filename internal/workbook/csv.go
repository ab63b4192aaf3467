package workbook

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func loadCSV(path string) ([]Sheet, error) {
	raw, err := readCSV(path, -1)
	if err != nil {
		return nil, err
	}
	return []Sheet{newSheet(stem(path), raw)}, nil
}

func probeCSV(path string) error {
	_, err := readCSV(path, 1)
	return err
}

// readCSV reads up to limit records; limit < 0 reads all of them.
func readCSV(path string, limit int) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open csv file: %v", ErrUnreadable, err)
	}
	defer func() { _ = file.Close() }()

	buffered := bufio.NewReader(file)
	if head, err := buffered.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = buffered.Discard(len(utf8BOM))
	}
	reader := csv.NewReader(buffered)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var records [][]string
	for limit < 0 || len(records) < limit {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: parse csv file: %v", ErrUnreadable, err)
		}
		records = append(records, record)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no columns to parse from file", ErrUnreadable)
	}
	return records, nil
}
