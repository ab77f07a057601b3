package labeling

import (
	"errors"
	"fmt"
	"os"
)

// WriteFile writes rows as CSV or XLSX depending on the extension of path.
func WriteFile(path string, rows []Row) (err error) {
	format, err := Format(path)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()

	if format == "xlsx" {
		return WriteXLSX(f, rows)
	}
	return WriteCSV(f, rows)
}

// ReadFile reads a labeled CSV or XLSX sheet.
func ReadFile(path string) ([]Row, error) {
	format, err := Format(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sheet: %w", err)
	}
	defer f.Close()

	if format == "xlsx" {
		return ReadXLSX(f)
	}
	return ReadCSV(f)
}
