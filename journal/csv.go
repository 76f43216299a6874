package journal

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"

	"github.com/gocarina/gocsv"
)

// CSV writes fills, equity snapshots and aborts to three files. Each file
// starts with a header row; every record is flushed as it is written.
type CSV struct {
	fills  *gocsv.SafeCSVWriter
	equity *gocsv.SafeCSVWriter
	aborts *gocsv.SafeCSVWriter
	files  []*os.File
}

func NewCSV(fillsPath, equityPath, abortsPath string) (*CSV, error) {
	j := &CSV{}

	open := func(path string, header interface{}) (*gocsv.SafeCSVWriter, error) {
		f, err := os.Create(path)
		if err != nil {
			return nil, err
		}
		j.files = append(j.files, f)

		w := gocsv.NewSafeCSVWriter(csv.NewWriter(f))
		if err := gocsv.MarshalCSV(header, w); err != nil {
			return nil, fmt.Errorf("write header %s: %w", path, err)
		}
		return w, nil
	}

	var err error
	if j.fills, err = open(fillsPath, []FillRecord{}); err != nil {
		_ = j.Close()
		return nil, err
	}
	if j.equity, err = open(equityPath, []EquitySnapshot{}); err != nil {
		_ = j.Close()
		return nil, err
	}
	if j.aborts, err = open(abortsPath, []AbortRecord{}); err != nil {
		_ = j.Close()
		return nil, err
	}
	return j, nil
}

func (j *CSV) RecordFill(f FillRecord) error {
	return gocsv.MarshalCSVWithoutHeaders([]FillRecord{f}, j.fills)
}

func (j *CSV) RecordEquity(e EquitySnapshot) error {
	return gocsv.MarshalCSVWithoutHeaders([]EquitySnapshot{e}, j.equity)
}

func (j *CSV) RecordAbort(a AbortRecord) error {
	return gocsv.MarshalCSVWithoutHeaders([]AbortRecord{a}, j.aborts)
}

func (j *CSV) Close() error {
	var errs []error
	for _, w := range []*gocsv.SafeCSVWriter{j.fills, j.equity, j.aborts} {
		if w == nil {
			continue
		}
		w.Flush()
		if err := w.Error(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, f := range j.files {
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	j.files = nil
	return errors.Join(errs...)
}
