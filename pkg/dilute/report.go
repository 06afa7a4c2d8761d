package dilute

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"
)

// DefaultReportFile is where cycle results append, relative to the
// working directory.
const DefaultReportFile = "concentration_data.csv"

// CycleResult is one completed dilution.
type CycleResult struct {
	At            time.Time
	SampleGrams   float64
	FinalGrams    float64
	VolumeAddedML float64
	Percent       float64
}

// AppendReport adds one result row to the CSV log, writing the header
// first when the file is new.
func AppendReport(path string, r CycleResult) error {
	_, statErr := os.Stat(path)
	isNew := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open report file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if isNew {
		w.Write([]string{
			"Timestamp",
			"Sample Weight (g)",
			"Final Weight (g)",
			"Volume Added (ml)",
			"Concentration (%)",
		})
	}
	w.Write([]string{
		r.At.Format("2006-01-02 15:04:05"),
		strconv.FormatFloat(r.SampleGrams, 'f', 4, 64),
		strconv.FormatFloat(r.FinalGrams, 'f', 4, 64),
		strconv.FormatFloat(r.VolumeAddedML, 'f', 4, 64),
		strconv.FormatFloat(r.Percent, 'f', 4, 64),
	})
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write report row: %w", err)
	}
	return nil
}
