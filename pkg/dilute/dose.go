// Package dilute runs the gravimetric dilution cycle: tare, weigh the
// sample, size the solvent dose, meter it with the pump and report the
// resulting concentration.
package dilute

import (
	"errors"
	"fmt"
	"time"
)

const (
	// DefaultRatio is the standing bench recipe, sample mass over
	// total solution mass (1 part in 20.9).
	DefaultRatio = 1 / 20.9

	// MinRevolutions is the smallest metered run the drive executes
	// reliably; smaller doses are raised to it.
	MinRevolutions = 0.1

	// DefaultFlowRate is the dispense speed in RPM.
	DefaultFlowRate = 30.0

	// DefaultFillRate is the tubing fill speed in RPM.
	DefaultFillRate = 60.0
)

// ErrNoSample reports a non-positive sample weight.
var ErrNoSample = errors.New("no sample on balance")

// Dose is the dispense plan computed for one sample.
type Dose struct {
	SampleGrams   float64
	SolventGrams  float64
	VolumeML      float64
	Revolutions   float64
	Clamped       bool    // raised to MinRevolutions
	TargetPercent float64 // concentration if exactly VolumeML lands
}

// ComputeDose sizes the solvent addition for a sample of the given
// weight. ratio is sample mass over total solution mass, mlPerRev the
// tubing calibration. Solvent density is taken as 1 g/ml, so grams of
// solvent and millilitres coincide.
func ComputeDose(sampleGrams, ratio, mlPerRev float64) (Dose, error) {
	if sampleGrams <= 0 {
		return Dose{}, ErrNoSample
	}
	if ratio <= 0 || ratio >= 1 {
		return Dose{}, fmt.Errorf("ratio %v outside (0, 1)", ratio)
	}
	if mlPerRev <= 0 {
		return Dose{}, fmt.Errorf("calibration %v ml/rev not positive", mlPerRev)
	}

	solvent := sampleGrams * (1 - ratio) / ratio
	volume := solvent
	revs := volume / mlPerRev
	clamped := false
	if revs < MinRevolutions {
		revs = MinRevolutions
		clamped = true
	}

	return Dose{
		SampleGrams:   sampleGrams,
		SolventGrams:  solvent,
		VolumeML:      volume,
		Revolutions:   revs,
		Clamped:       clamped,
		TargetPercent: sampleGrams / (sampleGrams + volume) * 100,
	}, nil
}

// EstimatedRunTime is how long the metered run should take at the
// given speed, with 50% slack for pump ramp and rounding.
func (d Dose) EstimatedRunTime(rpm float64) time.Duration {
	if rpm <= 0 {
		return 0
	}
	secs := d.Revolutions / (rpm / 60) * 1.5
	return time.Duration(secs * float64(time.Second))
}

// ForceStopAfter is the wall-clock ceiling past which the dispense
// monitor halts the drive no matter what it reports.
func (d Dose) ForceStopAfter(rpm float64) time.Duration {
	return time.Duration(float64(d.EstimatedRunTime(rpm)) * 1.1)
}

// Concentration is the measured % w/w after dispensing, zero when the
// final weight is not positive.
func Concentration(sampleGrams, finalGrams float64) float64 {
	if finalGrams <= 0 {
		return 0
	}
	return sampleGrams / finalGrams * 100
}
