// Package tracker implements Trackers, which consume the metrics and
// environment states produced by each tick of an experiment
package tracker

import (
	"encoding/gob"
	"fmt"
	"os"

	"github.com/samuelfneumann/pointmass/environment/pointmass"
	"github.com/samuelfneumann/pointmass/metric"
)

// Tracker keeps track of experiment data. Track is called once per
// tick, in step order, with the metric of the tick and the state of the
// environment after the tick.
type Tracker interface {
	Track(m metric.Metric, s pointmass.SimState)
}

// Resetter is a Tracker which must be told when a new run starts
type Resetter interface {
	Tracker
	Reset(runID string)
}

// Saver is a Tracker which saves its data once an experiment is
// finished
type Saver interface {
	Tracker
	Save() error
}

// LoadData loads and returns the data saved by a Tracker with gob
// encoding
func LoadData(filename string) ([]float64, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("loadData: could not open data file: %v", err)
	}
	defer file.Close()

	var data []float64
	if err := gob.NewDecoder(file).Decode(&data); err != nil {
		return nil, fmt.Errorf("loadData: could not decode data: %v", err)
	}
	return data, nil
}
