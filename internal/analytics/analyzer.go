package analytics

import (
	"math"
	"sync"
	"time"

	"github.com/modelingevolution/numeric/internal/model"
	"github.com/modelingevolution/numeric/internal/windowstats"
)

// Snapshot is the smoothed view of the windows after one sample.
type Snapshot struct {
	TimeUnix  int64   `json:"timestamp"`
	AvgCPU    float64 `json:"rolling_avg_cpu"`
	AvgRPS    float64 `json:"rolling_avg_rps"`
	MedianCPU float64 `json:"rolling_median_cpu"`
	MedianRPS float64 `json:"rolling_median_rps"`
	DevCPU    float64 `json:"deviation_cpu"`
	DevRPS    float64 `json:"deviation_rps"`
	CPUSpike  bool    `json:"spike_cpu"`
	RPSSpike  bool    `json:"spike_rps"`
	Samples   int     `json:"window_count"`
	Capacity  int     `json:"window_capacity"`
}

// series smooths one metric with an average and a median over the same window.
type series struct {
	avg *windowstats.SlidingAverage[float64]
	med *windowstats.SlidingMedian[float64]
}

func newSeries(window int) (series, error) {
	avg, err := windowstats.NewSlidingAverage[float64](window)
	if err != nil {
		return series{}, err
	}
	med, err := windowstats.NewSlidingMedian[float64](window)
	if err != nil {
		return series{}, err
	}
	return series{avg: avg, med: med}, nil
}

func (s series) push(v float64) {
	s.avg.Push(v)
	s.med.Push(v)
}

func (s series) clear() {
	s.avg.Clear()
	s.med.Clear()
}

// Analyzer flags samples that stray from the rolling median of their metric.
// The windows it owns are not safe for concurrent use, so every access goes
// through mu.
type Analyzer struct {
	cpu       series
	rps       series
	threshold float64

	mu     sync.Mutex
	latest Snapshot
}

// NewAnalyzer returns an Analyzer over windows of the given size. A sample is
// a spike when its deviation from the median, relative to the median, reaches
// threshold.
func NewAnalyzer(window int, threshold float64) (*Analyzer, error) {
	cpu, err := newSeries(window)
	if err != nil {
		return nil, err
	}
	rps, err := newSeries(window)
	if err != nil {
		return nil, err
	}
	return &Analyzer{
		cpu:       cpu,
		rps:       rps,
		threshold: threshold,
	}, nil
}

func (a *Analyzer) Process(m model.Sample) Snapshot {
	if m.Timestamp == 0 {
		m.Timestamp = time.Now().Unix()
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.cpu.push(m.CPU)
	a.rps.push(m.RPS)

	res := Snapshot{
		TimeUnix:  m.Timestamp,
		AvgCPU:    a.cpu.avg.Average(),
		AvgRPS:    a.rps.avg.Average(),
		MedianCPU: a.cpu.med.Median(),
		MedianRPS: a.rps.med.Median(),
		Samples:   a.cpu.med.Count(),
		Capacity:  a.cpu.med.Capacity(),
	}
	res.DevCPU = deviation(m.CPU, res.MedianCPU)
	res.DevRPS = deviation(m.RPS, res.MedianRPS)
	if res.Samples > 1 {
		res.CPUSpike = math.Abs(res.DevCPU) >= a.threshold
		res.RPSSpike = math.Abs(res.DevRPS) >= a.threshold
	}

	a.latest = res
	return res
}

func (a *Analyzer) Latest() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.latest
}

// Reset empties every window and forgets the latest snapshot.
func (a *Analyzer) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cpu.clear()
	a.rps.clear()
	a.latest = Snapshot{}
}

// deviation is the distance of v from median, scaled by the median's
// magnitude. Medians below 1 in magnitude are not scaled up.
func deviation(v, median float64) float64 {
	return (v - median) / math.Max(math.Abs(median), 1)
}
