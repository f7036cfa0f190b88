package detection

import (
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Metrics summarizes the confidences of one inference call.
type Metrics struct {
	Total           int     `json:"total_detections"`
	ConfidenceMean  float64 `json:"confidence_mean"`
	ConfidenceMin   float64 `json:"confidence_min"`
	ConfidenceMax   float64 `json:"confidence_max"`
	ConfidenceStd   float64 `json:"confidence_std"`
	InferenceTimeMS float64 `json:"inference_time_ms"`
}

// ComputeMetrics aggregates detection confidences. The standard deviation is
// the sample deviation and is zero for fewer than two detections.
func ComputeMetrics(dets []Detection, took time.Duration) Metrics {
	m := Metrics{InferenceTimeMS: round(float64(took.Microseconds())/1000, 1)}
	if len(dets) == 0 {
		return m
	}

	conf := make([]float64, len(dets))
	for i, d := range dets {
		conf[i] = d.Confidence
	}

	m.Total = len(conf)
	m.ConfidenceMin = round(floats.Min(conf), 3)
	m.ConfidenceMax = round(floats.Max(conf), 3)
	if len(conf) > 1 {
		mean, std := stat.MeanStdDev(conf, nil)
		m.ConfidenceMean = round(mean, 3)
		m.ConfidenceStd = round(std, 3)
	} else {
		m.ConfidenceMean = round(conf[0], 3)
	}
	return m
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
