// Package impact estimates how much distributed solar generation a
// substation area carries and classifies the grid risk it implies.
package impact

import (
	"math"

	"github.com/jengzang/solarscan-backend-go/internal/detection"
	"github.com/jengzang/solarscan-backend-go/internal/landuse"
	"github.com/jengzang/solarscan-backend-go/internal/spatial"
)

// Penetration levels.
const (
	PenetrationHigh   = "ALTA"
	PenetrationMedium = "MEDIA"
	PenetrationLow    = "BAIXA"
)

// Duck-curve risk levels.
const (
	DuckCurveHigh     = "ALTO"
	DuckCurveModerate = "MODERADO"
	DuckCurveLow      = "BAIXO"
)

// Undefined is the predominant profile when no panel was found.
const Undefined = "INDEFINIDO"

const (
	// KWPerSquareMeter converts panel bbox area to installed power.
	KWPerSquareMeter = 0.18
	// DefaultKWPerDetection is used when a box cannot be sized.
	DefaultKWPerDetection = 0.45

	minKWPerBox    = 0.1
	maxKWPerBox    = 50.0
	maxBoxAreaM2   = 10000.0
	peakLoadFactor = 1.4
)

var landUseKWFactor = map[landuse.Label]float64{
	landuse.Industrial:  1.30,
	landuse.Commercial:  1.10,
	landuse.Residential: 0.95,
}

var loadKWPerDetection = map[landuse.Label]float64{
	landuse.Residential: 3,
	landuse.Commercial:  15,
	landuse.Industrial:  40,
}

// Estimates are the numeric results behind the classifications.
type Estimates struct {
	GenerationKW     float64 `json:"generation_kw"`
	AvgKWPerPanel    float64 `json:"avg_kw_per_detection"`
	PeakLoadKW       float64 `json:"peak_load_kw"`
	PenetrationRatio float64 `json:"penetration_ratio"`
}

// Assessment is the grid impact of one analysis.
type Assessment struct {
	Percentages     map[landuse.Label]float64 `json:"percentages"`
	Estimates       Estimates                 `json:"estimates"`
	Penetration     string                    `json:"penetration"`
	DuckCurveRisk   string                    `json:"duck_curve_risk"`
	Recommendations []string                  `json:"recommendations"`
}

// BoxAreaM2 returns the ground area covered by a detection's box, or false
// when the box, tile metadata or result is unusable.
func BoxAreaM2(d detection.Detection) (float64, bool) {
	if d.Box == nil || d.ImageWidth <= 0 || d.ImageHeight <= 0 {
		return 0, false
	}
	w, h := d.Box.Width(), d.Box.Height()
	if w <= 0 || h <= 0 {
		return 0, false
	}
	mpp := spatial.MetersPerPixel(d.TileLat, d.TileZoom)
	area := w * h * mpp * mpp
	if area <= 0 || area > maxBoxAreaM2 {
		return 0, false
	}
	return area, true
}

// EstimateKW converts one detection into installed kW.
func EstimateKW(d detection.Detection) float64 {
	kw := DefaultKWPerDetection
	if area, ok := BoxAreaM2(d); ok {
		kw = math.Max(minKWPerBox, math.Min(area*KWPerSquareMeter, maxKWPerBox))
	}
	if f, ok := landUseKWFactor[landuse.ParseLabel(d.LandUse)]; ok {
		kw *= f
	}
	return kw
}

// PeakLoadKW estimates the area's peak load from labeled counts.
func PeakLoadKW(counts map[landuse.Label]int) float64 {
	base := 0.0
	for label, perDet := range loadKWPerDetection {
		base += float64(counts[label]) * perDet
	}
	return math.Max(1, base*peakLoadFactor)
}

// ClassifyPenetration maps a generation/load ratio to a level.
func ClassifyPenetration(ratio float64) string {
	switch {
	case ratio >= 0.30:
		return PenetrationHigh
	case ratio >= 0.15:
		return PenetrationMedium
	}
	return PenetrationLow
}

// ClassifyDuckCurve rates the evening-ramp risk from the residential share
// (percent) and the penetration ratio.
func ClassifyDuckCurve(pctResidential, ratio float64) string {
	switch {
	case pctResidential >= 60 && ratio >= 0.20:
		return DuckCurveHigh
	case pctResidential >= 40 && ratio >= 0.10:
		return DuckCurveModerate
	}
	return DuckCurveLow
}

// Percentages returns each label's share of all detections, rounded to one
// decimal.
func Percentages(counts map[landuse.Label]int) map[landuse.Label]float64 {
	total := 0
	for _, n := range counts {
		total += n
	}
	if total == 0 {
		total = 1
	}
	out := make(map[landuse.Label]float64, 3)
	for _, l := range []landuse.Label{landuse.Residential, landuse.Commercial, landuse.Industrial} {
		out[l] = round(float64(counts[l])/float64(total)*100, 1)
	}
	return out
}

// Assess computes the impact of the joined detections.
func Assess(joined []detection.Detection) Assessment {
	counts := landuse.CountByLabel(joined)
	pct := Percentages(counts)

	gen := 0.0
	for _, d := range joined {
		gen += EstimateKW(d)
	}
	avg := DefaultKWPerDetection
	if len(joined) > 0 {
		avg = gen / float64(len(joined))
	}

	load := PeakLoadKW(counts)
	ratio := gen / load

	a := Assessment{
		Percentages: pct,
		Estimates: Estimates{
			GenerationKW:     round(gen, 1),
			AvgKWPerPanel:    round(avg, 2),
			PeakLoadKW:       round(load, 1),
			PenetrationRatio: round(ratio, 3),
		},
		Penetration:   ClassifyPenetration(ratio),
		DuckCurveRisk: ClassifyDuckCurve(pct[landuse.Residential], ratio),
	}
	if a.Penetration == PenetrationHigh || a.Penetration == PenetrationMedium {
		a.Recommendations = append(a.Recommendations, "Check reverse power flow and voltage during solar noon.")
	}
	if a.DuckCurveRisk == DuckCurveHigh || a.DuckCurveRisk == DuckCurveModerate {
		a.Recommendations = append(a.Recommendations, "Simulate the load curve and check the late-afternoon ramp.")
	}
	a.Recommendations = append(a.Recommendations, "Prioritize inspection of clusters with high estimated generation density.")
	return a
}

func round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}
