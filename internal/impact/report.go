package impact

import (
	"strings"
	"time"

	"github.com/jengzang/solarscan-backend-go/internal/landuse"
)

// Report is the per-substation summary delivered to grid planners.
type Report struct {
	SubstationID       string  `json:"id_subestacao"`
	Lat                float64 `json:"latitude_sub"`
	Lon                float64 `json:"longitude_sub"`
	PredominantProfile string  `json:"perfil_predominante"`
	PctResidential     float64 `json:"%_residencial"`
	PctIndustrial      float64 `json:"%_industrial"`
	PctCommercial      float64 `json:"%_comercial"`
	PanelCount         int     `json:"qnt_aprox_placa"`
	Penetration        string  `json:"penetracao_mmgd"`
	DuckCurveRisk      string  `json:"risco_duck_curve"`
	Timestamp          string  `json:"timestamp_processamento"`
	PipelineVersion    string  `json:"versao_pipeline"`
}

// NewReport assembles a report. panelCount is the deduplicated detection
// count; counts are the labeled counts of the joined detections.
func NewReport(substationID string, lat, lon float64, counts map[landuse.Label]int, panelCount int, a Assessment, version string, now time.Time) Report {
	return Report{
		SubstationID:       substationID,
		Lat:                round(lat, 6),
		Lon:                round(lon, 6),
		PredominantProfile: PredominantProfile(counts, panelCount),
		PctResidential:     a.Percentages[landuse.Residential],
		PctIndustrial:      a.Percentages[landuse.Industrial],
		PctCommercial:      a.Percentages[landuse.Commercial],
		PanelCount:         panelCount,
		Penetration:        a.Penetration,
		DuckCurveRisk:      a.DuckCurveRisk,
		Timestamp:          now.UTC().Format(time.RFC3339),
		PipelineVersion:    version,
	}
}

// PredominantProfile returns the most frequent label in upper case. Ties go
// to the higher-priority label.
func PredominantProfile(counts map[landuse.Label]int, panelCount int) string {
	if panelCount == 0 {
		return Undefined
	}
	best, bestN := landuse.Unknown, -1
	for _, l := range landuse.Labels {
		if n := counts[l]; n > bestN {
			best, bestN = l, n
		}
	}
	if bestN <= 0 {
		return Undefined
	}
	return strings.ToUpper(string(best))
}
