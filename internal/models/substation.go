package models

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// SubstationInput is one analysis request: a substation and the radius
// around it to scan.
type SubstationInput struct {
	ID      string  `json:"id_subestacao" form:"id_subestacao" binding:"required"`
	Lat     float64 `json:"lat" form:"lat"`
	Lon     float64 `json:"lon" form:"lon"`
	RadiusM float64 `json:"raio_m" form:"raio_m"`
}

// ValidationError reports every problem found in one input.
type ValidationError struct {
	ID       string   `json:"id_subestacao,omitempty"`
	Problems []string `json:"problems"`
}

func (e *ValidationError) Error() string {
	if e.ID == "" {
		return "invalid input: " + strings.Join(e.Problems, "; ")
	}
	return fmt.Sprintf("invalid input %s: %s", e.ID, strings.Join(e.Problems, "; "))
}

// Normalize trims the ID and applies the default radius when none is given.
func (in *SubstationInput) Normalize(defaultRadiusM float64) {
	in.ID = strings.TrimSpace(in.ID)
	if in.RadiusM == 0 {
		in.RadiusM = defaultRadiusM
	}
}

// Validate checks coordinates and radius. maxRadiusM <= 0 disables the upper
// bound.
func (in SubstationInput) Validate(maxRadiusM float64) error {
	var problems []string
	if strings.TrimSpace(in.ID) == "" {
		problems = append(problems, "id_subestacao is required")
	}
	if math.IsNaN(in.Lat) || in.Lat < -90 || in.Lat > 90 {
		problems = append(problems, fmt.Sprintf("lat out of range: %v", in.Lat))
	}
	if math.IsNaN(in.Lon) || in.Lon < -180 || in.Lon > 180 {
		problems = append(problems, fmt.Sprintf("lon out of range: %v", in.Lon))
	}
	switch {
	case math.IsNaN(in.RadiusM) || in.RadiusM <= 0:
		problems = append(problems, fmt.Sprintf("raio_m must be positive: %v", in.RadiusM))
	case maxRadiusM > 0 && in.RadiusM > maxRadiusM:
		problems = append(problems, fmt.Sprintf("raio_m exceeds %v: %v", maxRadiusM, in.RadiusM))
	}
	if len(problems) == 0 {
		return nil
	}
	return &ValidationError{ID: in.ID, Problems: problems}
}

// IsValidationError reports whether err came from Validate.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
