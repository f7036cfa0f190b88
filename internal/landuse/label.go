// Package landuse classifies detections by the land-use polygon they fall
// in and fetches those polygons from an ordered chain of providers.
package landuse

import (
	"fmt"
	"strings"
	"unicode"
)

// Label is a land-use class.
type Label string

const (
	Unknown     Label = "unknown"
	Residential Label = "residential"
	Commercial  Label = "commercial"
	Industrial  Label = "industrial"
)

// Labels lists every label from highest to lowest priority.
var Labels = []Label{Industrial, Commercial, Residential, Unknown}

// Priority ranks labels for overlapping polygons: industrial wins.
func (l Label) Priority() int {
	switch l {
	case Industrial:
		return 3
	case Commercial:
		return 2
	case Residential:
		return 1
	}
	return 0
}

// ParseLabel accepts the four canonical names and maps anything else to Unknown.
func ParseLabel(s string) Label {
	switch Label(strings.ToLower(strings.TrimSpace(s))) {
	case Residential:
		return Residential
	case Commercial:
		return Commercial
	case Industrial:
		return Industrial
	}
	return Unknown
}

// Mapper derives a label from a feature's properties.
type Mapper func(props map[string]interface{}) Label

// genericKeys are the property names checked by GenericMapper, in order.
var genericKeys = []string{"landuse", "uso", "classe", "class", "tipo", "category", "categoria"}

// GenericMapper inspects common land-use property names for keywords.
func GenericMapper(props map[string]interface{}) Label {
	for _, key := range genericKeys {
		v := propString(props, key)
		if v == "" {
			continue
		}
		switch {
		case hasWordPrefix(v, "res") || containsAny(v, "morad", "habita"):
			return Residential
		case containsAny(v, "ind", "fabr", "wareh", "logist"):
			return Industrial
		case containsAny(v, "com", "serv", "shop", "office", "varej"):
			return Commercial
		}
	}
	return Unknown
}

// rioUsage maps the DATA.RIO "usoagregad" attribute.
var rioUsage = map[string]Label{
	"áreas residenciais": Residential,
	"favela":             Residential,

	"áreas de comércio e serviços":                     Commercial,
	"áreas de educação e saúde":                        Commercial,
	"áreas institucionais e de infraestrutura pública": Commercial,
	"áreas de lazer":                                   Commercial,

	"áreas industriais":           Industrial,
	"áreas de exploração mineral": Industrial,
	"áreas de transporte":         Industrial,

	"áreas não edificadas": Unknown,
	"áreas agrícolas":      Unknown,
	"afloramentos rochosos e depósitos sedimentares": Unknown,
	"cobertura arbórea e arbustiva":                  Unknown,
	"cobertura gramíneo lenhosa":                     Unknown,
	"corpos hídricos":                                Unknown,
	"áreas sujeitas à inundação":                     Unknown,
}

// RioMapper maps the Rio de Janeiro municipal land-use layer.
func RioMapper(props map[string]interface{}) Label {
	usage := propString(props, "usoagregad")
	if l, ok := rioUsage[usage]; ok {
		return l
	}
	switch {
	case containsAny(usage, "residencial", "favela"):
		return Residential
	case containsAny(usage, "industrial", "indústria"):
		return Industrial
	}
	return Unknown
}

// OSMMapper maps an OpenStreetMap landuse tag.
func OSMMapper(props map[string]interface{}) Label {
	switch propString(props, "landuse") {
	case "residential":
		return Residential
	case "commercial", "retail":
		return Commercial
	case "industrial":
		return Industrial
	}
	return Unknown
}

func propString(props map[string]interface{}, key string) string {
	v, ok := props[key]
	if !ok || v == nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(fmt.Sprint(v)))
}

// hasWordPrefix reports whether any letter run in s starts with prefix, so
// "res. multifamiliar" matches "res" and "forest" does not.
func hasWordPrefix(s, prefix string) bool {
	for _, w := range strings.FieldsFunc(s, func(r rune) bool { return !unicode.IsLetter(r) }) {
		if strings.HasPrefix(w, prefix) {
			return true
		}
	}
	return false
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
