package detection

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// boxListKeys hold a 4-element x1,y1,x2,y2 list.
var boxListKeys = []string{"bbox", "xyxy", "box"}

// Normalize converts one externally shaped detection into the canonical
// form. Accepted box shapes, in order of preference:
//
//	bbox | xyxy | box : [x1, y1, x2, y2] (list or {x1,y1,x2,y2} object)
//	x1, y1, x2, y2
//	xywh              : [x, y, w, h]
//	x, y, width, height
//
// A detection without any recognizable box is returned with a nil Box so
// the caller can still geolocate it from its tile.
func Normalize(raw map[string]interface{}) Detection {
	d := Detection{
		Confidence: firstNumber(raw, "confidence", "conf", "score"),
		ClassID:    -1,
	}
	if v, ok := number(raw["class_id"]); ok {
		d.ClassID = int(v)
	} else if v, ok := number(raw["cls"]); ok {
		d.ClassID = int(v)
	}
	switch c := raw["class"].(type) {
	case string:
		d.Class = c
	case float64:
		d.ClassID = int(c)
	}

	if b, ok := extractBox(raw); ok {
		d.Box = &b
	}
	return d
}

// NormalizeJSON decodes a detector payload. Both a bare array and an object
// with a "detections" array are accepted.
func NormalizeJSON(data []byte) ([]Detection, error) {
	var list []map[string]interface{}
	if err := json.Unmarshal(data, &list); err != nil {
		var wrapped struct {
			Detections []map[string]interface{} `json:"detections"`
		}
		if err2 := json.Unmarshal(data, &wrapped); err2 != nil {
			return nil, fmt.Errorf("failed to decode detections: %w", err)
		}
		list = wrapped.Detections
	}

	out := make([]Detection, 0, len(list))
	for _, raw := range list {
		out = append(out, Normalize(raw))
	}
	return out, nil
}

func extractBox(raw map[string]interface{}) (Box, bool) {
	for _, k := range boxListKeys {
		if v, ok := raw[k]; ok {
			if b, ok := boxFromValue(v); ok {
				return b, true
			}
		}
	}

	if x1, ok := number(raw["x1"]); ok {
		y1, ok1 := number(raw["y1"])
		x2, ok2 := number(raw["x2"])
		y2, ok3 := number(raw["y2"])
		if ok1 && ok2 && ok3 {
			return canonical(x1, y1, x2, y2), true
		}
	}

	if v, ok := raw["xywh"]; ok {
		if q, ok := quad(v); ok {
			return canonical(q[0], q[1], q[0]+q[2], q[1]+q[3]), true
		}
	}

	if x, ok := number(raw["x"]); ok {
		y, ok1 := number(raw["y"])
		w, ok2 := number(raw["width"])
		h, ok3 := number(raw["height"])
		if ok1 && ok2 && ok3 {
			return canonical(x, y, x+w, y+h), true
		}
	}
	return Box{}, false
}

func boxFromValue(v interface{}) (Box, bool) {
	if m, ok := v.(map[string]interface{}); ok {
		return extractBox(m)
	}
	q, ok := quad(v)
	if !ok {
		return Box{}, false
	}
	return canonical(q[0], q[1], q[2], q[3]), true
}

func quad(v interface{}) ([4]float64, bool) {
	var q [4]float64
	list, ok := v.([]interface{})
	if !ok {
		if fl, ok := v.([]float64); ok && len(fl) == 4 {
			copy(q[:], fl)
			return q, true
		}
		return q, false
	}
	if len(list) != 4 {
		return q, false
	}
	for i, item := range list {
		f, ok := number(item)
		if !ok {
			return q, false
		}
		q[i] = f
	}
	return q, true
}

func canonical(x1, y1, x2, y2 float64) Box {
	if x2 < x1 {
		x1, x2 = x2, x1
	}
	if y2 < y1 {
		y1, y2 = y2, y1
	}
	return Box{X1: x1, Y1: y1, X2: x2, Y2: y2}
}

func firstNumber(raw map[string]interface{}, keys ...string) float64 {
	for _, k := range keys {
		if v, ok := number(raw[k]); ok {
			return v
		}
	}
	return 0
}

func number(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}
