package analytics

import (
	"encoding/json"
	"strings"
)

// WeakAreaFormat tells how a stored weak-area field was encoded.
type WeakAreaFormat int

const (
	WeakAreasJSON WeakAreaFormat = iota
	WeakAreasCSV
)

// WeakAreas is a decoded weak-area field. Historical rows hold either a JSON
// list of strings or a comma-separated string.
type WeakAreas struct {
	Format WeakAreaFormat
	List   []string
	Raw    string
}

// ParseWeakAreas decodes a stored weak-area field, trying JSON first. A JSON
// string is unquoted and read as comma-separated text.
func ParseWeakAreas(raw string) WeakAreas {
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err == nil {
		return WeakAreas{Format: WeakAreasJSON, List: list, Raw: raw}
	}
	var text string
	if err := json.Unmarshal([]byte(raw), &text); err == nil {
		return WeakAreas{Format: WeakAreasCSV, Raw: text}
	}
	return WeakAreas{Format: WeakAreasCSV, Raw: raw}
}

// Areas returns the non-empty area names in field order.
func (w WeakAreas) Areas() []string {
	var src []string
	switch w.Format {
	case WeakAreasJSON:
		src = w.List
	case WeakAreasCSV:
		src = strings.Split(w.Raw, ",")
	}
	var out []string
	for _, a := range src {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}
