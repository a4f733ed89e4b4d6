package crewmgr

// Presets gives create_crew's PersonalityPreset field meaning: a named
// starting point for a brand-new agent's trait map. Unknown preset names
// fall back to "balanced".
var Presets = map[string]map[string]float64{
	"balanced": {
		"curiosity":     0.5,
		"patience":      0.5,
		"rigor":         0.5,
		"collaboration": 0.5,
	},
	"specialist": {
		"curiosity":     0.3,
		"patience":      0.4,
		"rigor":         0.8,
		"collaboration": 0.4,
	},
	"maverick": {
		"curiosity":     0.8,
		"patience":      0.2,
		"rigor":         0.4,
		"collaboration": 0.3,
	},
	"diplomat": {
		"curiosity":     0.4,
		"patience":      0.7,
		"rigor":         0.4,
		"collaboration": 0.8,
	},
}

func presetTraits(name string) map[string]float64 {
	p, ok := Presets[name]
	if !ok {
		p = Presets["balanced"]
	}
	out := make(map[string]float64, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
