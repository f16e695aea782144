// Package prompts holds the built-in system prompt presets offered by the
// chat UI.
package prompts

type Preset struct {
	ID      string `json:"id"`
	Label   string `json:"label"`
	Content string `json:"content"`
}

const DefaultID = "default"

var presets = []Preset{
	{
		ID:      DefaultID,
		Label:   "Default helper",
		Content: "You are a helpful assistant. Keep replies brief unless asked for detail.",
	},
	{
		ID:    "research",
		Label: "Research assistant",
		Content: "You are a research assistant. Help the user find, summarize, and compare information " +
			"from multiple sources. Be precise and explicit about uncertainty.",
	},
	{
		ID:    "critic",
		Label: "Critical reviewer",
		Content: "You are a critical reviewer. Identify weaknesses, unstated assumptions, and edge cases " +
			"in the user’s ideas. Be direct but constructive.",
	},
	{
		ID:    "rag",
		Label: "RAG mode",
		Content: "You are a RAG-powered assistant. Always ground your answers in the retrieved documents. " +
			"If the documents lack information, say so explicitly.",
	},
}

// All returns the presets in display order. The slice is a copy.
func All() []Preset {
	out := make([]Preset, len(presets))
	copy(out, presets)
	return out
}

func Lookup(id string) (Preset, bool) {
	for _, p := range presets {
		if p.ID == id {
			return p, true
		}
	}
	return Preset{}, false
}

// Default returns the preset used when none is chosen.
func Default() Preset {
	p, _ := Lookup(DefaultID)
	return p
}
