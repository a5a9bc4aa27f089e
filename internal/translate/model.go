package translate

import "strings"

// Model is a parsed public model id. Variant suffixes select upstream
// dispatch flags: -thinking raises the thinking level, -max enables max
// mode, -online enables web search.
type Model struct {
	ID       string
	Base     string
	Thinking bool
	Max      bool
	Online   bool
}

// ParseModel splits variant suffixes off a public model id. Suffixes
// compose in any order ("gpt-5-thinking-online").
func ParseModel(id string) Model {
	m := Model{ID: id, Base: id}
	for {
		switch {
		case strings.HasSuffix(m.Base, "-thinking"):
			m.Base = strings.TrimSuffix(m.Base, "-thinking")
			m.Thinking = true
		case strings.HasSuffix(m.Base, "-max"):
			m.Base = strings.TrimSuffix(m.Base, "-max")
			m.Max = true
		case strings.HasSuffix(m.Base, "-online"):
			m.Base = strings.TrimSuffix(m.Base, "-online")
			m.Online = true
		default:
			return m
		}
	}
}

// WithThinking forces the -thinking variant, used when an Anthropic
// request enables extended thinking explicitly.
func (m Model) WithThinking() Model {
	m.Thinking = true
	return m
}
