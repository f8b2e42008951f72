package domain

// MessageExample is one line of a sample exchange in a character definition.
type MessageExample struct {
	User    string `json:"user" yaml:"user"`
	Content struct {
		Text string `json:"text" yaml:"text"`
	} `json:"content" yaml:"content"`
}

// Style groups adjectives describing how a character writes.
type Style struct {
	All  []string `json:"all,omitempty" yaml:"all,omitempty"`
	Chat []string `json:"chat,omitempty" yaml:"chat,omitempty"`
	Post []string `json:"post,omitempty" yaml:"post,omitempty"`
}

// Character is the static persona an agent speaks as.
type Character struct {
	Name            string             `json:"name" yaml:"name"`
	AgentID         string             `json:"agentId" yaml:"agentId"`
	System          string             `json:"system" yaml:"system"`
	Bio             []string           `json:"bio,omitempty" yaml:"bio,omitempty"`
	Lore            []string           `json:"lore,omitempty" yaml:"lore,omitempty"`
	MessageExamples [][]MessageExample `json:"messageExamples,omitempty" yaml:"messageExamples,omitempty"`
	PostExamples    []string           `json:"postExamples,omitempty" yaml:"postExamples,omitempty"`
	Topics          []string           `json:"topics,omitempty" yaml:"topics,omitempty"`
	Style           Style              `json:"style" yaml:"style"`
	Adjectives      []string           `json:"adjectives,omitempty" yaml:"adjectives,omitempty"`

	// Routes lists keyword hints per route name, used by keyword selection.
	Routes map[string][]string `json:"routes,omitempty" yaml:"routes,omitempty"`
}
