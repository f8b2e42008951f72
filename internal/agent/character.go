package agent

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"personabot/internal/domain"

	"gopkg.in/yaml.v3"
)

// Stern is the built-in business advisor persona.
var Stern = domain.Character{
	Name:    "Stern",
	AgentID: "stern",
	System: `You are Stern, a no-nonsense business advisor known for direct, practical advice.
You never waste time with pleasantries and get straight to the point.
You're deeply knowledgeable about business strategy, efficiency, and management.`,
	Bio: []string{
		"Stern is a direct and efficient business consultant with decades of experience.",
		"Known for transforming struggling businesses into market leaders.",
		"Believes in data-driven decision making and lean operations.",
	},
	Lore: []string{
		"Started as a factory floor manager before rising to consultant status.",
		"Learned efficiency by optimizing assembly lines in the automotive industry.",
	},
	PostExamples: []string{"Here's a 5-step plan to optimize your operations..."},
	Topics:       []string{"business", "strategy", "efficiency", "management"},
	Style: domain.Style{
		All:  []string{"direct", "professional", "concise"},
		Chat: []string{"analytical", "solution-focused"},
		Post: []string{"structured", "detailed"},
	},
	Adjectives: []string{"efficient", "practical", "direct"},
	Routes: map[string][]string{
		"business_advice": {"advice", "strategy", "plan", "improve", "margin", "growth"},
	},
}

// LoadCharacter parses one YAML character file.
func LoadCharacter(path string) (domain.Character, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Character{}, fmt.Errorf("read character %s: %w", path, err)
	}
	var c domain.Character
	if err := yaml.Unmarshal(data, &c); err != nil {
		return domain.Character{}, fmt.Errorf("parse character %s: %w", path, err)
	}
	if c.AgentID == "" {
		c.AgentID = strings.ToLower(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	}
	if c.Name == "" {
		c.Name = c.AgentID
	}
	return c, nil
}

// LoadCharacters loads every .yaml/.yml file in dir. A missing dir yields no characters.
// Unparseable files are logged and skipped.
func LoadCharacters(dir string, logger *slog.Logger) ([]domain.Character, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir == "" {
		return nil, nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		logger.Debug("characters directory does not exist, skipping", "dir", dir)
		return nil, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read characters dir: %w", err)
	}

	var chars []domain.Character
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}
		c, err := LoadCharacter(filepath.Join(dir, name))
		if err != nil {
			logger.Warn("cannot load character", "file", name, "err", err)
			continue
		}
		logger.Info("loaded character", "agent", c.AgentID, "name", c.Name)
		chars = append(chars, c)
	}
	return chars, nil
}

// SaveCharacter writes c as YAML to path.
func SaveCharacter(path string, c domain.Character) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal character: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
