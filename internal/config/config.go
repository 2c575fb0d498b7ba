package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models studyline.yml for one journey.
type Config struct {
	Journey struct {
		ID   string `yaml:"id" json:"id"`
		Exam string `yaml:"exam" json:"exam"`
	} `yaml:"journey" json:"journey"`
	Modalities struct {
		Catalog map[string]struct {
			Description string `yaml:"description" json:"description"`
		} `yaml:"catalog" json:"catalog"`
	} `yaml:"modalities" json:"modalities"`
	Review struct {
		// OffsetsDays is the spaced-repetition cadence relative to a study
		// session, in calendar days.
		OffsetsDays []int `yaml:"offsets_days" json:"offsets_days"`
	} `yaml:"review" json:"review"`
	Quota struct {
		FreeDailyQuizzes int `yaml:"free_daily_quizzes" json:"free_daily_quizzes"`
	} `yaml:"quota" json:"quota"`
	AI struct {
		Model         string `yaml:"model" json:"model"`
		QuizQuestions int    `yaml:"quiz_questions" json:"quiz_questions"`
	} `yaml:"ai" json:"ai"`
	Webhooks []WebhookConfig `yaml:"webhooks" json:"webhooks,omitempty"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url" json:"url"`
	Events         []string `yaml:"events" json:"events,omitempty"`
	Secret         string   `yaml:"secret" json:"secret,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds" json:"timeout_seconds,omitempty"`
	Enabled        *bool    `yaml:"enabled" json:"enabled,omitempty"`
}

// Load reads and validates config from the workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with sl journey config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Journey.ID == "" {
		return fmt.Errorf("config.journey.id is required")
	}
	if len(c.Review.OffsetsDays) == 0 {
		return fmt.Errorf("config.review.offsets_days is required")
	}
	prev := 0
	for _, d := range c.Review.OffsetsDays {
		if d <= 0 {
			return fmt.Errorf("review offset %d must be positive", d)
		}
		if d <= prev {
			return fmt.Errorf("review offsets must be strictly ascending")
		}
		prev = d
	}
	if c.Quota.FreeDailyQuizzes < 0 {
		return fmt.Errorf("config.quota.free_daily_quizzes must not be negative")
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("webhook %d has empty url", i)
		}
	}
	for name := range c.Modalities.Catalog {
		if name == "" {
			return fmt.Errorf("modalities.catalog contains empty modality name")
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "studyline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(journeyID string) string {
	return fmt.Sprintf(defaultTemplate, journeyID)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct for a journey. The template is
// compiled in, so a decode failure is a broken build and panics.
func Default(journeyID string) *Config {
	var cfg Config
	cfg.Journey.ID = journeyID
	if err := yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, journeyID))).Decode(&cfg); err != nil {
		panic(fmt.Sprintf("default config template: %v", err))
	}
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `journey:
  id: %s
  exam: ""

modalities:
  catalog:
    pdf:
      description: "Theory reading (PDF / book)"
    video:
      description: "Video lesson"
    law:
      description: "Statute / legislation reading"
    questions:
      description: "Practice question batch"
    summary:
      description: "Own summary written"

review:
  offsets_days: [1, 7, 30]

quota:
  free_daily_quizzes: 3

ai:
  model: gemini-2.0-flash
  quiz_questions: 5
`
