// Package config resolves the settings of a run from the profile file, the environment
// and built-in defaults. Flags are applied on top by the CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Defaults used when nothing else sets a value.
const (
	DefaultURL      = "mongodb://127.0.0.1:27017"
	DefaultDatabase = "test"
)

// Environment variables read by [Resolve].
const (
	EnvURL        = "MONGO_URL"
	EnvDatabase   = "MONGO_DB"
	EnvAuditTopic = "MUNG_AUDIT_TOPIC"
)

// Color modes.
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

var (
	// ErrUnknownProfile is returned when the selected profile is not on the file.
	ErrUnknownProfile = errors.New("unknown profile")
	// ErrInvalid is returned for invalid settings.
	ErrInvalid = errors.New("invalid config")
)

type (
	// Profile is a named set of settings on the config file.
	// Empty fields are not set.
	Profile struct {
		URL        string `yaml:"url,omitempty"`
		Database   string `yaml:"db,omitempty"`
		Compact    *bool  `yaml:"compact,omitempty"`
		Color      string `yaml:"color,omitempty"`
		AuditTopic string `yaml:"audit_topic,omitempty"`
	}

	// File is the config file, by default at $XDG_CONFIG_HOME/mung/config.yaml:
	//
	//	default:
	//	  url: mongodb://127.0.0.1:27017
	//	profiles:
	//	  local:
	//	    url: sqlite:///home/me/mung.db
	//	    db: scratch
	//	    compact: true
	File struct {
		Default  Profile            `yaml:"default"`
		Profiles map[string]Profile `yaml:"profiles"`
	}

	// Settings are the resolved settings of a run.
	Settings struct {
		URL        string
		Database   string
		Compact    bool
		Color      string
		AuditTopic string
	}
)

// Path returns the path of the default config file.
// Respects XDG_CONFIG_HOME, defaults to ~/.config/mung/config.yaml.
func Path() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "mung", "config.yaml")
}

// LoadFile reads the config file. A missing file is an empty config unless required is true.
func LoadFile(path string, required bool) (File, error) {
	if path == "" {
		return File{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return File{}, nil
		}
		return File{}, fmt.Errorf("reading config: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("%w: parsing %s: %v", ErrInvalid, path, err)
	}
	for name, p := range f.Profiles {
		if err := p.validate(); err != nil {
			return File{}, fmt.Errorf("profile %q: %w", name, err)
		}
	}
	if err := f.Default.validate(); err != nil {
		return File{}, fmt.Errorf("default profile: %w", err)
	}
	return f, nil
}

// LoadDotEnv loads the variables on the .env file at path into the environment.
// Variables already set are not overridden and a missing file is ignored.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// Profile returns the named profile merged over the default one.
// The empty name selects the default profile.
func (f File) Profile(name string) (Profile, error) {
	if name == "" {
		return f.Default, nil
	}
	p, ok := f.Profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
	return f.Default.merge(p), nil
}

// Resolve computes the settings from the profile and the environment, looked up with
// lookupEnv (like [os.LookupEnv]). The environment takes precedence over the profile.
func Resolve(p Profile, lookupEnv func(string) (string, bool)) Settings {
	s := Settings{
		URL:      DefaultURL,
		Database: DefaultDatabase,
		Color:    ColorAuto,
	}
	set(&s.URL, p.URL)
	set(&s.Database, p.Database)
	set(&s.Color, p.Color)
	set(&s.AuditTopic, p.AuditTopic)
	if p.Compact != nil {
		s.Compact = *p.Compact
	}

	if v, ok := lookupEnv(EnvURL); ok {
		set(&s.URL, v)
	}
	if v, ok := lookupEnv(EnvDatabase); ok {
		set(&s.Database, v)
	}
	if v, ok := lookupEnv(EnvAuditTopic); ok {
		set(&s.AuditTopic, v)
	}
	return s
}

// ValidateColor checks that mode is one of the color modes.
func ValidateColor(mode string) error {
	if !slices.Contains([]string{ColorAuto, ColorAlways, ColorNever}, mode) {
		return fmt.Errorf("%w: color must be %s, %s or %s: %q", ErrInvalid, ColorAuto, ColorAlways, ColorNever, mode)
	}
	return nil
}

func (p Profile) merge(over Profile) Profile {
	set(&p.URL, over.URL)
	set(&p.Database, over.Database)
	set(&p.Color, over.Color)
	set(&p.AuditTopic, over.AuditTopic)
	if over.Compact != nil {
		p.Compact = over.Compact
	}
	return p
}

func (p Profile) validate() error {
	if p.Color == "" {
		return nil
	}
	return ValidateColor(p.Color)
}

func set(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
