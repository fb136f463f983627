package course

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed profile.yaml
var defaultProfile []byte

// ErrInvalidProfile is returned when a profile document lacks required fields.
var ErrInvalidProfile = errors.New("invalid course profile")

// Profile captures the teaching assistant's course, identity and sidebar content.
type Profile struct {
	ID                 string          `yaml:"id" json:"id"`
	Name               string          `yaml:"name" json:"name"`
	Title              string          `yaml:"title" json:"title"`
	Course             string          `yaml:"course" json:"course"`
	Instructor         string          `yaml:"instructor" json:"instructor"`
	Institution        string          `yaml:"institution" json:"institution"`
	WelcomeLine        string          `yaml:"welcomeLine" json:"welcomeLine"`
	Footer             string          `yaml:"footer" json:"footer"`
	InputPlaceholder   string          `yaml:"inputPlaceholder" json:"inputPlaceholder"`
	Refusal            string          `yaml:"refusal" json:"-"`
	Philosophy         []string        `yaml:"philosophy" json:"philosophy"`
	SuggestedQuestions []string        `yaml:"suggestedQuestions" json:"suggestedQuestions"`
	UseCases           []string        `yaml:"useCases" json:"-"`
	Pedagogy           []PedagogyBlock `yaml:"pedagogy" json:"-"`
	Content            string          `yaml:"content" json:"-"`
}

// PedagogyBlock groups the behaviour rules the assistant follows.
type PedagogyBlock struct {
	Title string   `yaml:"title"`
	Rules []string `yaml:"rules"`
}

// Seed returns the built-in Integrated Marketing Communications profile.
func Seed() Profile {
	profile, err := Decode(strings.NewReader(string(defaultProfile)))
	if err != nil {
		panic(fmt.Sprintf("embedded course profile: %v", err))
	}
	return profile
}

// LoadFile reads a profile from a YAML file on disk.
func LoadFile(path string) (Profile, error) {
	f, err := os.Open(path)
	if err != nil {
		return Profile{}, fmt.Errorf("open course profile: %w", err)
	}
	defer f.Close()

	return Decode(f)
}

// Decode parses and validates a YAML profile document.
func Decode(r io.Reader) (Profile, error) {
	var profile Profile
	if err := yaml.NewDecoder(r).Decode(&profile); err != nil {
		return Profile{}, fmt.Errorf("decode course profile: %w", err)
	}
	if err := profile.Validate(); err != nil {
		return Profile{}, err
	}
	return profile, nil
}

// Validate checks the fields the prompt and sidebar cannot do without.
func (p Profile) Validate() error {
	switch {
	case strings.TrimSpace(p.ID) == "":
		return fmt.Errorf("%w: id is required", ErrInvalidProfile)
	case strings.TrimSpace(p.Title) == "":
		return fmt.Errorf("%w: title is required", ErrInvalidProfile)
	case strings.TrimSpace(p.Content) == "":
		return fmt.Errorf("%w: content is required", ErrInvalidProfile)
	}
	return nil
}

// Suggestion returns the suggested question at index.
func (p Profile) Suggestion(index int) (string, bool) {
	if index < 0 || index >= len(p.SuggestedQuestions) {
		return "", false
	}
	return p.SuggestedQuestions[index], true
}
