// Package profile loads the candidate profile scored against every posting.
package profile

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ajolex/job-application-agent/internal/model"
)

// Ensure FileProvider implements model.ProfileProvider.
var _ model.ProfileProvider = (*FileProvider)(nil)

// FileProvider reads a structured YAML profile from disk. The profile
// version is a hash of the file bytes, so any edit to the profile
// invalidates cached match scores.
type FileProvider struct {
	path string
}

// NewFileProvider creates a provider for the profile file at path.
func NewFileProvider(path string) *FileProvider {
	return &FileProvider{path: path}
}

// rawProfile is the YAML shape of the profile file.
type rawProfile struct {
	Name              string   `yaml:"name"`
	Summary           string   `yaml:"summary"`
	Skills            []string `yaml:"skills"`
	Education         string   `yaml:"education"`
	Experience        string   `yaml:"experience"`
	ResearchInterests []string `yaml:"research_interests"`
	YearsOfExperience int      `yaml:"years_of_experience"`
}

// CurrentProfile parses the profile file and derives its version hash.
func (p *FileProvider) CurrentProfile() (model.Profile, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return model.Profile{}, fmt.Errorf("read profile: %w", err)
	}

	var raw rawProfile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return model.Profile{}, fmt.Errorf("parse profile: %w", err)
	}
	if raw.Name == "" {
		return model.Profile{}, fmt.Errorf("profile %s has no name", p.path)
	}

	sum := sha256.Sum256(data)

	return model.Profile{
		Name:              raw.Name,
		Summary:           raw.Summary,
		Skills:            raw.Skills,
		Education:         raw.Education,
		Experience:        raw.Experience,
		ResearchInterests: raw.ResearchInterests,
		YearsOfExperience: raw.YearsOfExperience,
		Version:           hex.EncodeToString(sum[:]),
	}, nil
}
