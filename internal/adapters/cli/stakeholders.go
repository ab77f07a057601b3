package cli

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/safety-report-retrieval/internal/core/domain"
	"github.com/kirillkom/safety-report-retrieval/internal/core/usecase"
)

type stakeholderFile struct {
	Stakeholders []struct {
		ID       string   `yaml:"id"`
		Role     string   `yaml:"role"`
		Concerns []string `yaml:"concerns"`
	} `yaml:"stakeholders"`
}

// loadStakeholders reads a YAML stakeholder registry. Ids missing from the
// file, or every id when path is empty, resolve to a bare stakeholder.
func loadStakeholders(path string) (usecase.StakeholderResolver, error) {
	known := map[string]domain.Stakeholder{}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read stakeholders: %w", err)
		}
		var file stakeholderFile
		if err := yaml.Unmarshal(raw, &file); err != nil {
			return nil, fmt.Errorf("decode stakeholders: %w", err)
		}
		for i, s := range file.Stakeholders {
			if s.ID == "" {
				return nil, domain.WrapError(domain.ErrInvalidInput, "load stakeholders", fmt.Errorf("entry %d has no id", i))
			}
			known[s.ID] = domain.NewStakeholder(s.ID, s.Role, s.Concerns)
		}
	}
	return func(id string) domain.Stakeholder {
		if s, ok := known[id]; ok {
			return s
		}
		return domain.NewStakeholder(id, "", nil)
	}, nil
}
