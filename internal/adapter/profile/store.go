package profile

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"toggl-companion/internal/domain"
)

// catalog mirrors the on-disk profiles file. Credentials and preferences are
// managed outside the core; values here are treated as already validated.
type catalog struct {
	Profiles []rawProfile `yaml:"profiles"`
}

type rawProfile struct {
	Name             string `yaml:"name"`
	APIToken         string `yaml:"api_token"`
	WorkspaceID      int64  `yaml:"workspace_id"`
	DefaultProjectID *int64 `yaml:"default_project_id"`
	DateFormat       string `yaml:"date_format"`
	TimeFormat       string `yaml:"time_format"`
	WeekStartDay     string `yaml:"week_start_day"`
}

// Load reads the profile catalog from a YAML file.
func Load(path string) ([]domain.Profile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}
	var cat catalog
	if err := yaml.Unmarshal(raw, &cat); err != nil {
		return nil, fmt.Errorf("parse profiles: %w", err)
	}
	if len(cat.Profiles) == 0 {
		return nil, fmt.Errorf("no profiles in %s", path)
	}
	out := make([]domain.Profile, 0, len(cat.Profiles))
	for i, p := range cat.Profiles {
		if p.Name == "" {
			return nil, fmt.Errorf("profile %d: name is required", i)
		}
		if p.APIToken == "" {
			return nil, fmt.Errorf("profile %q: api_token is required", p.Name)
		}
		if p.WorkspaceID == 0 {
			return nil, fmt.Errorf("profile %q: workspace_id is required", p.Name)
		}
		day, err := parseWeekday(p.WeekStartDay)
		if err != nil {
			return nil, fmt.Errorf("profile %q: %w", p.Name, err)
		}
		var project *int64
		if p.DefaultProjectID != nil {
			id := *p.DefaultProjectID
			project = &id
		}
		out = append(out, domain.Profile{
			Name:             p.Name,
			APIToken:         p.APIToken,
			WorkspaceID:      p.WorkspaceID,
			DefaultProjectID: project,
			DateFormat:       p.DateFormat,
			TimeFormat:       p.TimeFormat,
			WeekStartDay:     day,
		})
	}
	return out, nil
}

func parseWeekday(s string) (time.Weekday, error) {
	switch strings.ToLower(s) {
	case "", "monday":
		return time.Monday, nil
	case "tuesday":
		return time.Tuesday, nil
	case "wednesday":
		return time.Wednesday, nil
	case "thursday":
		return time.Thursday, nil
	case "friday":
		return time.Friday, nil
	case "saturday":
		return time.Saturday, nil
	case "sunday":
		return time.Sunday, nil
	}
	return time.Monday, fmt.Errorf("invalid week_start_day %q", s)
}
