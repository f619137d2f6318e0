package azdo_http

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/davarch/pipeline-lineage/internal/domain"
)

type projectDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type stepDTO struct {
	DisplayName string `json:"displayName"`
	Enabled     bool   `json:"enabled"`
	Task        struct {
		ID             string `json:"id"`
		VersionSpec    string `json:"versionSpec"`
		DefinitionType string `json:"definitionType"`
	} `json:"task"`
	Inputs map[string]inputValue `json:"inputs"`
}

// inputValue accepts task inputs sent as strings, numbers or booleans.
type inputValue string

func (v *inputValue) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*v = inputValue(s)
		return nil
	}
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch t := raw.(type) {
	case nil:
		*v = ""
	case float64:
		*v = inputValue(strconv.FormatFloat(t, 'f', -1, 64))
	case bool:
		*v = inputValue(strconv.FormatBool(t))
	default:
		*v = inputValue(string(b))
	}
	return nil
}

func (s stepDTO) toDomain() domain.Step {
	inputs := make(map[string]string, len(s.Inputs))
	for k, v := range s.Inputs {
		inputs[k] = string(v)
	}
	return domain.Step{
		DisplayName: s.DisplayName,
		Enabled:     s.Enabled,
		Task: domain.TaskRef{
			ID:             s.Task.ID,
			Version:        s.Task.VersionSpec,
			DefinitionType: s.Task.DefinitionType,
		},
		Inputs: inputs,
	}
}

type definitionDTO struct {
	ID      int64      `json:"id"`
	Name    string     `json:"name"`
	Path    string     `json:"path"`
	Project projectDTO `json:"project"`
	Process struct {
		Type         int    `json:"type"`
		YamlFilename string `json:"yamlFilename"`
		Phases       []struct {
			Name  string    `json:"name"`
			Steps []stepDTO `json:"steps"`
		} `json:"phases"`
	} `json:"process"`
	Triggers []struct {
		TriggerType string `json:"triggerType"`
		Definition  *struct {
			ID      int64       `json:"id"`
			Project *projectDTO `json:"project"`
		} `json:"definition"`
	} `json:"triggers"`
	Repository *struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Type string `json:"type"`
		URL  string `json:"url"`
	} `json:"repository"`
}

func (d definitionDTO) toDomain() domain.PipelineDefinition {
	p := domain.PipelineDefinition{
		ID:           strconv.FormatInt(d.ID, 10),
		Name:         d.Name,
		Path:         d.Path,
		Project:      domain.ProjectRef{ID: d.Project.ID, Name: d.Project.Name},
		Kind:         domain.ProcessKind(d.Process.Type),
		YamlFilename: d.Process.YamlFilename,
	}

	for _, ph := range d.Process.Phases {
		phase := domain.Phase{Name: ph.Name}
		for _, s := range ph.Steps {
			phase.Steps = append(phase.Steps, s.toDomain())
		}
		p.Phases = append(p.Phases, phase)
	}

	for _, tr := range d.Triggers {
		var t domain.Trigger
		t.Type = domain.TriggerType(tr.TriggerType)
		if tr.Definition != nil {
			t.Definition.ID = strconv.FormatInt(tr.Definition.ID, 10)
			if tr.Definition.Project != nil {
				t.Definition.ProjectID = tr.Definition.Project.ID
			}
		}
		p.Triggers = append(p.Triggers, t)
	}

	if d.Repository != nil {
		p.Repository = &domain.RepositoryRef{
			ID:   d.Repository.ID,
			Name: d.Repository.Name,
			Type: d.Repository.Type,
			URL:  d.Repository.URL,
		}
	}
	return p
}

type repositoryDTO struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	URL       string     `json:"url"`
	RemoteURL string     `json:"remoteUrl"`
	Project   projectDTO `json:"project"`
}

func (r repositoryDTO) toDomain() domain.RepositoryDefinition {
	u := r.RemoteURL
	if u == "" {
		u = r.URL
	}
	return domain.RepositoryDefinition{
		ID:      r.ID,
		Name:    r.Name,
		Project: domain.ProjectRef{ID: r.Project.ID, Name: r.Project.Name},
		URL:     u,
	}
}

type versionDTO struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
	Patch int `json:"patch"`
}

func (v versionDTO) less(o versionDTO) bool {
	if v.Major != o.Major {
		return v.Major < o.Major
	}
	if v.Minor != o.Minor {
		return v.Minor < o.Minor
	}
	return v.Patch < o.Patch
}

func (v versionDTO) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

type taskGroupDTO struct {
	ID      string     `json:"id"`
	Name    string     `json:"name"`
	Version versionDTO `json:"version"`
	Tasks   []stepDTO  `json:"tasks"`
}

// pickTaskGroup returns the newest revision whose major version matches
// versionSpec, or the newest overall when the spec pins no major.
func pickTaskGroup(groups []taskGroupDTO, versionSpec string) (taskGroupDTO, bool) {
	want, pinned := domain.MajorVersion(versionSpec)
	var (
		best  taskGroupDTO
		found bool
	)
	for _, g := range groups {
		if pinned && g.Version.Major != want {
			continue
		}
		if !found || best.Version.less(g.Version) {
			best, found = g, true
		}
	}
	return best, found
}

func (g taskGroupDTO) toDomain() domain.TaskGroup {
	out := domain.TaskGroup{ID: g.ID, Name: g.Name, Version: g.Version.String()}
	for _, s := range g.Tasks {
		out.Steps = append(out.Steps, s.toDomain())
	}
	return out
}
