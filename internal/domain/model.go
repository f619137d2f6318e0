package domain

import (
	"sort"
	"strings"
	"time"
)

type ProcessKind int

const (
	ProcessClassic ProcessKind = 1
	ProcessYaml    ProcessKind = 2
)

func (k ProcessKind) String() string {
	switch k {
	case ProcessClassic:
		return "classic"
	case ProcessYaml:
		return "yaml"
	default:
		return "unknown"
	}
}

type TriggerType string

const (
	TriggerBuildCompletion TriggerType = "buildCompletion"
	TriggerContinuousInt   TriggerType = "continuousIntegration"
	TriggerSchedule        TriggerType = "schedule"
)

const (
	TaskDefinitionTask     = "task"
	TaskDefinitionMetaTask = "metaTask"
)

const RepositoryTypeGit = "TfsGit"

type ProjectRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (p ProjectRef) Key() string {
	if p.ID != "" {
		return strings.ToLower(p.ID)
	}
	return strings.ToLower(p.Name)
}

func (p ProjectRef) Matches(s string) bool {
	return s != "" && (strings.EqualFold(s, p.ID) || strings.EqualFold(s, p.Name))
}

type Trigger struct {
	Type       TriggerType `json:"type"`
	Definition struct {
		ID        string `json:"id"`
		ProjectID string `json:"project_id,omitempty"`
	} `json:"definition"`
}

type TaskRef struct {
	ID             string `json:"id"`
	Version        string `json:"version,omitempty"`
	DefinitionType string `json:"definition_type,omitempty"`
}

type Step struct {
	DisplayName string            `json:"display_name,omitempty"`
	Enabled     bool              `json:"enabled"`
	Task        TaskRef           `json:"task"`
	Inputs      map[string]string `json:"inputs,omitempty"`
}

type Phase struct {
	Name  string `json:"name,omitempty"`
	Steps []Step `json:"steps,omitempty"`
}

// TaskGroup is a reusable bundle of steps referenced from a classic pipeline
// through a metaTask step.
type TaskGroup struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
	Steps   []Step `json:"steps,omitempty"`
}

type RepositoryRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
	URL  string `json:"url,omitempty"`
}

// PipelineDefinition is a read-only snapshot of a build definition. ID is
// unique within Project; Name is not.
type PipelineDefinition struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Project      ProjectRef     `json:"project"`
	Kind         ProcessKind    `json:"kind"`
	Path         string         `json:"path,omitempty"`
	YamlFilename string         `json:"yaml_filename,omitempty"`
	Triggers     []Trigger      `json:"triggers,omitempty"`
	Phases       []Phase        `json:"phases,omitempty"`
	Repository   *RepositoryRef `json:"repository,omitempty"`
}

type PipelineKey struct {
	Project string
	ID      string
}

func (p PipelineDefinition) Key() PipelineKey {
	return PipelineKey{Project: p.Project.Key(), ID: p.ID}
}

type RepositoryDefinition struct {
	ID      string     `json:"id"`
	Name    string     `json:"name"`
	Project ProjectRef `json:"project"`
	URL     string     `json:"url,omitempty"`
}

// Key is the identity of a repository: its id when known, otherwise the
// (project, name) natural key.
func (r RepositoryDefinition) Key() string {
	if r.ID != "" {
		return strings.ToLower(r.ID)
	}
	return r.Project.Key() + "/" + strings.ToLower(r.Name)
}

// Resolution is everything that can feed code into one pipeline.
type Resolution struct {
	Pipeline     PipelineDefinition     `json:"pipeline"`
	Pipelines    []PipelineDefinition   `json:"linked_pipelines"`
	Repositories []RepositoryDefinition `json:"linked_repositories"`
}

type ScanTarget struct {
	Project    string
	PipelineID string
}

type ScanFailure struct {
	Project    string `json:"project"`
	PipelineID string `json:"pipeline_id,omitempty"`
	Error      string `json:"error"`
}

type ScanReport struct {
	ScanID       string        `json:"scan_id"`
	Organization string        `json:"organization"`
	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   time.Time     `json:"finished_at"`
	Results      []Resolution  `json:"results"`
	Failures     []ScanFailure `json:"failures,omitempty"`
}

func SortPipelines(ps []PipelineDefinition) {
	sort.Slice(ps, func(i, j int) bool {
		a, b := ps[i].Key(), ps[j].Key()
		if a.Project != b.Project {
			return a.Project < b.Project
		}
		return a.ID < b.ID
	})
}

func SortRepositories(rs []RepositoryDefinition) {
	sort.Slice(rs, func(i, j int) bool { return rs[i].Key() < rs[j].Key() })
}
