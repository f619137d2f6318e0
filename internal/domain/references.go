package domain

import "strings"

type PipelineResource struct {
	Alias   string
	Source  string
	Project string
}

type RepositoryResource struct {
	Alias string
	Type  string
	Name  string
	Ref   string
}

func (r RepositoryResource) IsGit() bool { return strings.EqualFold(r.Type, "git") }

type CheckoutStep struct {
	Repository string
	Enabled    bool
	Condition  string
}

type YamlReferences struct {
	Pipelines    []PipelineResource
	Repositories []RepositoryResource
	Checkouts    []CheckoutStep
}
