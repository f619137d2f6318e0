package pipeline_yaml

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/davarch/pipeline-lineage/internal/domain"
	"gopkg.in/yaml.v3"
)

const CheckoutTaskID = "6d15af64-176c-496d-b583-fd2ae21d4df4"

type Parser struct{}

func (Parser) Parse(text string) (domain.YamlReferences, error) { return Parse(text) }

// Parse extracts resource declarations and checkout steps from rendered
// pipeline YAML. Only the parts it needs are decoded; everything else in the
// document is ignored.
func Parse(text string) (domain.YamlReferences, error) {
	var doc domain.YamlReferences
	if strings.TrimSpace(text) == "" {
		return doc, nil
	}

	var root yaml.Node
	if err := yaml.Unmarshal([]byte(text), &root); err != nil {
		return doc, fmt.Errorf("parse pipeline yaml: %w", err)
	}
	if len(root.Content) == 0 {
		return doc, nil
	}
	top := deref(root.Content[0])
	if top.Kind != yaml.MappingNode {
		return doc, errors.New("parse pipeline yaml: document is not a mapping")
	}

	if res := lookup(top, "resources"); res != nil {
		for _, n := range items(lookup(res, "pipelines")) {
			doc.Pipelines = append(doc.Pipelines, domain.PipelineResource{
				Alias:   scalar(n, "pipeline"),
				Source:  scalar(n, "source"),
				Project: scalar(n, "project"),
			})
		}
		for _, n := range items(lookup(res, "repositories")) {
			doc.Repositories = append(doc.Repositories, domain.RepositoryResource{
				Alias: scalar(n, "repository"),
				Type:  scalar(n, "type"),
				Name:  scalar(n, "name"),
				Ref:   scalar(n, "ref"),
			})
		}
	}

	walkSteps(top, func(step *yaml.Node) {
		if c, ok := checkout(step); ok {
			doc.Checkouts = append(doc.Checkouts, c)
		}
	})

	return doc, nil
}

func checkout(step *yaml.Node) (domain.CheckoutStep, bool) {
	c := domain.CheckoutStep{Enabled: true, Condition: scalar(step, "condition")}
	if v := scalar(step, "enabled"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Enabled = b
		}
	}

	if lookup(step, "checkout") != nil {
		c.Repository = scalar(step, "checkout")
		return c, true
	}

	task := scalar(step, "task")
	if task == "" {
		return c, false
	}
	id, _, _ := strings.Cut(task, "@")
	if !strings.EqualFold(strings.TrimSpace(id), CheckoutTaskID) {
		return c, false
	}
	c.Repository = scalar(lookup(step, "inputs"), "repository")
	return c, true
}

// walkSteps calls fn for every item of every steps sequence in the tree,
// whether it sits at the top level, under jobs or under stages.
func walkSteps(n *yaml.Node, fn func(*yaml.Node)) {
	n = deref(n)
	if n == nil {
		return
	}
	switch n.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			k, v := n.Content[i], deref(n.Content[i+1])
			if k.Value == "resources" {
				continue
			}
			if k.Value == "steps" && v != nil && v.Kind == yaml.SequenceNode {
				for _, s := range v.Content {
					if s = deref(s); s.Kind == yaml.MappingNode {
						fn(s)
					}
				}
				continue
			}
			walkSteps(v, fn)
		}
	case yaml.SequenceNode, yaml.DocumentNode:
		for _, c := range n.Content {
			walkSteps(c, fn)
		}
	}
}

func deref(n *yaml.Node) *yaml.Node {
	for n != nil && n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	return n
}

func lookup(m *yaml.Node, key string) *yaml.Node {
	m = deref(m)
	if m == nil || m.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return deref(m.Content[i+1])
		}
	}
	return nil
}

func scalar(m *yaml.Node, key string) string {
	n := lookup(m, key)
	if n == nil || n.Kind != yaml.ScalarNode {
		return ""
	}
	return strings.TrimSpace(n.Value)
}

func items(seq *yaml.Node) []*yaml.Node {
	if seq == nil || seq.Kind != yaml.SequenceNode {
		return nil
	}
	out := make([]*yaml.Node, 0, len(seq.Content))
	for _, c := range seq.Content {
		if c = deref(c); c.Kind == yaml.MappingNode {
			out = append(out, c)
		}
	}
	return out
}
