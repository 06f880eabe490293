// Package ci implements C9's webhook ingestion pipeline: signature
// verification, event classification, pipeline-file parsing, and build
// materialization (spec section 4.7).
package ci

import (
	"fmt"
	"path"

	"gopkg.in/yaml.v2"
)

// EventKind is the closed set of git events a `when` clause matches
// against.
type EventKind string

const (
	EventCommit EventKind = "commit"
	EventTag    EventKind = "tag"
	EventPull   EventKind = "pull"
)

// EnvValue is either a literal value or a reference to a workspace
// secret by name; ResolveSecret rewrites FromSecret in place from a
// name to an ID once it resolves against the workspace's secret set.
type EnvValue struct {
	Value      string
	FromSecret string
}

// UnmarshalYAML implements the untagged one-of `EnvVarValue` from
// original_source/models/src/api/routes/ci/file_format.rs: a bare
// scalar is a literal value, a one-key map is a secret reference.
func (e *EnvValue) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var literal string
	if err := unmarshal(&literal); err == nil {
		e.Value = literal
		return nil
	}
	var ref struct {
		FromSecret string `yaml:"from_secret"`
	}
	if err := unmarshal(&ref); err != nil {
		return fmt.Errorf("environment value must be a string or {from_secret: ...}: %w", err)
	}
	e.FromSecret = ref.FromSecret
	return nil
}

// When selects which branch and event combinations route through a
// decision step.
type When struct {
	Branch []string    `yaml:"branch"`
	Event  []EventKind `yaml:"event"`
}

// Matches reports whether branch and event satisfy this When clause.
// An empty list for either dimension is "don't care" for that
// dimension, per the original's "at least one of the conditions should
// be defined" comment — both dimensions are optional independently.
func (w When) Matches(branch string, event EventKind) bool {
	if len(w.Event) > 0 {
		found := false
		for _, e := range w.Event {
			if e == event {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(w.Branch) > 0 {
		found := false
		for _, pattern := range w.Branch {
			if ok, _ := path.Match(pattern, branch); ok {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Work is one unit of work executed in an image, per
// original_source/models/src/api/routes/ci/file_format.rs's `Work`.
type Work struct {
	Name        string              `yaml:"name"`
	Image       string              `yaml:"image"`
	Commands    []string            `yaml:"commands"`
	Environment map[string]EnvValue `yaml:"environment"`
	Next        string              `yaml:"next"`
}

// Decision routes to one of two named steps based on a When clause.
type Decision struct {
	Name string `yaml:"name"`
	When When   `yaml:"when"`
	Then string `yaml:"then"`
	Else string `yaml:"else"`
}

// Step is the untagged `Work | Decision` union: a step with a `when`
// key is a Decision, otherwise it's a Work.
type Step struct {
	Work     *Work
	Decision *Decision
}

func (s *Step) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var probe struct {
		When *When `yaml:"when"`
	}
	if err := unmarshal(&probe); err != nil {
		return err
	}
	if probe.When != nil {
		var d Decision
		if err := unmarshal(&d); err != nil {
			return err
		}
		s.Decision = &d
		return nil
	}
	var w Work
	if err := unmarshal(&w); err != nil {
		return err
	}
	s.Work = &w
	return nil
}

func (s Step) name() string {
	if s.Work != nil {
		return s.Work.Name
	}
	return s.Decision.Name
}

// Service is a background job run alongside the pipeline's steps.
type Service struct {
	Name        string              `yaml:"name"`
	Image       string              `yaml:"image"`
	Commands    []string            `yaml:"commands"`
	Environment map[string]EnvValue `yaml:"environment"`
	Port        int                 `yaml:"port"`
}

// Pipeline is the parsed `patr.yml`.
type Pipeline struct {
	Version  string    `yaml:"version"`
	Name     string    `yaml:"name"`
	Services []Service `yaml:"services"`
	Steps    []Step    `yaml:"steps"`
}

// ParsePipeline parses a patr.yml document.
func ParsePipeline(raw []byte) (*Pipeline, error) {
	var p Pipeline
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("invalid pipeline file: %w", err)
	}
	return &p, nil
}

// Validate enforces spec section 4.7 step 8: step and service names
// must each be unique, and every from_secret reference must resolve
// against secretsByName, rewriting it to the secret's ID in place.
func (p *Pipeline) Validate(secretsByName map[string]string) error {
	seenSteps := make(map[string]bool, len(p.Steps))
	for i := range p.Steps {
		name := p.Steps[i].name()
		if seenSteps[name] {
			return fmt.Errorf("duplicate step name %q", name)
		}
		seenSteps[name] = true

		if p.Steps[i].Work != nil {
			if err := resolveSecrets(p.Steps[i].Work.Environment, secretsByName); err != nil {
				return err
			}
		}
	}

	seenServices := make(map[string]bool, len(p.Services))
	for i := range p.Services {
		name := p.Services[i].Name
		if seenServices[name] {
			return fmt.Errorf("duplicate service name %q", name)
		}
		seenServices[name] = true
		if err := resolveSecrets(p.Services[i].Environment, secretsByName); err != nil {
			return err
		}
	}
	return nil
}

func resolveSecrets(env map[string]EnvValue, secretsByName map[string]string) error {
	for key, v := range env {
		if v.FromSecret == "" {
			continue
		}
		id, ok := secretsByName[v.FromSecret]
		if !ok {
			return fmt.Errorf("from_secret %q does not resolve to a workspace secret", v.FromSecret)
		}
		v.FromSecret = id
		env[key] = v
	}
	return nil
}

// MaterializeWorks walks the step graph from the first declared step,
// following Decision.Then/Else per the current branch/event, and
// returns the concrete, ordered list of Work steps to execute (spec
// section 4.7 step 9's "Works list").
func (p *Pipeline) MaterializeWorks(branch string, event EventKind) ([]*Work, error) {
	byName := make(map[string]*Step, len(p.Steps))
	for i := range p.Steps {
		byName[p.Steps[i].name()] = &p.Steps[i]
	}

	if len(p.Steps) == 0 {
		return nil, nil
	}

	var works []*Work
	current := &p.Steps[0]
	visited := make(map[string]bool, len(p.Steps))
	for current != nil {
		name := current.name()
		if visited[name] {
			return nil, fmt.Errorf("step graph cycle detected at %q", name)
		}
		visited[name] = true

		switch {
		case current.Work != nil:
			works = append(works, current.Work)
			if current.Work.Next == "" {
				return works, nil
			}
			next, ok := byName[current.Work.Next]
			if !ok {
				return nil, fmt.Errorf("step %q refers to unknown next step %q", name, current.Work.Next)
			}
			current = next
		case current.Decision != nil:
			target := current.Decision.Else
			if current.Decision.When.Matches(branch, event) {
				target = current.Decision.Then
			}
			if target == "" {
				return works, nil
			}
			next, ok := byName[target]
			if !ok {
				return nil, fmt.Errorf("decision %q refers to unknown step %q", name, target)
			}
			current = next
		}
	}
	return works, nil
}
