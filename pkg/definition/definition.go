package definition

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/jdziat/jobsuite/pkg/core"
	"github.com/jdziat/jobsuite/pkg/job"
)

// Group kinds.
const (
	KindSync  = "sync"
	KindAsync = "async"
)

// Suite is a parsed suite definition.
type Suite struct {
	Namespace string `yaml:"namespace" validate:"required"`
	Root      Job    `yaml:"root"`
}

// Job is one node of a definition.
type Job struct {
	ID             string         `yaml:"id" validate:"required"`
	Kind           string         `yaml:"kind" validate:"required"`
	With           map[string]any `yaml:"with,omitempty"`
	MaxConcurrency int            `yaml:"maxConcurrency,omitempty" validate:"gte=0"`
	Jobs           []Job          `yaml:"jobs,omitempty" validate:"dive"`
}

// IsGroup reports whether the job is a sync or async group.
func (j *Job) IsGroup() bool {
	return j.Kind == KindSync || j.Kind == KindAsync
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads a definition from path.
func Load(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("definition file not found: %s", path)
		}
		return nil, fmt.Errorf("failed to read definition file: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Parse decodes and validates a definition. JSON input is accepted as well.
// Unknown fields are rejected.
func Parse(data []byte) (*Suite, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New("definition is empty")
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var s Suite
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse definition: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the structure of the definition. Executor kinds are
// checked when the tree is built.
func (s *Suite) Validate() error {
	if err := validate.Struct(s); err != nil {
		return &core.ConfigurationError{Err: err}
	}
	return validateJob(&s.Root)
}

func validateJob(j *Job) error {
	if j.IsGroup() {
		if len(j.Jobs) == 0 {
			return &core.ConfigurationError{JobID: j.ID, Err: core.ErrEmptyGroup}
		}
		if len(j.With) > 0 {
			return &core.ConfigurationError{JobID: j.ID, Err: errors.New("group jobs take no arguments")}
		}
	} else {
		if len(j.Jobs) > 0 {
			return &core.ConfigurationError{JobID: j.ID, Err: fmt.Errorf("%s job cannot have children", j.Kind)}
		}
		if j.MaxConcurrency != 0 {
			return &core.ConfigurationError{JobID: j.ID, Err: errors.New("maxConcurrency applies to async groups only")}
		}
	}
	for i := range j.Jobs {
		if err := validateJob(&j.Jobs[i]); err != nil {
			return err
		}
	}
	return nil
}

// Build turns the definition into a validated job tree, resolving leaf kinds
// on reg.
func (s *Suite) Build(reg *Registry) (*job.Node, error) {
	root, err := build(&s.Root, reg)
	if err != nil {
		return nil, err
	}
	if err := job.Validate(root); err != nil {
		return nil, err
	}
	return root, nil
}

func build(j *Job, reg *Registry) (*job.Node, error) {
	if !j.IsGroup() {
		exec, err := reg.Executor(j.Kind, j.With)
		if err != nil {
			return nil, &core.ConfigurationError{JobID: j.ID, Err: err}
		}
		return job.Leaf(j.ID, exec), nil
	}

	children := make([]*job.Node, 0, len(j.Jobs))
	for i := range j.Jobs {
		c, err := build(&j.Jobs[i], reg)
		if err != nil {
			return nil, err
		}
		children = append(children, c)
	}
	if j.Kind == KindSync {
		return job.Sync(j.ID, children...), nil
	}
	return job.Async(j.ID, j.MaxConcurrency, children...), nil
}
