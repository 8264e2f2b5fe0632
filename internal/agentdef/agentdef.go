// Package agentdef loads and validates agent definition files.
package agentdef

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/agentfleet/agentfleet/internal/observability"
)

// Definition defaults.
const (
	DefaultAPIVersion = "mfa/v1"
	DefaultKind       = "Agent"
	DefaultVersion    = "1.0.0"
	DefaultPort       = 10000
)

// Executor kinds.
const (
	ExecutorEcho  = "echo"
	ExecutorRelay = "relay"
)

var (
	// ErrEmptyDefinition is returned for files with no YAML content.
	ErrEmptyDefinition = errors.New("agent definition file is empty")
	// ErrInvalidDefinition wraps every validation failure.
	ErrInvalidDefinition = errors.New("invalid agent definition")

	envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)
	namePattern   = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)
)

// Definition is a complete agent definition file.
type Definition struct {
	APIVersion string         `yaml:"apiVersion" json:"apiVersion"`
	Kind       string         `yaml:"kind" json:"kind"`
	Metadata   Metadata       `yaml:"metadata" json:"metadata"`
	A2A        A2AConfig      `yaml:"a2a" json:"a2a"`
	Executor   ExecutorConfig `yaml:"executor" json:"executor"`

	// Path is the file the definition was loaded from.
	Path string `yaml:"-" json:"path,omitempty"`
}

// Metadata identifies the agent.
type Metadata struct {
	Name        string   `yaml:"name" json:"name"`
	DisplayName string   `yaml:"display_name" json:"display_name,omitempty"`
	Description string   `yaml:"description" json:"description,omitempty"`
	Version     string   `yaml:"version" json:"version"`
	Tags        []string `yaml:"tags" json:"tags,omitempty"`
}

// A2AConfig is the protocol surface of the agent.
type A2AConfig struct {
	Port         int          `yaml:"port" json:"port"`
	Skills       []Skill      `yaml:"skills" json:"skills,omitempty"`
	Capabilities Capabilities `yaml:"capabilities" json:"capabilities"`
}

// Skill is advertised on the agent card.
type Skill struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name,omitempty"`
	Description string `yaml:"description" json:"description,omitempty"`
}

// Capabilities is advertised on the agent card.
type Capabilities struct {
	Streaming bool `yaml:"streaming" json:"streaming"`
}

// ExecutorConfig selects how the agent answers messages.
type ExecutorConfig struct {
	Kind   string `yaml:"kind" json:"kind"`
	Target string `yaml:"target" json:"target,omitempty"`
	Prefix string `yaml:"prefix" json:"prefix,omitempty"`
}

// Name returns the agent's registry name.
func (d *Definition) Name() string {
	return d.Metadata.Name
}

// Title returns the display name, falling back to the name.
func (d *Definition) Title() string {
	if strings.TrimSpace(d.Metadata.DisplayName) != "" {
		return d.Metadata.DisplayName
	}
	return d.Metadata.Name
}

// Validate checks the semantic rules a definition must satisfy before it can be served.
func (d *Definition) Validate() error {
	var problems []string

	name := strings.TrimSpace(d.Metadata.Name)
	switch {
	case name == "":
		problems = append(problems, "metadata.name is required")
	case !namePattern.MatchString(name):
		problems = append(problems, fmt.Sprintf("metadata.name %q must be lowercase letters, digits, '-' or '_'", name))
	}

	if d.A2A.Port < 1 || d.A2A.Port > 65535 {
		problems = append(problems, fmt.Sprintf("a2a.port %d is out of range 1-65535", d.A2A.Port))
	}

	for i, skill := range d.A2A.Skills {
		if strings.TrimSpace(skill.ID) == "" {
			problems = append(problems, fmt.Sprintf("a2a.skills[%d].id is required", i))
		}
	}

	switch d.Executor.Kind {
	case ExecutorEcho:
	case ExecutorRelay:
		if strings.TrimSpace(d.Executor.Target) == "" {
			problems = append(problems, "executor.target is required for relay executors")
		} else if d.Executor.Target == name {
			problems = append(problems, "executor.target must not be the agent itself")
		}
	default:
		problems = append(problems, fmt.Sprintf("executor.kind %q is not one of echo, relay", d.Executor.Kind))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidDefinition, strings.Join(problems, "; "))
	}
	return nil
}

func (d *Definition) applyDefaults() {
	if d.APIVersion == "" {
		d.APIVersion = DefaultAPIVersion
	}
	if d.Kind == "" {
		d.Kind = DefaultKind
	}
	if d.Metadata.Version == "" {
		d.Metadata.Version = DefaultVersion
	}
	if d.A2A.Port == 0 {
		d.A2A.Port = DefaultPort
	}
	if d.Executor.Kind == "" {
		d.Executor.Kind = ExecutorEcho
	}
}

// Parse decodes a definition from YAML, expanding ${VAR} references in every
// string value first. Unset variables expand to "" with a warning.
func Parse(data []byte) (*Definition, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse agent definition: %w", err)
	}
	if root.Kind == 0 || len(root.Content) == 0 {
		return nil, ErrEmptyDefinition
	}

	expandNode(&root)

	def := &Definition{}
	if err := root.Decode(def); err != nil {
		return nil, fmt.Errorf("decode agent definition: %w", err)
	}
	def.applyDefaults()
	return def, nil
}

// Load reads a single definition file.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied definition path
	if err != nil {
		return nil, fmt.Errorf("read agent definition: %w", err)
	}

	def, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	def.Path = path

	if logger := observability.Logger(); logger != nil {
		logger.Debug("Loaded agent definition",
			zap.String("agent", def.Metadata.Name),
			zap.String("version", def.Metadata.Version),
			zap.String("path", path))
	}
	return def, nil
}

// Files returns the sorted *.yaml files of dir.
func Files(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("agents directory not found: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("agents directory not found: %s is not a directory", dir)
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// LoadAll loads every *.yaml file in dir. Files that fail to load or validate
// are logged and skipped so one broken definition does not hide the rest.
func LoadAll(dir string) ([]*Definition, error) {
	files, err := Files(dir)
	if err != nil {
		return nil, err
	}

	logger := observability.Logger()
	if len(files) == 0 && logger != nil {
		logger.Warn("No agent definitions found", zap.String("dir", dir))
	}

	defs := make([]*Definition, 0, len(files))
	for _, file := range files {
		def, err := Load(file)
		if err == nil {
			err = def.Validate()
		}
		if err != nil {
			if logger != nil {
				logger.Error("Skipping agent definition", zap.String("path", file), zap.Error(err))
			}
			continue
		}
		defs = append(defs, def)
	}

	if logger != nil {
		logger.Debug("Loaded agent definitions",
			zap.Int("loaded", len(defs)),
			zap.Int("files", len(files)),
			zap.String("dir", dir))
	}
	return defs, nil
}

// Find returns the definition named name.
func Find(defs []*Definition, name string) (*Definition, bool) {
	for _, def := range defs {
		if def != nil && def.Metadata.Name == name {
			return def, true
		}
	}
	return nil, false
}

func expandNode(node *yaml.Node) {
	if node == nil {
		return
	}
	if node.Kind == yaml.ScalarNode && node.Tag == "!!str" {
		expanded := ExpandEnv(node.Value)
		if expanded != node.Value && node.Style == 0 {
			// re-resolve so "${PORT}" can decode into an int
			node.Tag = ""
		}
		node.Value = expanded
		return
	}
	for _, child := range node.Content {
		expandNode(child)
	}
}

// ExpandEnv replaces ${VAR} references with environment values.
func ExpandEnv(value string) string {
	return envVarPattern.ReplaceAllStringFunc(value, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		v, ok := os.LookupEnv(name)
		if !ok {
			if logger := observability.Logger(); logger != nil {
				logger.Warn("Environment variable is not set", zap.String("name", name))
			}
			return ""
		}
		return v
	})
}
