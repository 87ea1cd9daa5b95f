// Package config loads the YAML catalogs (workflows, connectors, optional
// ICD-10 codes) from a config directory and validates them before the server
// starts. Every violation here is startup-fatal.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/chartbridge/chartbridge/internal/schema"
)

// Catalog is everything loaded from the config directory.
type Catalog struct {
	Workflows  []schema.WorkflowConfig
	Connectors map[string]schema.ConnectorConfig
	ICD10      []schema.ICD10Code
}

type workflowsFile struct {
	Workflows []schema.WorkflowConfig `yaml:"workflows"`
}

type connectorsFile struct {
	Connectors map[string]schema.ConnectorConfig `yaml:"connectors"`
}

type icd10File struct {
	Codes []schema.ICD10Code `yaml:"codes"`
}

// Load reads the catalogs from dir. Workflow definitions may be split across
// any number of workflows*.yaml files; connectors.yaml is required;
// icd10_mini.yaml is optional.
func Load(dir string) (*Catalog, error) {
	cat := &Catalog{Connectors: map[string]schema.ConnectorConfig{}}

	fsys := os.DirFS(dir)
	matches, err := doublestar.Glob(fsys, "workflows*.yaml")
	if err != nil {
		return nil, fmt.Errorf("globbing workflow catalogs: %w", err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no workflows*.yaml found in %s", dir)
	}
	sort.Strings(matches)
	for _, name := range matches {
		var wf workflowsFile
		if err := readYAML(filepath.Join(dir, name), &wf); err != nil {
			return nil, err
		}
		cat.Workflows = append(cat.Workflows, wf.Workflows...)
	}

	var conns connectorsFile
	if err := readYAML(filepath.Join(dir, "connectors.yaml"), &conns); err != nil {
		return nil, err
	}
	cat.Connectors = conns.Connectors

	icdPath := filepath.Join(dir, "icd10_mini.yaml")
	if _, err := os.Stat(icdPath); err == nil {
		var icd icd10File
		if err := readYAML(icdPath, &icd); err != nil {
			return nil, err
		}
		cat.ICD10 = icd.Codes
	}

	if err := cat.Validate(); err != nil {
		return nil, err
	}
	return cat, nil
}

func readYAML(path string, out any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// Validate enforces the structural rules the engines assume: workflow ids and
// enabled hotkeys are unique, every referenced connector exists, and every
// output target is inside the workflow's whitelist.
func (c *Catalog) Validate() error {
	seenIDs := map[string]bool{}
	seenHotkeys := map[string]string{}

	for _, wf := range c.Workflows {
		if wf.WorkflowID == "" {
			return fmt.Errorf("workflow with empty workflow_id")
		}
		if seenIDs[wf.WorkflowID] {
			return fmt.Errorf("duplicate workflow_id %q", wf.WorkflowID)
		}
		seenIDs[wf.WorkflowID] = true

		if wf.Enabled {
			hk := schema.NormalizeHotkey(wf.Hotkey)
			if hk == "" {
				return fmt.Errorf("workflow %q: enabled without a hotkey", wf.WorkflowID)
			}
			if other, taken := seenHotkeys[hk]; taken {
				return fmt.Errorf("hotkey %s bound by both %q and %q", hk, other, wf.WorkflowID)
			}
			seenHotkeys[hk] = wf.WorkflowID
		}

		if wf.Connector == "" {
			return fmt.Errorf("workflow %q: no connector", wf.WorkflowID)
		}
		if _, found := c.Connectors[wf.Connector]; !found {
			return fmt.Errorf("workflow %q references unknown connector %q", wf.WorkflowID, wf.Connector)
		}

		if wf.Security != nil && len(wf.Security.AllowedFields) > 0 {
			allowed := schema.NewFieldWhitelistValidator(wf.Security.AllowedFields)
			for _, out := range wf.Output {
				if res := allowed.Validate(out.TargetField); !res.Valid {
					return fmt.Errorf("workflow %q: output target %q is outside allowed_fields",
						wf.WorkflowID, out.TargetField)
				}
			}
		}
		for _, out := range wf.Output {
			if out.TargetField == "" {
				return fmt.Errorf("workflow %q: output with empty target_field", wf.WorkflowID)
			}
		}
	}

	for name, cc := range c.Connectors {
		if cc.BaseURL == "" {
			return fmt.Errorf("connector %q: no base_url", name)
		}
		if len(cc.Endpoints) == 0 {
			return fmt.Errorf("connector %q: no endpoints", name)
		}
	}
	return nil
}

// EnabledByHotkey indexes enabled workflows by normalized hotkey.
func (c *Catalog) EnabledByHotkey() map[string]schema.WorkflowConfig {
	out := map[string]schema.WorkflowConfig{}
	for _, wf := range c.Workflows {
		if wf.Enabled {
			out[schema.NormalizeHotkey(wf.Hotkey)] = wf
		}
	}
	return out
}
