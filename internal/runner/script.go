// internal/runner/script.go
package runner

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/kwdriver/internal/execution"
	"github.com/xkilldash9x/kwdriver/internal/fault"
	"github.com/xkilldash9x/kwdriver/internal/keywords"
)

// Script is one keyword script, typically loaded from YAML:
//
//	name: login
//	test_case: TC001
//	steps:
//	  - keyword: navigate
//	    args: {url: https://app.test/login}
//	  - keyword: type
//	    args: {locator: "#user", text: username}
//	    external: [text]
//	  - keyword: verify-visible
//	    channel: soft
//	    args: {locator: "#welcome", timeout: "5"}
type Script struct {
	Name     string `yaml:"name"`
	TestCase string `yaml:"test_case"`
	Steps    []Step `yaml:"steps"`
	// Source is the file the script was loaded from, if any.
	Source string `yaml:"-"`
}

// Step invokes one keyword.
type Step struct {
	Keyword string `yaml:"keyword"`
	// Channel is hard, soft or silent. Empty means hard.
	Channel string        `yaml:"channel"`
	Args    keywords.Args `yaml:"args"`
	// External names the args whose literal is a key into the data source for the script's
	// test case rather than the value itself.
	External []string `yaml:"external"`
}

// LoadScript reads a script file. A leading ~ in path is expanded.
func LoadScript(path string) (Script, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return Script{}, fmt.Errorf("expand script path %s: %w", path, err)
	}
	raw, err := os.ReadFile(expanded)
	if err != nil {
		return Script{}, fmt.Errorf("read script %s: %w", path, err)
	}
	s, err := ParseScript(bytes.NewReader(raw))
	if err != nil {
		return Script{}, fmt.Errorf("script %s: %w", path, err)
	}
	s.Source = expanded
	return s, nil
}

// ParseScript decodes one YAML script. Unknown fields are rejected.
func ParseScript(r io.Reader) (Script, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var s Script
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return Script{}, fault.Validation("script is empty")
		}
		return Script{}, fault.Wrap(fault.KindValidation, err, "decode script")
	}
	return s, nil
}

// Validate checks the script against reg before anything runs.
func (s Script) Validate(reg *keywords.Registry) error {
	if err := fault.RequireNonEmpty("script name", s.Name); err != nil {
		return err
	}
	if len(s.Steps) == 0 {
		return fault.Validation("script %q has no steps", s.Name)
	}
	var errs []error
	for i, st := range s.Steps {
		if _, ok := reg.Lookup(st.Keyword); !ok {
			errs = append(errs, fmt.Errorf("step %d: unknown keyword %q", i+1, st.Keyword))
		}
		if _, err := execution.ParseChannel(st.Channel); err != nil {
			errs = append(errs, fmt.Errorf("step %d: %w", i+1, err))
		}
		for _, name := range st.External {
			if _, ok := st.Args[name]; !ok {
				errs = append(errs, fmt.Errorf("step %d: external arg %q is not set", i+1, name))
			}
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fault.Wrap(fault.KindValidation, err, "script %q is invalid", s.Name)
	}
	return nil
}
