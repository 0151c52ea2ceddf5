// Package validator validates scenario files before execution.
// It parses every file upfront and reports all problems at once, so a run
// never starts a browser for a file that cannot complete.
package validator

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/devicelab-dev/shopsmoke/pkg/scenario"
)

// ValidationError represents a validation error with context.
type ValidationError struct {
	File    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.File, e.Message)
}

// Result contains the validation result.
type Result struct {
	// Files is the list of scenario file paths in execution order.
	Files []string
	// Scenarios holds the parsed scenarios, parallel to Files.
	Scenarios []*scenario.Scenario
	// Errors contains all validation errors found.
	Errors []error
}

// IsValid returns true if there are no validation errors.
func (r *Result) IsValid() bool {
	return len(r.Errors) == 0
}

// Validator validates scenario files.
type Validator struct {
	includeTags []string
	excludeTags []string
}

// New creates a new Validator.
func New(includeTags, excludeTags []string) *Validator {
	return &Validator{
		includeTags: includeTags,
		excludeTags: excludeTags,
	}
}

// Validate validates files and directories in order. Directories are
// scanned recursively for .yaml/.yml files in lexical order. Scenarios
// filtered out by tags are neither returned nor reported.
func (v *Validator) Validate(paths ...string) *Result {
	result := &Result{}
	seen := make(map[string]bool)
	names := make(map[string]string)

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			result.Errors = append(result.Errors, &ValidationError{
				File:    path,
				Message: fmt.Sprintf("cannot access: %v", err),
			})
			continue
		}

		files := []string{path}
		if info.IsDir() {
			files, err = collectScenarioFiles(path)
			if err != nil {
				result.Errors = append(result.Errors, &ValidationError{
					File:    path,
					Message: fmt.Sprintf("failed to scan directory: %v", err),
				})
				continue
			}
		}

		for _, file := range files {
			if seen[file] {
				continue
			}
			seen[file] = true
			v.validateFile(file, result, names)
		}
	}

	return result
}

// collectScenarioFiles finds all .yaml/.yml files in a directory.
func collectScenarioFiles(dir string) ([]string, error) {
	var files []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if scenario.IsScenarioFile(path) && filepath.Base(path) != "config.yaml" && filepath.Base(path) != "config.yml" {
			files = append(files, path)
		}
		return nil
	})

	sort.Strings(files)
	return files, err
}

// validateFile parses one file and checks its steps and name.
func (v *Validator) validateFile(file string, result *Result, names map[string]string) {
	sc, err := scenario.ParseFile(file)
	if err != nil {
		result.Errors = append(result.Errors, &ValidationError{
			File:    file,
			Message: fmt.Sprintf("parse error: %v", err),
		})
		return
	}

	if !scenario.ShouldInclude(sc, v.includeTags, v.excludeTags) {
		return
	}

	errs := scenario.Validate(sc)
	for _, err := range errs {
		result.Errors = append(result.Errors, &ValidationError{File: file, Message: err.Error()})
	}

	if other, dup := names[sc.Name()]; dup {
		result.Errors = append(result.Errors, &ValidationError{
			File:    file,
			Message: fmt.Sprintf("scenario name %q already used by %s", sc.Name(), other),
		})
		return
	}
	names[sc.Name()] = file

	if len(errs) == 0 {
		result.Files = append(result.Files, file)
		result.Scenarios = append(result.Scenarios, sc)
	}
}
