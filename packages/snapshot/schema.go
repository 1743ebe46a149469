package snapshot

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// schemaFor maps a snapshot document to its embedded schema.
func schemaFor(name string) ([]byte, error) {
	base := strings.TrimSuffix(name, ".json")
	return schemaFS.ReadFile("schemas/" + base + ".schema.json")
}

// ValidationError lists the schema violations of one document.
type ValidationError struct {
	File     string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s is invalid: %s", e.File, strings.Join(e.Problems, "; "))
}

func validateDocument(name string, data []byte) error {
	schemaData, err := schemaFor(name)
	if err != nil {
		return fmt.Errorf("no schema for %s: %w", name, err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaData),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return &ValidationError{File: name, Problems: []string{err.Error()}}
	}
	if result.Valid() {
		return nil
	}

	var problems []string
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}
	return &ValidationError{File: name, Problems: problems}
}

// Validate checks every document in dir and reports all problems found,
// keyed by file name. Missing files are reported as problems too.
func Validate(dir string) map[string][]string {
	report := make(map[string][]string)
	for _, name := range Files {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			report[name] = []string{err.Error()}
			continue
		}
		if err := validateDocument(name, data); err != nil {
			var ve *ValidationError
			if errors.As(err, &ve) {
				report[name] = ve.Problems
			} else {
				report[name] = []string{err.Error()}
			}
		}
	}
	return report
}
