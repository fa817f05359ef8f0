package slo

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFromDirectory reads every definition file under dirPath (*.yaml or
// *.yml; dotfiles and dot-directories are skipped). Files that cannot be
// read or decoded are reported as validation errors and the rest still load.
func LoadFromDirectory(dirPath string) ([]DefinitionWithFile, []ValidationError) {
	files, err := discoverDefinitionFiles(dirPath)
	if err != nil {
		return nil, []ValidationError{{
			File:    dirPath,
			Message: fmt.Sprintf("failed to read directory: %v", err),
		}}
	}

	var defs []DefinitionWithFile
	var errs []ValidationError
	for _, file := range files {
		def, err := parseDefinitionFile(file)
		if err != nil {
			errs = append(errs, ValidationError{File: file, Message: err.Error()})
			continue
		}
		defs = append(defs, DefinitionWithFile{Definition: def, File: file})
	}
	return defs, errs
}

func discoverDefinitionFiles(dirPath string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path != dirPath && strings.HasPrefix(name, ".") {
				return fs.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") {
			return nil
		}
		switch filepath.Ext(name) {
		case ".yaml", ".yml":
			files = append(files, path)
		}
		return nil
	})

	return files, err
}

// parseDefinitionFile decodes one definition with strict field checking: a
// YAML file that is not an SLO definition errors out instead of silently
// loading as an empty one.
func parseDefinitionFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var def Definition
	if err := dec.Decode(&def); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("no definition in file")
		}
		return nil, fmt.Errorf("failed to decode definition: %w", err)
	}
	return &def, nil
}
