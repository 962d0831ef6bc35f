// Package definition reads integration definitions from JSON and YAML files.
package definition

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/dukex/integra/pkg/faults"
	"github.com/dukex/integra/pkg/integration"
	"github.com/dukex/integra/pkg/models"
)

//go:embed schema.json
var schemaJSON []byte

var (
	ErrUnsupportedFormat = errors.New("unsupported definition format")
	ErrSchemaViolation   = errors.New("definition does not match schema")
)

// Format of a definition document.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatOf picks the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// Registrar receives loaded definitions; integration.Manager satisfies it.
type Registrar interface {
	Register(def *models.Definition) (*integration.Integration, error)
}

type Loader struct {
	logger    *slog.Logger
	validator *validator.Validate
	schema    gojsonschema.JSONLoader
}

func NewLoader(logger *slog.Logger, validate *validator.Validate) *Loader {
	if validate == nil {
		validate = validator.New(validator.WithRequiredStructEnabled())
	}

	return &Loader{
		logger:    logger.With("module", "definition_loader"),
		validator: validate,
		schema:    gojsonschema.NewBytesLoader(schemaJSON),
	}
}

// Parse decodes and validates one definition: JSON schema first, then struct tags, then the
// graph rules of models.Definition.
func (l *Loader) Parse(data []byte, format Format) (*models.Definition, error) {
	var document any

	if err := decode(data, format, &document); err != nil {
		return nil, faults.Configuration("ParseDefinition", "", err)
	}

	result, err := gojsonschema.Validate(l.schema, gojsonschema.NewGoLoader(document))
	if err != nil {
		return nil, faults.Configuration("ParseDefinition", "", err)
	}

	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			messages = append(messages, e.String())
		}

		return nil, faults.Configuration("ParseDefinition", "",
			fmt.Errorf("%w: %s", ErrSchemaViolation, strings.Join(messages, "; ")))
	}

	var def models.Definition

	if err := decode(data, format, &def); err != nil {
		return nil, faults.Configuration("ParseDefinition", "", err)
	}

	if err := l.validator.Struct(&def); err != nil {
		return nil, faults.Configuration("ParseDefinition", def.ID, err)
	}

	if err := def.Validate(); err != nil {
		return nil, err
	}

	return &def, nil
}

func (l *Loader) LoadFile(path string) (*models.Definition, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition %s: %w", path, err)
	}

	def, err := l.Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return def, nil
}

// LoadDir loads every .json, .yaml and .yml file of dir in name order. Other files are skipped.
func (l *Loader) LoadDir(dir string) ([]*models.Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read definitions directory: %w", err)
	}

	names := make([]string, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		if _, err := FormatOf(entry.Name()); err != nil {
			continue
		}

		names = append(names, entry.Name())
	}

	sort.Strings(names)

	definitions := make([]*models.Definition, 0, len(names))

	for _, name := range names {
		def, err := l.LoadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}

		definitions = append(definitions, def)
	}

	l.logger.Info("Definitions loaded", "path", dir, "count", len(definitions))

	return definitions, nil
}

// RegisterDir loads dir and registers every definition. Loading stops at the first failure.
func (l *Loader) RegisterDir(dir string, registrar Registrar) ([]*integration.Integration, error) {
	definitions, err := l.LoadDir(dir)
	if err != nil {
		return nil, err
	}

	integrations := make([]*integration.Integration, 0, len(definitions))

	for _, def := range definitions {
		i, err := registrar.Register(def)
		if err != nil {
			return integrations, fmt.Errorf("failed to register %s: %w", def.ID, err)
		}

		integrations = append(integrations, i)
	}

	return integrations, nil
}

func decode(data []byte, format Format, target any) error {
	switch format {
	case FormatJSON:
		decoder := json.NewDecoder(bytes.NewReader(data))

		return decoder.Decode(target)
	case FormatYAML:
		return yaml.Unmarshal(data, target)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}
