// cmd/tools/worker-generator/main.go
package main

import (
	"bytes"
	"flag"
	"fmt"
	"go/format"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"

	"match-pipeline/pkg/registry"
)

// WorkerData holds data for templates
type WorkerData struct {
	Name        string
	PackageName string
	Kind        string
	Queue       string
	Description string
	Artifact    string
	Fields      []Field
}

// Field is one property of the generated Input struct.
type Field struct {
	Name    string
	Type    string
	JSONTag string
}

// goTypeFromJSONType maps JSON schema types to Go types
func goTypeFromJSONType(jsonType interface{}) string {
	if jt, ok := jsonType.(string); ok {
		switch jt {
		case "string":
			return "string"
		case "integer":
			return "int64"
		case "number":
			return "float64"
		case "boolean":
			return "bool"
		case "object":
			return "map[string]interface{}"
		case "array":
			return "[]string"
		}
	}
	return "interface{}"
}

// inputFields turns the schema properties into struct fields, sorted by name.
func inputFields(schema map[string]interface{}) []Field {
	props, _ := schema["properties"].(map[string]interface{})
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	fields := make([]Field, 0, len(names))
	for _, name := range names {
		details, _ := props[name].(map[string]interface{})
		fields = append(fields, Field{
			Name:    goFieldName(name),
			Type:    goTypeFromJSONType(details["type"]),
			JSONTag: fmt.Sprintf("`json:\"%s\"`", name),
		})
	}
	return fields
}

// goFieldName upper-cases the first letter and a trailing "Id".
func goFieldName(s string) string {
	if s == "" {
		return s
	}
	s = strings.ToUpper(s[:1]) + s[1:]
	if strings.HasSuffix(s, "Id") {
		s = strings.TrimSuffix(s, "Id") + "ID"
	}
	return s
}

const configTemplate = `// internal/workers/{{ .Dir }}/config.go
package {{ .PackageName }}

import (
	"time"

	"match-pipeline/internal/common/config"
)

type Config struct {
	Timeout time.Duration
}

func LoadConfig(wc config.WorkerConfig) *Config {
	cfg := &Config{Timeout: 60 * time.Second}
	if wc.Timeout > 0 {
		cfg.Timeout = config.GetDuration(wc.Timeout)
	}
	return cfg
}
`

const modelsTemplate = `// internal/workers/{{ .Dir }}/models.go
package {{ .PackageName }}

type Input struct {
{{- range .Fields }}
	{{ .Name }} {{ .Type }} {{ .JSONTag }}
{{- end }}
}

type Output struct {
}
`

const handlerTemplate = `// internal/workers/{{ .Dir }}/handler.go
package {{ .PackageName }}

import (
	"context"

	apperrors "match-pipeline/internal/common/errors"
	"match-pipeline/internal/common/logger"
	"match-pipeline/internal/queue"
)

const (
	TaskType = "{{ .Kind }}"
)

{{ if .Description }}// Handler: {{ .Description }}
{{ end -}}
type Handler struct {
	config *Config
	logger logger.Logger
}

func NewHandler(config *Config, log logger.Logger) *Handler {
	return &Handler{
		config: config,
		logger: log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
}

func (h *Handler) Handle(ctx context.Context, job *queue.Job) error {
	h.logger.Info("processing job", map[string]interface{}{
		"queueJobId": job.ID,
		"attempt":    job.Attempt,
	})

	var input Input
	if err := job.Decode(&input); err != nil {
		return apperrors.NewPayloadInvalidError(err)
	}

	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	_, err := h.execute(ctx, &input)
	return err
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	return &Output{}, nil
}
{{- if .Artifact }}

// RecordFailure flips the {{ .Artifact }} artifact to failed once the job
// has failed terminally.
func (h *Handler) RecordFailure(ctx context.Context, job *queue.Job, cause error) error {
	return nil
}
{{- end }}
`

type templateData struct {
	WorkerData
	Dir string
}

// areaForQueue maps a queue to its directory under internal/workers.
func areaForQueue(queue string) string {
	switch queue {
	case "interview-prep":
		return "interview"
	case "salary-prediction":
		return "salary"
	default:
		return strings.ToLower(queue)
	}
}

// render executes every template for spec and returns gofmt'ed sources keyed
// by file name, plus the worker directory relative to internal/workers.
func render(spec registry.KindSpec) (string, map[string][]byte, error) {
	data := templateData{
		WorkerData: WorkerData{
			Name:        spec.DisplayName,
			PackageName: strings.ReplaceAll(spec.Kind, "-", ""),
			Kind:        spec.Kind,
			Queue:       spec.Queue,
			Description: spec.Description,
			Artifact:    spec.Artifact,
			Fields:      inputFields(spec.InputSchema),
		},
		Dir: filepath.ToSlash(filepath.Join(areaForQueue(spec.Queue), spec.Kind)),
	}

	templates := map[string]string{
		"config.go":  configTemplate,
		"models.go":  modelsTemplate,
		"handler.go": handlerTemplate,
	}

	files := make(map[string][]byte, len(templates))
	for filename, tmplStr := range templates {
		tmpl, err := template.New(filename).Parse(tmplStr)
		if err != nil {
			return "", nil, fmt.Errorf("parse template %s: %w", filename, err)
		}

		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, data); err != nil {
			return "", nil, fmt.Errorf("execute template %s: %w", filename, err)
		}

		src, err := format.Source(buf.Bytes())
		if err != nil {
			return "", nil, fmt.Errorf("format %s: %w", filename, err)
		}
		files[filename] = src
	}
	return data.Dir, files, nil
}

func main() {
	kind := flag.String("kind", "", "Job kind from the registry (e.g., interview-kit-generate)")
	outputDir := flag.String("output", "./internal/workers/", "Output directory for the generated worker")
	registryPath := flag.String("registry", "pkg/registry/kinds.json", "Path to the kind registry JSON file")
	force := flag.Bool("force", false, "Overwrite existing files")
	flag.Parse()

	if *kind == "" {
		fmt.Println("Usage: worker-generator --kind <kind> [--output <dir>] [--registry <path>]")
		fmt.Println("\nExample:")
		fmt.Println("  go run ./cmd/tools/worker-generator --kind interview-kit-generate")
		os.Exit(1)
	}

	reg, err := registry.LoadRegistry(*registryPath)
	if err != nil {
		fmt.Printf("Error loading registry from %s: %v\n", *registryPath, err)
		os.Exit(1)
	}

	spec, ok := reg.Lookup(*kind)
	if !ok {
		fmt.Printf("Kind '%s' not found in registry %s\n", *kind, *registryPath)
		os.Exit(1)
	}

	dir, files, err := render(spec)
	if err != nil {
		fmt.Printf("Error rendering worker: %v\n", err)
		os.Exit(1)
	}

	workerDir := filepath.Join(*outputDir, filepath.FromSlash(dir))
	if err := os.MkdirAll(workerDir, 0755); err != nil {
		fmt.Printf("Error creating directory: %v\n", err)
		os.Exit(1)
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(workerDir, name)
		if _, err := os.Stat(path); err == nil && !*force {
			fmt.Printf("- Skipped %s (exists, use --force)\n", path)
			continue
		}
		if err := os.WriteFile(path, files[name], 0644); err != nil {
			fmt.Printf("Error writing %s: %v\n", path, err)
			os.Exit(1)
		}
		fmt.Printf("✓ Generated %s\n", path)
	}

	fmt.Printf("\nNext steps:\n")
	fmt.Printf("  1. Implement execute in handler.go\n")
	fmt.Printf("  2. Register the handler in cmd/pipeline-worker/handlers.go\n")
	fmt.Printf("  3. Add workers.%s to configs/config.yaml\n", spec.Kind)
}
