// cmd/tools/registry-updater/main.go
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	"match-pipeline/pkg/registry"
)

const defaultPath = "pkg/registry/kinds.json"

func main() {
	updateCmd := flag.NewFlagSet("update", flag.ExitOnError)
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)
	listCmd := flag.NewFlagSet("list", flag.ExitOnError)

	// Update command flags
	updatePath := updateCmd.String("path", defaultPath, "Path to registry file")
	kindUpdate := updateCmd.String("kind", "", "Job kind to update")
	field := updateCmd.String("field", "", "Field to update (queue, attempts, backoffType, backoffDelay, displayName, description)")
	value := updateCmd.String("value", "", "New value for the field")

	validatePath := validateCmd.String("path", defaultPath, "Path to registry file")

	listPath := listCmd.String("path", defaultPath, "Path to registry file")
	listQueue := listCmd.String("queue", "", "Only list kinds routed to this queue")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "update":
		updateCmd.Parse(os.Args[2:])
		if *kindUpdate == "" || *field == "" || *value == "" {
			fmt.Println("Error: kind, field, and value are required for update.")
			updateCmd.Usage()
			os.Exit(1)
		}
		if err := updateKind(*updatePath, *kindUpdate, *field, *value); err != nil {
			fmt.Printf("Error updating kind: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Updated kind %s, field %s to %s\n", *kindUpdate, *field, *value)

	case "validate":
		validateCmd.Parse(os.Args[2:])
		reg, err := registry.LoadRegistry(*validatePath)
		if err != nil {
			fmt.Printf("Registry validation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Registry validation passed. Found %d kinds on %d queues.\n", len(reg.Kinds), len(reg.Queues()))

	case "list":
		listCmd.Parse(os.Args[2:])
		if err := listKinds(*listPath, *listQueue); err != nil {
			fmt.Printf("Error listing kinds: %v\n", err)
			os.Exit(1)
		}

	case "help":
		fallthrough
	default:
		help()
	}
}

func listKinds(path, queue string) error {
	reg, err := registry.LoadRegistry(path)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KIND\tQUEUE\tATTEMPTS\tBACKOFF\tARTIFACT")
	for _, k := range reg.Kinds {
		if queue != "" && k.Queue != queue {
			continue
		}
		backoff := "-"
		if k.Backoff != nil {
			backoff = k.Backoff.Type + "/" + k.Backoff.Delay
		}
		artifact := k.Artifact
		if artifact == "" {
			artifact = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", k.Kind, k.Queue, k.Attempts, backoff, artifact)
	}
	return w.Flush()
}

func updateKind(path, kind, field, value string) error {
	reg, err := registry.LoadRegistry(path)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}

	var spec *registry.KindSpec
	for i := range reg.Kinds {
		if reg.Kinds[i].Kind == kind {
			spec = &reg.Kinds[i]
			break
		}
	}
	if spec == nil {
		return fmt.Errorf("kind %s not found", kind)
	}

	switch field {
	case "queue":
		spec.Queue = value
	case "displayName":
		spec.DisplayName = value
	case "description":
		spec.Description = value
	case "attempts":
		attempts, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid attempts value: %w", err)
		}
		spec.Attempts = attempts
	case "backoffType":
		if spec.Backoff == nil {
			spec.Backoff = &registry.BackoffSpec{Delay: "1s"}
		}
		spec.Backoff.Type = value
	case "backoffDelay":
		if spec.Backoff == nil {
			spec.Backoff = &registry.BackoffSpec{Type: "fixed"}
		}
		spec.Backoff.Delay = value
	default:
		return fmt.Errorf("unknown field: %s", field)
	}

	// refuse to write a registry the worker would reject at startup
	if err := reg.Validate(); err != nil {
		return err
	}

	reg.LastUpdated = time.Now().UTC().Format(time.RFC3339)
	return saveRegistry(reg, path)
}

// saveRegistry handles saving the registry to file
func saveRegistry(reg *registry.KindRegistry, path string) error {
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write registry file: %w", err)
	}
	return nil
}

func help() {
	fmt.Print(`
Usage: registry-updater <command> [flags]

Commands:
  list     List the registered job kinds
  update   Update a field of an existing kind
  validate Validate the registry file
  help     Show this help message

Examples:
  registry-updater list -queue employer
  registry-updater update -kind interview-kit-generate -field attempts -value 5
  registry-updater update -kind salary-prediction -field backoffDelay -value 10s
  registry-updater validate -path pkg/registry/kinds.json

Use 'registry-updater <command> -h' for more information about a command.
` + "\n")
}
