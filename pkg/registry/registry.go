// pkg/registry/registry.go
package registry

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"
)

//go:embed kinds.json
var defaultKinds []byte

// LoadRegistry reads a registry file from path.
func LoadRegistry(path string) (*KindRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Default returns the registry compiled into the binary.
func Default() (*KindRegistry, error) {
	return Parse(defaultKinds)
}

func Parse(data []byte) (*KindRegistry, error) {
	var reg KindRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return &reg, nil
}

// Validate checks that every kind is named once, belongs to a queue and
// carries a usable retry policy.
func (r *KindRegistry) Validate() error {
	if len(r.Kinds) == 0 {
		return fmt.Errorf("registry contains no kinds")
	}

	seen := make(map[string]bool, len(r.Kinds))
	for _, k := range r.Kinds {
		if k.Kind == "" {
			return fmt.Errorf("kind missing required field: kind")
		}
		if seen[k.Kind] {
			return fmt.Errorf("duplicate kind: %s", k.Kind)
		}
		seen[k.Kind] = true

		if k.Queue == "" {
			return fmt.Errorf("kind %s missing required field: queue", k.Kind)
		}
		if k.Attempts < 0 {
			return fmt.Errorf("kind %s: attempts must not be negative", k.Kind)
		}
		if k.Backoff != nil {
			if k.Backoff.Type != "fixed" && k.Backoff.Type != "exponential" {
				return fmt.Errorf("kind %s: backoff type must be fixed or exponential", k.Kind)
			}
			if _, err := time.ParseDuration(k.Backoff.Delay); err != nil {
				return fmt.Errorf("kind %s: backoff delay: %w", k.Kind, err)
			}
		}
		if len(k.InputSchema) > 0 && k.InputSchema["type"] != "object" {
			return fmt.Errorf("kind %s: input schema must describe an object", k.Kind)
		}
	}
	return nil
}

func (r *KindRegistry) Lookup(kind string) (KindSpec, bool) {
	for _, k := range r.Kinds {
		if k.Kind == kind {
			return k, true
		}
	}
	return KindSpec{}, false
}

// KindsFor returns the sorted kinds routed to queue.
func (r *KindRegistry) KindsFor(queue string) []string {
	var kinds []string
	for _, k := range r.Kinds {
		if k.Queue == queue {
			kinds = append(kinds, k.Kind)
		}
	}
	sort.Strings(kinds)
	return kinds
}

// Queues returns every queue named by the registry, sorted.
func (r *KindRegistry) Queues() []string {
	set := make(map[string]struct{})
	for _, k := range r.Kinds {
		set[k.Queue] = struct{}{}
	}
	queues := make([]string, 0, len(set))
	for q := range set {
		queues = append(queues, q)
	}
	sort.Strings(queues)
	return queues
}

// BackoffDelay is the parsed backoff delay, zero when unset.
func (k KindSpec) BackoffDelay() time.Duration {
	if k.Backoff == nil {
		return 0
	}
	d, _ := time.ParseDuration(k.Backoff.Delay)
	return d
}
