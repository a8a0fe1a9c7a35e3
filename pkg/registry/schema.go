// pkg/registry/schema.go
package registry

type KindRegistry struct {
	Version     string     `json:"version"`
	LastUpdated string     `json:"lastUpdated"`
	Kinds       []KindSpec `json:"kinds"`
}

// KindSpec describes one job kind: the queue it runs on, the retry policy it
// is enqueued with and the JSON schema its payload must satisfy.
type KindSpec struct {
	Kind        string                 `json:"kind"`
	Queue       string                 `json:"queue"`
	DisplayName string                 `json:"displayName"`
	Description string                 `json:"description"`
	Artifact    string                 `json:"artifact,omitempty"`
	Attempts    int                    `json:"attempts,omitempty"`
	Backoff     *BackoffSpec           `json:"backoff,omitempty"`
	InputSchema map[string]interface{} `json:"inputSchema"`
	Tags        []string               `json:"tags,omitempty"`
}

type BackoffSpec struct {
	Type  string `json:"type"`
	Delay string `json:"delay"` // Go duration, e.g. "2s"
}
