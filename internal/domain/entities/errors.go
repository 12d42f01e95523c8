package entities

import "errors"

// Error taxonomy. Components wrap these sentinels with fmt.Errorf("...: %w")
// so callers can classify failures with errors.Is without depending on
// adapter-specific error types.
var (
	// ErrConfiguration marks missing or invalid configuration. Fatal at startup.
	ErrConfiguration = errors.New("configuration error")

	// ErrEmbedding marks a failed embedding provider call. The in-flight
	// add or search is aborted and nothing is persisted.
	ErrEmbedding = errors.New("embedding error")

	// ErrNotFound marks an operation referencing an unknown conversation id.
	ErrNotFound = errors.New("not found")

	// ErrPersistence marks an I/O failure writing a snapshot or record.
	// In-memory state remains valid but is not guaranteed durable.
	ErrPersistence = errors.New("persistence error")

	// ErrGeneration marks a failed text-generation call. Summarization
	// failures degrade to "no summary update" instead of surfacing this.
	ErrGeneration = errors.New("generation error")
)
