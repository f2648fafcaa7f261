// Package store persists workflow metadata and parameter data. Two
// backends implement the same contract: a directory of YAML files and a
// single SQLite database. Neither backend is transactional; atomicity of a
// workflow mutation is provided above the store by the batch-update
// protocol, which uses whole-metadata comparison for conflict detection.
package store

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	yamlv3 "gopkg.in/yaml.v3"
)

const (
	// CurrentSchemaVersion is the metadata schema version this build
	// reads and writes.
	CurrentSchemaVersion = 1

	// MetadataFileType tags a metadata document.
	MetadataFileType = "workflow_metadata"
)

// Store is the persistence contract consumed by workflows. Parameter data
// payloads are opaque; references are unique integer group indices.
type Store interface {
	// AddParameterData writes one payload with its provenance tag and
	// returns a fresh reference.
	AddParameterData(value any, provenance map[string]any) (int, error)
	// GetParameterData reads back a previously written payload; an exact
	// round trip of the value's serialized representation.
	GetParameterData(ref int) (any, error)
	// CheckParametersExist probes existence without materializing values.
	CheckParametersExist(refs []int) ([]bool, error)
	// ReadMetadata returns the current on-disk metadata.
	ReadMetadata() (*Metadata, error)
	// WriteMetadata replaces the whole metadata document.
	WriteMetadata(md *Metadata) error
	// Lock and Unlock bracket a commit; the lock is advisory and
	// inter-process.
	Lock() error
	Unlock() error
	// Location identifies the store for display and errors.
	Location() string
	Close() error
}

// Metadata is the whole-workflow metadata document. Unknown keys are kept
// in Extra so externally added fields survive a read-modify-write cycle.
type Metadata struct {
	SchemaVersion int            `yaml:"schema_version"`
	FileType      string         `yaml:"file_type"`
	WorkflowID    string         `yaml:"workflow_id"`
	Name          string         `yaml:"name"`
	Tasks         []TaskMeta     `yaml:"tasks"`
	Extra         map[string]any `yaml:",inline"`
}

// TaskMeta records one added task: its declared outputs, where each of its
// inputs is sourced from, and the parameter group references holding its
// data.
type TaskMeta struct {
	Name     string `yaml:"name"`
	InsertID int    `yaml:"insert_id"`

	// InputData and ResourceData map normalized parameter paths to group
	// references.
	InputData    map[string][]int `yaml:"input_data,omitempty"`
	ResourceData map[string][]int `yaml:"resource_data,omitempty"`

	Sequences []SequenceMeta `yaml:"sequences,omitempty"`
	Outputs   []OutputMeta   `yaml:"outputs,omitempty"`

	// InputSources maps each input parameter type to its serialized
	// input-source strings.
	InputSources map[string][]string `yaml:"input_sources,omitempty"`
}

type SequenceMeta struct {
	Path         string `yaml:"path"`
	NestingOrder int    `yaml:"nesting_order"`
	IsUnused     bool   `yaml:"is_unused,omitempty"`
	Refs         []int  `yaml:"refs"`
}

type OutputMeta struct {
	Type            string `yaml:"type"`
	PropagationMode string `yaml:"propagation_mode"`
}

// NewMetadata builds an empty metadata document for a fresh workflow.
func NewMetadata(name, workflowID string) *Metadata {
	return &Metadata{
		SchemaVersion: CurrentSchemaVersion,
		FileType:      MetadataFileType,
		WorkflowID:    workflowID,
		Name:          name,
	}
}

// Digest returns a hex SHA-256 of the serialized metadata, used for
// conflict detection: two metadata documents are equivalent iff their
// digests match.
func (m *Metadata) Digest() (string, error) {
	blob, err := yamlv3.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal metadata for digest: %w", err)
	}
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:]), nil
}

// Clone deep-copies the metadata through its serialized form.
func (m *Metadata) Clone() (*Metadata, error) {
	blob, err := yamlv3.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata for clone: %w", err)
	}
	var out Metadata
	if err := yamlv3.Unmarshal(blob, &out); err != nil {
		return nil, fmt.Errorf("unmarshal metadata clone: %w", err)
	}
	return &out, nil
}

func (m *Metadata) validate() error {
	if m.SchemaVersion != CurrentSchemaVersion {
		return fmt.Errorf("unsupported schema_version %d (expected %d)", m.SchemaVersion, CurrentSchemaVersion)
	}
	if m.FileType != MetadataFileType {
		return fmt.Errorf("unexpected file_type %q (expected %s)", m.FileType, MetadataFileType)
	}
	return nil
}

// WorkflowNotFoundError reports that no workflow exists at the given
// location.
type WorkflowNotFoundError struct {
	Path string
}

func (e *WorkflowNotFoundError) Error() string {
	return fmt.Sprintf("no workflow found at %q", e.Path)
}
