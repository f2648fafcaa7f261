package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	yamlv3 "gopkg.in/yaml.v3"

	"github.com/gcapes/hpcflow-new/internal/lock"
	atomicyaml "github.com/gcapes/hpcflow-new/internal/yaml"
)

const (
	metadataFileName = "metadata.yaml"
	parametersDir    = "parameters"
	lockFileName     = "workflow.lock"
)

// writeLocks serializes in-process writes per workflow root; distinct
// FSStore instances opened on the same directory share one mutex.
var writeLocks = lock.NewMutexMap()

// paramDoc is the on-disk form of one parameter group.
type paramDoc struct {
	Value      any            `yaml:"value"`
	Provenance map[string]any `yaml:"provenance,omitempty"`
}

// FSStore keeps a workflow as a directory: metadata.yaml plus one YAML
// file per parameter group under parameters/.
type FSStore struct {
	root     string
	fileLock *lock.FileLock
	nextRef  int
}

// CreateFS initializes a new workflow directory. The directory may exist
// but must not already contain a workflow.
func CreateFS(root string, md *Metadata) (*FSStore, error) {
	mdPath := filepath.Join(root, metadataFileName)
	if _, err := os.Stat(mdPath); err == nil {
		return nil, fmt.Errorf("workflow already exists at %q", root)
	}
	if err := os.MkdirAll(filepath.Join(root, parametersDir), 0755); err != nil {
		return nil, fmt.Errorf("create workflow directory: %w", err)
	}

	s := &FSStore{
		root:     root,
		fileLock: lock.NewFileLock(filepath.Join(root, lockFileName)),
	}
	if err := s.WriteMetadata(md); err != nil {
		return nil, err
	}
	return s, nil
}

// OpenFS opens an existing workflow directory, failing with
// WorkflowNotFoundError if none is present.
func OpenFS(root string) (*FSStore, error) {
	s := &FSStore{
		root:     root,
		fileLock: lock.NewFileLock(filepath.Join(root, lockFileName)),
	}

	md, err := s.ReadMetadata()
	if err != nil {
		return nil, err
	}
	if err := md.validate(); err != nil {
		return nil, fmt.Errorf("workflow at %q: %w", root, err)
	}

	next, err := s.scanNextRef()
	if err != nil {
		return nil, err
	}
	s.nextRef = next
	return s, nil
}

// scanNextRef finds the next free parameter group index from the files on
// disk.
func (s *FSStore) scanNextRef() (int, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, parametersDir))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("scan parameter groups: %w", err)
	}

	next := 0
	for _, e := range entries {
		name := strings.TrimSuffix(e.Name(), ".yaml")
		idx, err := strconv.Atoi(name)
		if err != nil {
			continue
		}
		if idx >= next {
			next = idx + 1
		}
	}
	return next, nil
}

func (s *FSStore) paramPath(ref int) string {
	return filepath.Join(s.root, parametersDir, strconv.Itoa(ref)+".yaml")
}

func (s *FSStore) AddParameterData(value any, provenance map[string]any) (int, error) {
	writeLocks.Lock(s.root)
	defer writeLocks.Unlock(s.root)

	ref := s.nextRef
	doc := paramDoc{Value: value, Provenance: provenance}
	if err := atomicyaml.AtomicWrite(s.paramPath(ref), &doc); err != nil {
		return 0, fmt.Errorf("write parameter group %d: %w", ref, err)
	}
	s.nextRef++
	return ref, nil
}

func (s *FSStore) GetParameterData(ref int) (any, error) {
	content, err := os.ReadFile(s.paramPath(ref))
	if err != nil {
		return nil, fmt.Errorf("read parameter group %d: %w", ref, err)
	}
	var doc paramDoc
	if err := yamlv3.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("parse parameter group %d: %w", ref, err)
	}
	return doc.Value, nil
}

func (s *FSStore) CheckParametersExist(refs []int) ([]bool, error) {
	out := make([]bool, len(refs))
	for i, ref := range refs {
		_, err := os.Stat(s.paramPath(ref))
		out[i] = err == nil
	}
	return out, nil
}

func (s *FSStore) ReadMetadata() (*Metadata, error) {
	content, err := os.ReadFile(filepath.Join(s.root, metadataFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &WorkflowNotFoundError{Path: s.root}
		}
		return nil, fmt.Errorf("read workflow metadata: %w", err)
	}

	var md Metadata
	if err := yamlv3.Unmarshal(content, &md); err != nil {
		return nil, fmt.Errorf("parse workflow metadata: %w", err)
	}
	return &md, nil
}

func (s *FSStore) WriteMetadata(md *Metadata) error {
	writeLocks.Lock(s.root)
	defer writeLocks.Unlock(s.root)
	return atomicyaml.AtomicWrite(filepath.Join(s.root, metadataFileName), md)
}

func (s *FSStore) Lock() error {
	return s.fileLock.TryLock()
}

func (s *FSStore) Unlock() error {
	return s.fileLock.Unlock()
}

func (s *FSStore) Location() string {
	return s.root
}

func (s *FSStore) Close() error {
	return s.fileLock.Unlock()
}
