package store

import (
	"database/sql"
	"fmt"
	"os"

	_ "github.com/mattn/go-sqlite3"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/gcapes/hpcflow-new/internal/lock"
)

// SQLiteStore keeps a workflow in a single SQLite database: a one-row
// metadata table holding the serialized metadata document, and a
// parameters table with one row per parameter group. Payloads are stored
// as YAML text so value fidelity matches the filesystem backend.
type SQLiteStore struct {
	path     string
	db       *sql.DB
	fileLock *lock.FileLock
}

// CreateSQLite initializes a new workflow database at path.
func CreateSQLite(path string, md *Metadata) (*SQLiteStore, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("workflow already exists at %q", path)
	}

	s, err := openSQLite(path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS metadata (
		id INTEGER PRIMARY KEY CHECK (id = 0),
		blob TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS parameters (
		ref INTEGER PRIMARY KEY AUTOINCREMENT,
		data TEXT NOT NULL,
		provenance TEXT
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		s.db.Close()
		return nil, fmt.Errorf("create workflow tables: %w", err)
	}

	if err := s.WriteMetadata(md); err != nil {
		s.db.Close()
		return nil, err
	}
	return s, nil
}

// OpenSQLite opens an existing workflow database, failing with
// WorkflowNotFoundError if none is present.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &WorkflowNotFoundError{Path: path}
	}

	s, err := openSQLite(path)
	if err != nil {
		return nil, err
	}

	md, err := s.ReadMetadata()
	if err != nil {
		s.db.Close()
		return nil, err
	}
	if err := md.validate(); err != nil {
		s.db.Close()
		return nil, fmt.Errorf("workflow at %q: %w", path, err)
	}
	return s, nil
}

func openSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open workflow database: %w", err)
	}
	return &SQLiteStore{
		path:     path,
		db:       db,
		fileLock: lock.NewFileLock(path + ".lock"),
	}, nil
}

func (s *SQLiteStore) AddParameterData(value any, provenance map[string]any) (int, error) {
	data, err := yamlv3.Marshal(value)
	if err != nil {
		return 0, fmt.Errorf("marshal parameter payload: %w", err)
	}
	prov, err := yamlv3.Marshal(provenance)
	if err != nil {
		return 0, fmt.Errorf("marshal provenance: %w", err)
	}

	res, err := s.db.Exec(`INSERT INTO parameters (data, provenance) VALUES (?, ?)`,
		string(data), string(prov))
	if err != nil {
		return 0, fmt.Errorf("insert parameter group: %w", err)
	}
	ref, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("parameter group reference: %w", err)
	}
	return int(ref), nil
}

func (s *SQLiteStore) GetParameterData(ref int) (any, error) {
	var data string
	err := s.db.QueryRow(`SELECT data FROM parameters WHERE ref = ?`, ref).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("parameter group %d does not exist", ref)
	}
	if err != nil {
		return nil, fmt.Errorf("read parameter group %d: %w", ref, err)
	}

	var value any
	if err := yamlv3.Unmarshal([]byte(data), &value); err != nil {
		return nil, fmt.Errorf("parse parameter group %d: %w", ref, err)
	}
	return value, nil
}

func (s *SQLiteStore) CheckParametersExist(refs []int) ([]bool, error) {
	out := make([]bool, len(refs))
	for i, ref := range refs {
		var one int
		err := s.db.QueryRow(`SELECT 1 FROM parameters WHERE ref = ?`, ref).Scan(&one)
		switch {
		case err == sql.ErrNoRows:
			out[i] = false
		case err != nil:
			return nil, fmt.Errorf("probe parameter group %d: %w", ref, err)
		default:
			out[i] = true
		}
	}
	return out, nil
}

func (s *SQLiteStore) ReadMetadata() (*Metadata, error) {
	var blob string
	err := s.db.QueryRow(`SELECT blob FROM metadata WHERE id = 0`).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, &WorkflowNotFoundError{Path: s.path}
	}
	if err != nil {
		return nil, fmt.Errorf("read workflow metadata: %w", err)
	}

	var md Metadata
	if err := yamlv3.Unmarshal([]byte(blob), &md); err != nil {
		return nil, fmt.Errorf("parse workflow metadata: %w", err)
	}
	return &md, nil
}

func (s *SQLiteStore) WriteMetadata(md *Metadata) error {
	blob, err := yamlv3.Marshal(md)
	if err != nil {
		return fmt.Errorf("marshal workflow metadata: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO metadata (id, blob) VALUES (0, ?) ON CONFLICT (id) DO UPDATE SET blob = excluded.blob`,
		string(blob))
	if err != nil {
		return fmt.Errorf("write workflow metadata: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Lock() error {
	return s.fileLock.TryLock()
}

func (s *SQLiteStore) Unlock() error {
	return s.fileLock.Unlock()
}

func (s *SQLiteStore) Location() string {
	return s.path
}

func (s *SQLiteStore) Close() error {
	_ = s.fileLock.Unlock()
	return s.db.Close()
}
