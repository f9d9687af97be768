package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/cesargomez89/dictation/internal/storage"
)

// Document is a single serialized blob that is always read and written whole.
// Load returns nil data and no error when the document does not exist yet.
type Document interface {
	Load() ([]byte, error)
	Save(data []byte) error
}

// FileDocument keeps the document in one file on disk
type FileDocument struct {
	Path string
}

func NewFileDocument(path string) *FileDocument {
	return &FileDocument{Path: path}
}

func (d *FileDocument) Load() ([]byte, error) {
	data, err := storage.ReadFile(d.Path)
	if storage.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", d.Path, err)
	}
	return data, nil
}

func (d *FileDocument) Save(data []byte) error {
	return storage.WriteFile(d.Path, data)
}

// SQLDocument keeps the document in one row of the documents table
type SQLDocument struct {
	db   *DB
	name string
}

func NewSQLDocument(db *DB, name string) *SQLDocument {
	return &SQLDocument{db: db, name: name}
}

func (d *SQLDocument) Load() ([]byte, error) {
	var data []byte
	err := d.db.Get(&data, "SELECT data FROM documents WHERE name = ?", d.name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load document %s: %w", d.name, err)
	}
	return data, nil
}

func (d *SQLDocument) Save(data []byte) error {
	_, err := d.db.Exec(`
		INSERT INTO documents (name, data, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(name) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`, d.name, data)
	if err != nil {
		return fmt.Errorf("failed to save document %s: %w", d.name, err)
	}
	return nil
}

// ensure interface compliance
var (
	_ Document = (*FileDocument)(nil)
	_ Document = (*SQLDocument)(nil)
)
