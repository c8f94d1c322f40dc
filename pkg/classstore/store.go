// Package classstore is a content-addressed store for assembled class
// files. Classes are keyed by the SHA-256 of their bytes; a small
// metadata record rides along in canonical CBOR so the key is stable
// for identical content.
package classstore

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/fxamacker/cbor/v2"
	_ "modernc.org/sqlite"
)

// ErrClassNotFound indicates the requested hash is not in the store.
var ErrClassNotFound = errors.New("class not found")

// cborEncMode is canonical so identical metadata always encodes to the
// same bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("classstore: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// MethodSig identifies one method of a stored class.
type MethodSig struct {
	Name       string `cbor:"1,keyasint"`
	Descriptor string `cbor:"2,keyasint"`
}

// Meta is the structural metadata stored next to the class bytes.
type Meta struct {
	Name    string      `cbor:"1,keyasint"` // internal name, e.g. com/example/Foo
	Version int         `cbor:"2,keyasint"` // major class-file version
	Methods []MethodSig `cbor:"3,keyasint,omitempty"`
}

// Entry is one row of a store listing.
type Entry struct {
	Hash [32]byte
	Name string
}

// Store handles SQLite storage for class files.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (creating if needed) a store at the given database path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS classes (
		hash TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		meta BLOB NOT NULL,
		bytes BLOB NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Hash computes the content hash of a class file.
func Hash(classBytes []byte) [32]byte {
	return sha256.Sum256(classBytes)
}

// Put stores a class file and its metadata, returning the content hash.
// Storing the same bytes twice is a no-op on the same key.
func (s *Store) Put(classBytes []byte, meta *Meta) ([32]byte, error) {
	h := Hash(classBytes)

	encoded, err := cborEncMode.Marshal(meta)
	if err != nil {
		return h, fmt.Errorf("encoding metadata: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec(
		"INSERT OR REPLACE INTO classes (hash, name, meta, bytes) VALUES (?, ?, ?, ?)",
		hex.EncodeToString(h[:]), meta.Name, encoded, classBytes,
	)
	if err != nil {
		return h, fmt.Errorf("saving class: %w", err)
	}
	return h, nil
}

// Get retrieves the class bytes and metadata for a content hash.
func (s *Store) Get(h [32]byte) ([]byte, *Meta, error) {
	var encoded, classBytes []byte
	err := s.db.QueryRow(
		"SELECT meta, bytes FROM classes WHERE hash = ?",
		hex.EncodeToString(h[:]),
	).Scan(&encoded, &classBytes)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, ErrClassNotFound
		}
		return nil, nil, fmt.Errorf("querying class: %w", err)
	}

	var meta Meta
	if err := cbor.Unmarshal(encoded, &meta); err != nil {
		return nil, nil, fmt.Errorf("decoding metadata: %w", err)
	}
	return classBytes, &meta, nil
}

// FindByName returns the hashes of all stored classes with the given
// internal name. Distinct versions of one class have distinct hashes.
func (s *Store) FindByName(name string) ([][32]byte, error) {
	rows, err := s.db.Query("SELECT hash FROM classes WHERE name = ?", name)
	if err != nil {
		return nil, fmt.Errorf("querying by name: %w", err)
	}
	defer rows.Close()

	var hashes [][32]byte
	for rows.Next() {
		var hexHash string
		if err := rows.Scan(&hexHash); err != nil {
			return nil, fmt.Errorf("scanning hash: %w", err)
		}
		h, err := parseHash(hexHash)
		if err != nil {
			return nil, err
		}
		hashes = append(hashes, h)
	}
	return hashes, rows.Err()
}

// List returns every stored class, ordered by name.
func (s *Store) List() ([]Entry, error) {
	rows, err := s.db.Query("SELECT hash, name FROM classes ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("listing classes: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var hexHash, name string
		if err := rows.Scan(&hexHash, &name); err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		h, err := parseHash(hexHash)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Hash: h, Name: name})
	}
	return entries, rows.Err()
}

func parseHash(hexHash string) ([32]byte, error) {
	var h [32]byte
	raw, err := hex.DecodeString(hexHash)
	if err != nil || len(raw) != 32 {
		return h, fmt.Errorf("malformed hash key %q", hexHash)
	}
	copy(h[:], raw)
	return h, nil
}

// ParseHash converts a hex string to a content hash. Accepts unique
// prefixes of at least 8 hex digits when resolved against the store.
func (s *Store) ParseHash(key string) ([32]byte, error) {
	if len(key) == 64 {
		return parseHash(key)
	}
	if len(key) < 8 {
		return [32]byte{}, fmt.Errorf("hash prefix %q too short", key)
	}
	rows, err := s.db.Query("SELECT hash FROM classes WHERE hash LIKE ?", key+"%")
	if err != nil {
		return [32]byte{}, fmt.Errorf("resolving hash prefix: %w", err)
	}
	defer rows.Close()

	var match string
	for rows.Next() {
		var hexHash string
		if err := rows.Scan(&hexHash); err != nil {
			return [32]byte{}, fmt.Errorf("scanning hash: %w", err)
		}
		if match != "" {
			return [32]byte{}, fmt.Errorf("hash prefix %q is ambiguous", key)
		}
		match = hexHash
	}
	if err := rows.Err(); err != nil {
		return [32]byte{}, err
	}
	if match == "" {
		return [32]byte{}, ErrClassNotFound
	}
	return parseHash(match)
}
