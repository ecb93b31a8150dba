package image

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chazu/candy/vm/chunk"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNotFound indicates the requested image or module doesn't exist.
var ErrNotFound = errors.New("image not found")

// ---------------------------------------------------------------------------
// Store: content-addressed image storage in sqlite
// ---------------------------------------------------------------------------

// Store keeps chunk images keyed by the SHA-256 of their canonical encoding,
// plus an index from module names to the image installed under each name.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Installation describes one module-name binding.
type Installation struct {
	Name        string
	Hash        string
	ID          string
	InstalledAt time.Time
}

// OpenStore opens (creating if needed) the store at path. ":memory:" gives a
// private in-memory store.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening image store: %w", err)
	}
	// an in-memory database lives only as long as its connection
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS images (
		hash TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		data BLOB NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating images table: %w", err)
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS modules (
		name TEXT PRIMARY KEY,
		hash TEXT NOT NULL REFERENCES images(hash),
		install_id TEXT NOT NULL,
		installed_at INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating modules table: %w", err)
	}

	log.Debugf("opened image store %s", path)
	return &Store{db: db, path: path}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Hash returns the content address of an encoded image.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Put stores c and returns its content hash. Storing the same chunk twice is
// a no-op.
func (s *Store) Put(c *chunk.Chunk) (string, error) {
	data, err := MarshalChunk(c)
	if err != nil {
		return "", err
	}
	h := Hash(data)

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec(`INSERT OR IGNORE INTO images (hash, source, data) VALUES (?, ?, ?)`,
		h, c.SourceName, data)
	if err != nil {
		return "", fmt.Errorf("storing image: %w", err)
	}
	return h, nil
}

// Get loads the chunk stored under hash.
func (s *Store) Get(hash string) (*chunk.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var data []byte
	err := s.db.QueryRow(`SELECT data FROM images WHERE hash = ?`, hash).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading image %s: %w", hash, err)
	}
	if Hash(data) != hash {
		return nil, fmt.Errorf("image %s: content hash mismatch", hash)
	}
	return UnmarshalChunk(data)
}

// Has reports whether an image with the given hash is stored.
func (s *Store) Has(hash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM images WHERE hash = ?`, hash).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// Install stores c and binds it to the module name, replacing any previous
// binding. It returns the new installation record.
func (s *Store) Install(name string, c *chunk.Chunk) (*Installation, error) {
	h, err := s.Put(c)
	if err != nil {
		return nil, err
	}
	inst := &Installation{
		Name:        name,
		Hash:        h,
		ID:          uuid.NewString(),
		InstalledAt: time.Now().UTC().Truncate(time.Second),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec(`INSERT INTO modules (name, hash, install_id, installed_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET hash = excluded.hash, install_id = excluded.install_id, installed_at = excluded.installed_at`,
		inst.Name, inst.Hash, inst.ID, inst.InstalledAt.Unix())
	if err != nil {
		return nil, fmt.Errorf("installing module %s: %w", name, err)
	}
	log.Infof("installed module %s as %s", name, h[:12])
	return inst, nil
}

// Lookup returns the installation bound to name.
func (s *Store) Lookup(name string) (*Installation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst := &Installation{Name: name}
	var at int64
	err := s.db.QueryRow(`SELECT hash, install_id, installed_at FROM modules WHERE name = ?`, name).
		Scan(&inst.Hash, &inst.ID, &at)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("looking up module %s: %w", name, err)
	}
	inst.InstalledAt = time.Unix(at, 0).UTC()
	return inst, nil
}

// LoadModule returns the chunk installed under name.
func (s *Store) LoadModule(name string) (*chunk.Chunk, error) {
	inst, err := s.Lookup(name)
	if err != nil {
		return nil, err
	}
	return s.Get(inst.Hash)
}

// Uninstall removes the binding for name. The image itself stays.
func (s *Store) Uninstall(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`DELETE FROM modules WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("uninstalling module %s: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Modules lists the installed module names in order.
func (s *Store) Modules() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT name FROM modules ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing modules: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
