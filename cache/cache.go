// Package cache stores compiled modules in SQLite, keyed by the hash of
// their source text, so unchanged files skip the compiler.
package cache

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/nagini-lang/nagini/pkg/bytecode"
)

var log = commonlog.GetLogger("nagini.cache")

const schema = `CREATE TABLE IF NOT EXISTS modules (
	key     TEXT PRIMARY KEY,
	major   INTEGER NOT NULL,
	minor   INTEGER NOT NULL,
	name    TEXT NOT NULL,
	code    BLOB NOT NULL,
	created INTEGER NOT NULL
)`

// Cache is a compiled-module cache backed by a SQLite database. It is safe
// for concurrent use.
type Cache struct {
	db   *sql.DB
	path string
	mu   sync.Mutex

	hits   atomic.Int64
	misses atomic.Int64
}

// Stats summarizes cache activity since Open.
type Stats struct {
	Entries int
	Hits    int64
	Misses  int64
}

// Open opens (creating if needed) the cache database at path.
func Open(path string) (*Cache, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating cache dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// One connection: pragmas are per connection and writers serialize anyway.
	db.SetMaxOpenConns(1)

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	log.Debugf("opened %s", path)
	return &Cache{db: db, path: path}, nil
}

// Close closes the database connection.
func (c *Cache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Path returns the database file path.
func (c *Cache) Path() string { return c.path }

// Key returns the cache key for a source text.
func Key(source []byte) string {
	sum := sha256.Sum256(source)
	return hex.EncodeToString(sum[:])
}

// Get returns the cached module compiled from source, or nil on a miss.
// Entries written by a different bytecode version, or that no longer
// decode, are dropped and reported as misses.
func (c *Cache) Get(source []byte) (*bytecode.Module, error) {
	key := Key(source)

	var major, minor int
	var code []byte
	err := c.db.QueryRow("SELECT major, minor, code FROM modules WHERE key = ?", key).Scan(&major, &minor, &code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.misses.Add(1)
			return nil, nil
		}
		return nil, fmt.Errorf("querying module: %w", err)
	}

	if major != int(bytecode.VersionMajor) || minor != int(bytecode.VersionMinor) {
		log.Debugf("stale entry %s (version %d.%d)", key[:12], major, minor)
		c.misses.Add(1)
		return nil, c.remove(key)
	}

	m := bytecode.NewModule()
	if err := m.UnmarshalBinary(code); err != nil {
		log.Warningf("dropping corrupt entry %s: %s", key[:12], err)
		c.misses.Add(1)
		return nil, c.remove(key)
	}
	if err := m.Validate(); err != nil {
		log.Warningf("dropping invalid entry %s: %s", key[:12], err)
		c.misses.Add(1)
		return nil, c.remove(key)
	}

	c.hits.Add(1)
	return m, nil
}

// Put stores the module compiled from source. name is informational and
// shows up in List.
func (c *Cache) Put(source []byte, name string, m *bytecode.Module) error {
	code, err := m.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encoding module: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	_, err = c.db.Exec(
		"INSERT OR REPLACE INTO modules (key, major, minor, name, code, created) VALUES (?, ?, ?, ?, ?, ?)",
		Key(source), int(bytecode.VersionMajor), int(bytecode.VersionMinor), name, code, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("saving module: %w", err)
	}
	return nil
}

func (c *Cache) remove(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.db.Exec("DELETE FROM modules WHERE key = ?", key); err != nil {
		return fmt.Errorf("deleting module: %w", err)
	}
	return nil
}

// Entry describes one cached module.
type Entry struct {
	Key     string
	Name    string
	Size    int
	Created time.Time
}

// List returns the cached entries, newest first.
func (c *Cache) List() ([]Entry, error) {
	rows, err := c.db.Query("SELECT key, name, length(code), created FROM modules ORDER BY created DESC, key")
	if err != nil {
		return nil, fmt.Errorf("listing modules: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var created int64
		if err := rows.Scan(&e.Key, &e.Name, &e.Size, &created); err != nil {
			return nil, err
		}
		e.Created = time.Unix(created, 0)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Clear removes every entry.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.db.Exec("DELETE FROM modules"); err != nil {
		return fmt.Errorf("clearing cache: %w", err)
	}
	return nil
}

// Stats reports the number of entries and the hit/miss counters.
func (c *Cache) Stats() (Stats, error) {
	var n int
	if err := c.db.QueryRow("SELECT COUNT(*) FROM modules").Scan(&n); err != nil {
		return Stats{}, fmt.Errorf("counting modules: %w", err)
	}
	return Stats{Entries: n, Hits: c.hits.Load(), Misses: c.misses.Load()}, nil
}
