// Package hostdata reads the desktop host's WebKit storage: the
// LocalStorage database holding the aggregator's auth session, and the
// IndexedDB records the host caches account data in. Everything here is
// strictly read-only; the databases are owned by the host application.
package hostdata

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/text/encoding/unicode"

	"worthbar/internal/models"

	// Read-only sqlite access to the host databases.
	_ "modernc.org/sqlite"
)

// Errors surfaced by the host storage layer.
var (
	// ErrSessionNotFound indicates the host storage, origin record, or the
	// authSession key is absent; the user is most likely not signed in.
	ErrSessionNotFound = errors.New("authSession not found in host storage")

	// ErrCacheUnavailable indicates the cached datasets cannot be located
	// or decoded.
	ErrCacheUnavailable = errors.New("host cache unavailable")
)

// Object store name fragments the host caches datasets under.
const (
	AccountsStore        = "accountsStore"
	BalancesHistoryStore = "accountsBalancesHistoryStore"
)

const sessionKey = "authSession"

// Reader locates and decodes data for one origin within a WebKit
// WebsiteData root.
type Reader struct {
	// Root is the WebsiteData/Default directory holding per-origin
	// two-level subdirectories.
	Root string

	// Host is matched as a substring of each origin marker file.
	Host string

	Log zerolog.Logger
}

// originDirs returns the directories whose origin marker mentions the
// configured host. Unreadable markers are skipped.
func (r *Reader) originDirs() ([]string, error) {
	if _, err := os.Stat(r.Root); err != nil {
		return nil, fmt.Errorf("host storage missing: %s", r.Root)
	}

	markers, err := filepath.Glob(filepath.Join(r.Root, "*", "*", "origin"))
	if err != nil {
		return nil, err
	}

	var dirs []string
	for _, marker := range markers {
		data, err := os.ReadFile(marker)
		if err != nil {
			continue
		}
		if strings.Contains(string(data), r.Host) {
			dirs = append(dirs, filepath.Dir(marker))
		}
	}
	return dirs, nil
}

// AuthSession reads the host's locally stored aggregator session out of
// the origin's LocalStorage database. The stored value is UTF-16LE JSON.
func (r *Reader) AuthSession() (models.AuthSession, error) {
	dirs, err := r.originDirs()
	if err != nil {
		return models.AuthSession{}, fmt.Errorf("%w: %v (are you signed in?)", ErrSessionNotFound, err)
	}
	if len(dirs) == 0 {
		return models.AuthSession{}, fmt.Errorf("%w: no origin directory for %s", ErrSessionNotFound, r.Host)
	}

	dbPath := filepath.Join(dirs[0], "LocalStorage", "localstorage.sqlite3")
	if _, err := os.Stat(dbPath); err != nil {
		return models.AuthSession{}, fmt.Errorf("%w: LocalStorage db missing: %s", ErrSessionNotFound, dbPath)
	}

	db, err := openReadOnly(dbPath)
	if err != nil {
		return models.AuthSession{}, fmt.Errorf("%w: %v", ErrSessionNotFound, err)
	}
	defer db.Close()

	var blob []byte
	err = db.QueryRow("SELECT value FROM ItemTable WHERE key = ?", sessionKey).Scan(&blob)
	if err == sql.ErrNoRows {
		return models.AuthSession{}, fmt.Errorf("%w: key %q not present", ErrSessionNotFound, sessionKey)
	}
	if err != nil {
		return models.AuthSession{}, fmt.Errorf("%w: %v", ErrSessionNotFound, err)
	}

	text, err := decodeUTF16LE(blob)
	if err != nil {
		return models.AuthSession{}, fmt.Errorf("%w: %v", ErrSessionNotFound, err)
	}

	var session models.AuthSession
	if err := json.Unmarshal([]byte(text), &session); err != nil {
		return models.AuthSession{}, fmt.Errorf("%w: authSession is not a JSON object: %v", ErrSessionNotFound, err)
	}

	r.Log.Debug().Str("dir", dirs[0]).Msg("loaded auth session from host storage")
	return session, nil
}

// CacheBlob scans the origin's IndexedDB databases for the first record
// whose key contains storeName and returns its raw value.
func (r *Reader) CacheBlob(storeName string) ([]byte, error) {
	dirs, err := r.originDirs()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}

	for _, dir := range dirs {
		root := filepath.Join(dir, "IndexedDB")
		dbPaths, err := filepath.Glob(filepath.Join(root, "*", "IndexedDB.sqlite3"))
		if err != nil {
			continue
		}
		for _, dbPath := range dbPaths {
			blob, ok := r.scanRecords(dbPath, storeName)
			if ok {
				return blob, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: no %s record found", ErrCacheUnavailable, storeName)
}

// scanRecords walks one Records table looking for a key containing
// storeName. Database errors skip the file rather than failing the scan.
func (r *Reader) scanRecords(dbPath, storeName string) ([]byte, bool) {
	db, err := openReadOnly(dbPath)
	if err != nil {
		r.Log.Debug().Str("db", dbPath).Err(err).Msg("skipping unreadable IndexedDB file")
		return nil, false
	}
	defer db.Close()

	rows, err := db.Query("SELECT key, value FROM Records")
	if err != nil {
		r.Log.Debug().Str("db", dbPath).Err(err).Msg("skipping IndexedDB file without Records table")
		return nil, false
	}
	defer rows.Close()

	for rows.Next() {
		var key, value any
		if err := rows.Scan(&key, &value); err != nil {
			continue
		}
		if !strings.Contains(cleanKey(key), storeName) {
			continue
		}
		if blob, ok := value.([]byte); ok {
			return append([]byte(nil), blob...), true
		}
	}
	return nil, false
}

func openReadOnly(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// cleanKey renders a record key as text with NUL padding stripped; keys
// may be stored as text or as UTF-16-ish blobs.
func cleanKey(key any) string {
	var raw string
	switch v := key.(type) {
	case []byte:
		raw = string(v)
	case string:
		raw = v
	default:
		raw = fmt.Sprint(v)
	}
	return strings.ReplaceAll(raw, "\x00", "")
}

// decodeUTF16LE decodes a little-endian UTF-16 byte stream to UTF-8 text.
func decodeUTF16LE(blob []byte) (string, error) {
	dec := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
	out, err := dec.Bytes(blob)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
