// Package archive persists finalized chat log entries to a local BoltDB file
// so conversations survive a restart of the client.
//
// Entries are grouped into one nested bucket per voice session id; entries
// appended outside a voice session go to the [TypedChat] bucket. Within a
// bucket keys are big-endian sequence numbers, so iteration order is append
// order.
package archive

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/MrWong99/docent/internal/chat"
)

// TypedChat is the bucket name for entries with no voice session.
const TypedChat = "chat"

var rootBucket = []byte("sessions")

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("archive: store closed")

// record is the JSON form of one entry.
type record struct {
	Role    string    `json:"role"`
	Text    string    `json:"text"`
	Session string    `json:"session,omitempty"`
	Time    time.Time `json:"time"`
}

// Store is safe for concurrent use.
type Store struct {
	db *bolt.DB
}

// Open opens or creates the archive at path, creating parent directories.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("archive: create directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("archive: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(rootBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("archive: init: %w", err)
	}
	return &Store{db: db}, nil
}

// Record appends e to its session bucket.
func (s *Store) Record(e chat.Entry) error {
	val, err := json.Marshal(record{Role: string(e.Role), Text: e.Text, Session: e.Session, Time: e.Time.UTC()})
	if err != nil {
		return fmt.Errorf("archive: encode entry: %w", err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(rootBucket).CreateBucketIfNotExists(bucketName(e.Session))
		if err != nil {
			return err
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put(seqKey(seq), val)
	})
	if errors.Is(err, bolt.ErrDatabaseNotOpen) {
		return ErrClosed
	}
	if err != nil {
		return fmt.Errorf("archive: record: %w", err)
	}
	return nil
}

// Sessions lists the bucket names in key order.
func (s *Store) Sessions() ([]string, error) {
	var out []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(rootBucket).ForEachBucket(func(k []byte) error {
			out = append(out, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("archive: list sessions: %w", err)
	}
	return out, nil
}

// Entries returns the entries of session in append order. Pass "" or
// [TypedChat] for entries recorded outside a voice session. Malformed
// records are skipped.
func (s *Store) Entries(session string) ([]chat.Entry, error) {
	var out []chat.Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(rootBucket).Bucket(bucketName(session))
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			var r record
			if json.Unmarshal(v, &r) != nil {
				return nil
			}
			out = append(out, chat.Entry{Role: chat.Role(r.Role), Text: r.Text, Session: r.Session, Time: r.Time})
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("archive: read %s: %w", session, err)
	}
	return out, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func bucketName(session string) []byte {
	if session == "" {
		return []byte(TypedChat)
	}
	return []byte(session)
}

func seqKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}
