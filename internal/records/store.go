// Package records keeps the process registry in a local bbolt database.
package records

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
)

var processesBucket = []byte("processes")

// ErrNotFound is returned when no process has the requested id.
var ErrNotFound = errors.New("process not found")

type Status string

const (
	StatusActive   Status = "Activo"
	StatusInactive Status = "Inactivo"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	return s == StatusActive || s == StatusInactive
}

// Process is one legal process. BucketPath is empty until its storage bucket
// has been provisioned.
type Process struct {
	ID         string    `json:"id"`
	ClientID   string    `json:"client_id"`
	Name       string    `json:"nombre"`
	Radicado   string    `json:"radicado"`
	Status     Status    `json:"estado"`
	CreatedAt  time.Time `json:"fecha_creacion"`
	BucketPath string    `json:"bucket_path,omitempty"`
}

type Store struct {
	db *bolt.DB
}

func NewStore(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open records db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(processesBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init records buckets: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Create stores a new process. The id must be set and unused.
func (s *Store) Create(p Process) error {
	if p.ID == "" {
		return errors.New("process id is required")
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if p.Status == "" {
		p.Status = StatusActive
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(processesBucket)
		if b.Get([]byte(p.ID)) != nil {
			return fmt.Errorf("process already exists: %s", p.ID)
		}
		return put(b, p)
	})
}

func (s *Store) Get(id string) (*Process, error) {
	var p *Process
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(processesBucket).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		p = &Process{}
		return json.Unmarshal(data, p)
	})
	return p, err
}

// List returns processes newest first. A non-empty clientID restricts the
// result to that client's processes.
func (s *Store) List(clientID string) ([]Process, error) {
	var out []Process
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(processesBucket).ForEach(func(k, v []byte) error {
			var p Process
			if err := json.Unmarshal(v, &p); err != nil {
				return err
			}
			if clientID == "" || p.ClientID == clientID {
				out = append(out, p)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return strings.Compare(out[i].ID, out[j].ID) < 0
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Update applies fn to the stored process inside one transaction.
func (s *Store) Update(id string, fn func(*Process) error) (*Process, error) {
	var updated *Process
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(processesBucket)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		var p Process
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		if err := fn(&p); err != nil {
			return err
		}
		p.ID = id
		updated = &p
		return put(b, p)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// SetBucketPath records the storage bucket of a process.
func (s *Store) SetBucketPath(id, bucket string) error {
	_, err := s.Update(id, func(p *Process) error {
		p.BucketPath = bucket
		return nil
	})
	return err
}

func (s *Store) Delete(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(processesBucket)
		if b.Get([]byte(id)) == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return b.Delete([]byte(id))
	})
}

func put(b *bolt.Bucket, p Process) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return b.Put([]byte(p.ID), data)
}
