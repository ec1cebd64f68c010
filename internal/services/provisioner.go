package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/damacus/iron-archivos/internal/records"
	"github.com/damacus/iron-archivos/internal/storage"
	"github.com/google/uuid"
)

// BucketPrefix prefixes every process bucket name.
const BucketPrefix = "process-"

// sentinelName mirrors browser.SentinelName; folders exist through it.
const sentinelName = ".keep"

// DefaultFolders are created in every new process bucket.
var DefaultFolders = []string{
	"Actuaciones",
	"Documentos Entregados Cliente",
	"Documentos Trabajo",
	"Documentos Estudio",
}

// ProcessStore is the part of the registry the provisioner writes to.
type ProcessStore interface {
	Create(p records.Process) error
	Get(id string) (*records.Process, error)
	SetBucketPath(id, bucket string) error
	Update(id string, fn func(*records.Process) error) (*records.Process, error)
	Delete(id string) error
}

// NewProcess is the user input for a process.
type NewProcess struct {
	ClientID string
	Name     string
	Radicado string
	Status   records.Status
}

func (n NewProcess) validate() error {
	var errs []error
	if strings.TrimSpace(n.ClientID) == "" {
		errs = append(errs, errors.New("client is required"))
	}
	if strings.TrimSpace(n.Name) == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if n.Status != "" && !n.Status.Valid() {
		errs = append(errs, fmt.Errorf("unknown status %q", n.Status))
	}
	return errors.Join(errs...)
}

// ValidationError wraps input problems so handlers can answer 400.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return e.Err.Error() }
func (e *ValidationError) Unwrap() error { return e.Err }

// Provisioner creates processes together with their storage bucket.
type Provisioner struct {
	store   ProcessStore
	storage storage.Client
	newID   func() string
}

func NewProvisioner(store ProcessStore, client storage.Client) *Provisioner {
	return &Provisioner{store: store, storage: client, newID: uuid.NewString}
}

// BucketName returns the bucket name for a process id.
func BucketName(processID string) string {
	return BucketPrefix + strings.ToLower(processID)
}

// Create stores the process, creates its bucket and default folders and
// records the bucket on the process. When the bucket cannot be created the
// record is removed again. Folder failures are logged and do not fail the
// process, since folders can be recreated from the browser.
func (p *Provisioner) Create(ctx context.Context, in NewProcess) (*records.Process, error) {
	if err := in.validate(); err != nil {
		return nil, &ValidationError{Err: err}
	}

	proc := records.Process{
		ID:       p.newID(),
		ClientID: strings.TrimSpace(in.ClientID),
		Name:     strings.TrimSpace(in.Name),
		Radicado: strings.TrimSpace(in.Radicado),
		Status:   in.Status,
	}
	if err := p.store.Create(proc); err != nil {
		return nil, fmt.Errorf("create process: %w", err)
	}

	bucket, err := p.storage.CreateBucket(ctx, BucketName(proc.ID))
	if err != nil {
		slog.Error("bucket provisioning failed, removing process", "process", proc.ID, "error", err)
		if delErr := p.store.Delete(proc.ID); delErr != nil {
			slog.Error("rollback of process failed", "process", proc.ID, "error", delErr)
		}
		return nil, fmt.Errorf("create bucket for process %s: %w", proc.ID, err)
	}

	for _, folder := range DefaultFolders {
		if _, err := p.storage.UploadFile(ctx, bucket, folder+"/", sentinelName, bytes.NewReader(nil)); err != nil {
			slog.Warn("default folder creation failed", "bucket", bucket, "folder", folder, "error", err)
		}
	}

	if err := p.store.SetBucketPath(proc.ID, bucket); err != nil {
		return nil, fmt.Errorf("record bucket for process %s: %w", proc.ID, err)
	}

	slog.Info("process provisioned", "process", proc.ID, "bucket", bucket)
	return p.store.Get(proc.ID)
}

// Update rewrites the user-editable fields of a process. An empty status keeps
// the current one. The bucket is not touched.
func (p *Provisioner) Update(id string, in NewProcess) (*records.Process, error) {
	if err := in.validate(); err != nil {
		return nil, &ValidationError{Err: err}
	}

	proc, err := p.store.Update(id, func(proc *records.Process) error {
		proc.ClientID = strings.TrimSpace(in.ClientID)
		proc.Name = strings.TrimSpace(in.Name)
		proc.Radicado = strings.TrimSpace(in.Radicado)
		if in.Status != "" {
			proc.Status = in.Status
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update process %s: %w", id, err)
	}

	slog.Info("process updated", "process", id)
	return proc, nil
}

// Delete removes the process record. The bucket and its files are kept.
func (p *Provisioner) Delete(id string) error {
	return p.store.Delete(id)
}
