package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/damacus/iron-archivos/internal/records"
	"github.com/damacus/iron-archivos/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestProvisioner(t *testing.T) (*Provisioner, *records.Store, *MockStorageClient) {
	t.Helper()
	store, err := records.NewStore(filepath.Join(t.TempDir(), "records.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	client := new(MockStorageClient)
	p := NewProvisioner(store, client)
	p.newID = func() string { return "ABC-123" }
	return p, store, client
}

func TestBucketName(t *testing.T) {
	assert.Equal(t, "process-abc-123", BucketName("ABC-123"))
}

func TestProvisioner_CreateProvisionsBucketAndFolders(t *testing.T) {
	p, store, client := newTestProvisioner(t)
	ctx := context.Background()

	client.On("CreateBucket", ctx, "process-abc-123").Return("process-abc-123", nil)
	for _, folder := range DefaultFolders {
		client.On("UploadFile", ctx, "process-abc-123", folder+"/", ".keep", mock.Anything).
			Return(storage.File{Name: folder + "/.keep"}, nil).Once()
	}

	proc, err := p.Create(ctx, NewProcess{ClientID: "c1", Name: " Demanda laboral ", Radicado: "11001"})
	require.NoError(t, err)

	assert.Equal(t, "ABC-123", proc.ID)
	assert.Equal(t, "Demanda laboral", proc.Name)
	assert.Equal(t, records.StatusActive, proc.Status)
	assert.Equal(t, "process-abc-123", proc.BucketPath)

	stored, err := store.Get("ABC-123")
	require.NoError(t, err)
	assert.Equal(t, "process-abc-123", stored.BucketPath)
	client.AssertExpectations(t)
}

func TestProvisioner_BucketFailureRemovesRecord(t *testing.T) {
	p, store, client := newTestProvisioner(t)
	ctx := context.Background()

	client.On("CreateBucket", ctx, "process-abc-123").
		Return("", &storage.APIError{StatusCode: 500, Message: "backend down"})

	_, err := p.Create(ctx, NewProcess{ClientID: "c1", Name: "Tutela"})
	require.Error(t, err)

	var apiErr *storage.APIError
	assert.True(t, errors.As(err, &apiErr))
	_, err = store.Get("ABC-123")
	assert.ErrorIs(t, err, records.ErrNotFound)
	client.AssertNotCalled(t, "UploadFile", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProvisioner_FolderFailureIsNotFatal(t *testing.T) {
	p, _, client := newTestProvisioner(t)
	ctx := context.Background()

	client.On("CreateBucket", ctx, "process-abc-123").Return("process-abc-123", nil)
	client.On("UploadFile", ctx, "process-abc-123", "Actuaciones/", ".keep", mock.Anything).
		Return(storage.File{}, errors.New("timeout")).Once()
	client.On("UploadFile", ctx, "process-abc-123", mock.Anything, ".keep", mock.Anything).
		Return(storage.File{}, nil)

	proc, err := p.Create(ctx, NewProcess{ClientID: "c1", Name: "Tutela"})
	require.NoError(t, err)
	assert.Equal(t, "process-abc-123", proc.BucketPath)
	client.AssertNumberOfCalls(t, "UploadFile", len(DefaultFolders))
}

func TestProvisioner_ValidationFailsBeforeAnyWrite(t *testing.T) {
	p, store, client := newTestProvisioner(t)

	_, err := p.Create(context.Background(), NewProcess{Name: "  ", Status: "Archivado"})

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, err.Error(), "client is required")
	assert.Contains(t, err.Error(), "name is required")
	assert.Contains(t, err.Error(), "Archivado")

	all, _ := store.List("")
	assert.Empty(t, all)
	client.AssertNotCalled(t, "CreateBucket", mock.Anything, mock.Anything)
}

func TestProvisioner_Delete(t *testing.T) {
	p, store, _ := newTestProvisioner(t)
	require.NoError(t, store.Create(records.Process{ID: "p1"}))

	require.NoError(t, p.Delete("p1"))
	assert.ErrorIs(t, p.Delete("p1"), records.ErrNotFound)
}

func TestProvisioner_UpdateKeepsBucket(t *testing.T) {
	p, store, client := newTestProvisioner(t)
	require.NoError(t, store.Create(records.Process{ID: "p1", ClientID: "c1", Name: "Uno", Status: records.StatusInactive, BucketPath: "process-p1"}))

	proc, err := p.Update("p1", NewProcess{ClientID: " c2 ", Name: " Dos ", Radicado: "R-2"})
	require.NoError(t, err)

	assert.Equal(t, "c2", proc.ClientID)
	assert.Equal(t, "Dos", proc.Name)
	assert.Equal(t, "R-2", proc.Radicado)
	assert.Equal(t, records.StatusInactive, proc.Status)
	assert.Equal(t, "process-p1", proc.BucketPath)
	client.AssertNotCalled(t, "CreateBucket", mock.Anything, mock.Anything)
}

func TestProvisioner_UpdateValidates(t *testing.T) {
	p, store, _ := newTestProvisioner(t)
	require.NoError(t, store.Create(records.Process{ID: "p1", ClientID: "c1", Name: "Uno"}))

	_, err := p.Update("p1", NewProcess{ClientID: "c1", Name: "Uno", Status: "Archivado"})

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	stored, err := store.Get("p1")
	require.NoError(t, err)
	assert.Equal(t, records.StatusActive, stored.Status)
}

func TestProvisioner_UpdateMissingProcess(t *testing.T) {
	p, _, _ := newTestProvisioner(t)

	_, err := p.Update("missing", NewProcess{ClientID: "c1", Name: "Uno"})
	assert.ErrorIs(t, err, records.ErrNotFound)
}
