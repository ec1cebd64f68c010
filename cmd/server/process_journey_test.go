package main

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/damacus/iron-archivos/internal/services"
	"github.com/damacus/iron-archivos/internal/storage"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const journeyBucket = "process-journey"

func sentinels(folders ...string) []storage.File {
	files := make([]storage.File, 0, len(folders))
	for _, f := range folders {
		files = append(files, storage.File{Name: f + "/.keep", Updated: time.Now()})
	}
	return files
}

func TestProcessJourney(t *testing.T) {
	srv := newTestServer(t)
	browser := newBrowserSession(srv.e)
	browser.get("/procesos")

	// Step A: Create a process; its bucket and default folders are provisioned
	srv.storage.On("CreateBucket", mock.Anything, mock.MatchedBy(func(b string) bool {
		return strings.HasPrefix(b, services.BucketPrefix)
	})).Return(journeyBucket, nil).Once()
	srv.storage.On("UploadFile", mock.Anything, journeyBucket, mock.Anything, ".keep", mock.Anything).
		Return(storage.File{}, nil).Times(len(services.DefaultFolders))

	rec := browser.postForm("/procesos/create", url.Values{
		"clientId": {"cliente-7"},
		"nombre":   {"Sucesión Pérez"},
		"radicado": {"11001-2024-0001"},
		"estado":   {"Activo"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "/procesos", rec.Header().Get("HX-Redirect"))

	procs, err := srv.store.List("cliente-7")
	require.NoError(t, err)
	require.Len(t, procs, 1)
	id := procs[0].ID
	base := "/procesos/" + id + "/archivos"

	// Step B: The process shows up in the table
	rec = browser.get("/procesos?cliente=cliente-7")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Sucesión Pérez")
	assert.Contains(t, rec.Body.String(), base)

	// Step B2: Edit the process; the bucket stays the same
	rec = browser.get("/procesos/" + id + "/edit")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `hx-post="/procesos/`+id+`/edit"`)
	assert.Contains(t, rec.Body.String(), `value="Sucesión Pérez"`)

	rec = browser.postForm("/procesos/"+id+"/edit", url.Values{
		"clientId": {"cliente-7"},
		"nombre":   {"Sucesión Pérez Gómez"},
		"radicado": {"11001-2024-0001"},
		"estado":   {"Inactivo"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "/procesos", rec.Header().Get("HX-Redirect"))
	assert.Contains(t, browser.get("/procesos?cliente=cliente-7").Body.String(), "Sucesión Pérez Gómez")

	// Step C: Browse the bucket root
	srv.storage.On("ListFiles", mock.Anything, journeyBucket, "").Return(sentinels(services.DefaultFolders...), nil)
	rec = browser.get(base)
	require.Equal(t, http.StatusOK, rec.Code)
	for _, folder := range services.DefaultFolders {
		assert.Contains(t, rec.Body.String(), folder)
	}
	assert.NotContains(t, rec.Body.String(), ".keep")

	// Step D: Enter a folder
	srv.storage.On("ListFiles", mock.Anything, journeyBucket, "Actuaciones/").Return(sentinels("Actuaciones"), nil).Once()
	rec = browser.postForm(base+"/open", url.Values{"id": {"Actuaciones/"}, "dir": {"true"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Esta carpeta está vacía.")
	assert.Equal(t, "preview-changed", rec.Header().Get("HX-Trigger"))

	// Step E: Create a sub folder
	srv.storage.On("UploadFile", mock.Anything, journeyBucket, "Actuaciones/2024/", ".keep", mock.Anything).
		Return(storage.File{Name: "Actuaciones/2024/.keep"}, nil).Once()
	srv.storage.On("ListFiles", mock.Anything, journeyBucket, "Actuaciones/").
		Return(sentinels("Actuaciones", "Actuaciones/2024"), nil).Once()
	rec = browser.postForm(base+"/folder", url.Values{"folderName": {"2024"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Carpeta creada correctamente")
	assert.Contains(t, rec.Body.String(), `value="Actuaciones/2024/"`)

	// Step F: Upload a file into the current folder
	withUpload := append(sentinels("Actuaciones", "Actuaciones/2024"),
		storage.File{Name: "Actuaciones/escrito.pdf", Size: 3000, Updated: time.Now()})
	srv.storage.On("UploadFile", mock.Anything, journeyBucket, "Actuaciones/", "escrito.pdf", mock.Anything).
		Return(storage.File{Name: "Actuaciones/escrito.pdf"}, nil).Once()
	srv.storage.On("ListFiles", mock.Anything, journeyBucket, "Actuaciones/").Return(withUpload, nil).Once()

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile("files", "escrito.pdf")
	require.NoError(t, err)
	_, _ = part.Write([]byte("%PDF-1.4"))
	require.NoError(t, w.Close())
	req := httptest.NewRequest(http.MethodPost, base+"/upload", body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	rec = browser.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "escrito.pdf")
	assert.Contains(t, rec.Body.String(), "3.0 kB")

	// Step G: Preview the file until the link is resolved
	srv.storage.On("DownloadURL", mock.Anything, journeyBucket, "Actuaciones/escrito.pdf").
		Return("https://minio.example/escrito.pdf?sig=1", nil)
	rec = browser.postForm(base+"/open", url.Values{"id": {"Actuaciones/escrito.pdf"}})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Eventually(t, func() bool {
		return strings.Contains(browser.get(base+"/preview").Body.String(), "<iframe")
	}, 2*time.Second, 10*time.Millisecond)

	// Step H: Resolve download links
	rec = browser.postForm(base+"/download", url.Values{"ids": {"Actuaciones/escrito.pdf", "Actuaciones/2024/"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Enlaces de descarga")
	assert.Contains(t, rec.Body.String(), "https://minio.example/escrito.pdf?sig=1")

	// Step I: Delete the file; the preview is cleared
	srv.storage.On("DeleteFile", mock.Anything, journeyBucket, "Actuaciones/escrito.pdf").Return(nil).Once()
	srv.storage.On("ListFiles", mock.Anything, journeyBucket, "Actuaciones/").
		Return(sentinels("Actuaciones", "Actuaciones/2024"), nil).Once()
	rec = browser.postForm(base+"/delete", url.Values{"ids": {"Actuaciones/escrito.pdf"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "eliminado correctamente")
	assert.Contains(t, browser.get(base+"/preview").Body.String(), "Selecciona un archivo")

	// Step J: Delete the process; its files are kept
	rec = browser.postForm("/procesos/"+id+"/delete", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/procesos", rec.Header().Get("HX-Redirect"))
	assert.Equal(t, 0, srv.workspaces.Len())
	srv.storage.AssertNotCalled(t, "DeleteFile", mock.Anything, journeyBucket, "Actuaciones/2024/.keep")
	srv.storage.AssertExpectations(t)
}
