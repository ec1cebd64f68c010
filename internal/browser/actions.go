package browser

import (
	"io"
	"time"
)

// Action is one user intent on the file browser. The set of actions is
// closed: only the variants declared in this file implement it.
type Action interface {
	action()
}

// OpenDirectory moves into a folder, up one level (ParentID) or to the root
// (RootID).
type OpenDirectory struct {
	Entry Entry
}

// OpenFile selects a file for preview without changing the current folder.
type OpenFile struct {
	Entry Entry
}

// CreateFolder creates a folder below the current prefix.
type CreateFolder struct {
	Name string
}

// Upload is one file of an UploadFiles batch. Open is called once, by the
// goroutine performing the upload.
type Upload struct {
	Name string
	Open func() (io.ReadCloser, error)
}

// UploadFiles stores every file below the current prefix.
type UploadFiles struct {
	Files []Upload
}

// DeleteEntries removes files and empty folders.
type DeleteEntries struct {
	Entries []Entry
}

// DownloadEntries resolves signed download links for the selected files.
type DownloadEntries struct {
	Entries []Entry
}

// Refresh reloads the listing for the current prefix.
type Refresh struct{}

// At runs Action with the navigator positioned at Prefix, the folder the
// caller is looking at. Several pages can share one navigator, so a request
// from a page showing another folder lists Prefix first. When that listing
// fails the action is not run.
type At struct {
	Prefix string
	Action Action
}

func (OpenDirectory) action()   {}
func (OpenFile) action()        {}
func (CreateFolder) action()    {}
func (UploadFiles) action()     {}
func (DeleteEntries) action()   {}
func (DownloadEntries) action() {}
func (At) action()              {}
func (Refresh) action()         {}

// Level classifies a Notice.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notice is a transient message for the user.
type Notice struct {
	Level   Level
	Message string
	At      time.Time
}

// Download is a resolved, short-lived link for one file.
type Download struct {
	Entry Entry
	URL   string
}

// ItemError records the failure of one item of a batch.
type ItemError struct {
	Name string
	Err  error
}

func (e ItemError) Error() string {
	return e.Name + ": " + e.Err.Error()
}

// Result reports the per-item outcome of a dispatched action.
type Result struct {
	Succeeded []string
	Failed    []ItemError
	Downloads []Download
}
