// Package models contains data structures used across handlers
package models

// EntryView is one row of the file listing
type EntryView struct {
	ID            string
	Name          string
	IsDir         bool
	IsParent      bool
	FormattedSize string
	Modified      string
	ModifiedAt    string
	Icon          string
}

// BreadcrumbView is one link of the folder path. ID is the entry id sent
// back when the crumb is clicked.
type BreadcrumbView struct {
	ID   string
	Name string
	Last bool
}

type NoticeView struct {
	Level   string
	Message string
}

// DownloadView is a resolved download link
type DownloadView struct {
	Name string
	URL  string
}

// PreviewView describes the preview pane
type PreviewView struct {
	ProcessID string
	State     string
	Kind      string
	Name      string
	URL       string
	OfficeURL string
	Message   string
	Polling   bool
}

// ListingView is everything the file list partial needs
type ListingView struct {
	ProcessID   string
	Prefix      string
	Entries     []EntryView
	Breadcrumbs []BreadcrumbView
	Notices     []NoticeView
	Downloads   []DownloadView
	HasBucket   bool
	Loaded      bool
}
