package models

// ProcessRow is one line of the process table
type ProcessRow struct {
	ID        string
	ClientID  string
	Name      string
	Radicado  string
	Status    string
	CreatedAt string
	Bucket    string
}
