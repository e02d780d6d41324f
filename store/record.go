package store

import "time"

// Source tags where a batch of records being mapped came from (§4.3),
// one of the eight sources the mapping algorithm distinguishes.
type Source string

const (
	SourceRemoteRetrieved       Source = "RemoteRetrieved"
	SourceRemoteSaved           Source = "RemoteSaved"
	SourceLocalSaved            Source = "LocalSaved"
	SourceLocalRetrieved        Source = "LocalRetrieved"
	SourceComponentRetrieved    Source = "ComponentRetrieved"
	SourceDesktopInstalled      Source = "DesktopInstalled"
	SourceRemoteActionRetrieved Source = "RemoteActionRetrieved"
	SourceFileImport            Source = "FileImport"
)

// Record is a decrypted item record ready for mapping into the store.
// Content is nil when the record carries only metadata (e.g. a
// RemoteSaved echo mapped with omitFields={"content"}).
type Record struct {
	UUID            string
	ContentType     string
	Content         map[string]any
	AppData         map[string]map[string]any
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Deleted         bool
	ErrorDecrypting bool
	EncItemKey      string
	AuthHash        string
}

// OmitFields builds the set the mapping algorithm checks before promoting
// a field from a Record onto the stored Item (§4.3 "omit fields").
func OmitFields(fields ...string) map[string]bool {
	out := make(map[string]bool, len(fields))
	for _, f := range fields {
		out[f] = true
	}
	return out
}
