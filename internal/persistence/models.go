package persistence

import "time"

// Document is one named JSON document together with the version it was read
// at. An empty Version means the document does not exist yet.
type Document struct {
	Body    []byte
	Version string
}

// Exists reports whether the document was found in the store.
func (d Document) Exists() bool {
	return d.Version != ""
}

// User is a registered display name, stored in the users document.
type User struct {
	ID        string    `json:"id,omitempty"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"createdAt"`
}
