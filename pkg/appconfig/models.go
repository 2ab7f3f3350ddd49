package appconfig

import "time"

// Setting is a key-value pair held by the configuration store, optionally
// scoped by a label. ETag and LastModified are set by the service; a locked
// setting rejects writes until it is unlocked.
type Setting struct {
	Key          string            `json:"key"`
	Label        string            `json:"label,omitempty"`
	Value        string            `json:"value"`
	ContentType  string            `json:"content_type,omitempty"`
	Tags         map[string]string `json:"tags,omitempty"`
	ETag         string            `json:"etag,omitempty"`
	ReadOnly     bool              `json:"locked"`
	LastModified time.Time         `json:"last_modified"`
}
