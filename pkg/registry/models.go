package registry

import "time"

// RepositoryProperties describes one repository held by the registry.
type RepositoryProperties struct {
	Name          string    `json:"name"`
	CreatedOn     time.Time `json:"created_on"`
	LastUpdatedOn time.Time `json:"last_updated_on"`
	ManifestCount int       `json:"manifest_count"`
	TagCount      int       `json:"tag_count"`
	DeleteEnabled bool      `json:"delete_enabled"`
	WriteEnabled  bool      `json:"write_enabled"`
}

// WriteableProperties are the mutable repository flags. Nil fields are left
// unchanged by UpdateRepository.
type WriteableProperties struct {
	DeleteEnabled *bool `json:"delete_enabled,omitempty"`
	WriteEnabled  *bool `json:"write_enabled,omitempty"`
}
