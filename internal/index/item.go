package index

import (
	"github.com/kolpa/bakare/internal/itemid"
	"github.com/kolpa/bakare/internal/version"
)

// Item is one entry in the index: a source path's content at a particular
// version, plus the relative path under which its content is stored in the
// repository's object store.
type Item struct {
	OriginalSourcePath string       `json:"original_source_path"`
	RelativePath       string       `json:"relative_path"`
	ID                 itemid.ID    `json:"id"`
	Version            version.Version `json:"version"`
}

// NextVersion returns a new Item for the same source path, one version
// ahead of i, pointing at new content.
func (i Item) NextVersion(id itemid.ID, relativePath string) Item {
	return Item{
		OriginalSourcePath: i.OriginalSourcePath,
		RelativePath:       relativePath,
		ID:                 id,
		Version:            i.Version.Next(),
	}
}
