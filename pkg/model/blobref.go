package model

import (
	"fmt"
	"time"
)

// BlobRef is the persisted record of a blob held by the content-addressed
// store. Upserts by CID are idempotent.
type BlobRef struct {
	CID       string    `json:"cid" yaml:"cid"`
	URI       string    `json:"uri,omitempty" yaml:"uri,omitempty"`
	Size      int64     `json:"size" yaml:"size"`
	CreatedAt time.Time `json:"createdAt,omitempty" yaml:"createdAt,omitempty"`
	_         struct{}
}

// BlobURI renders the canonical URI for a content identifier
func BlobURI(cid string) string {
	return fmt.Sprint("blob://", cid)
}
