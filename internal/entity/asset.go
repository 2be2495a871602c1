package entity

import "time"

// AssetRecord tracks one downloaded binary asset. ContentID is a hash of the
// asset's stable locator (signing parameters stripped), so a re-signed URL
// for the same resource maps to the same record.
type AssetRecord struct {
	ContentID   string    `yaml:"content_id"`
	OwnerID     string    `yaml:"owner_id"`
	LocalPath   string    `yaml:"path"`
	ContentHash string    `yaml:"hash"`
	LastFetched time.Time `yaml:"last_fetched"`
}

// AssetRef is a remote asset reference discovered in a record's content.
type AssetRef struct {
	URL     string
	OwnerID string
}
