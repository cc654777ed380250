package place

// Index is the persistent mapping from content hash to placement record.
// Implementations must enforce hash uniqueness at the storage layer.
type Index interface {
	// Lookup returns the record for hash, or nil and no error when absent.
	Lookup(hash string) (*ContentRecord, error)

	// Insert stores a new record.
	// Returns ErrDuplicateKey if a record with the same hash already exists.
	Insert(record *ContentRecord) error

	// Update overwrites the parts and timestamp of an existing record.
	// Returns ErrNotFound if no record with the hash exists.
	Update(record *ContentRecord) error
}
