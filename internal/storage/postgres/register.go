package postgres

import "gtdetl/internal/storage"

func init() {
	// registers the star-schema backend factory
	storage.Register("postgres", New)
}
