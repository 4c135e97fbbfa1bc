// Package all registers every storage backend.
package all

import (
	_ "gtdetl/internal/storage/mssql"
	_ "gtdetl/internal/storage/postgres"
	_ "gtdetl/internal/storage/sqlite"
)
