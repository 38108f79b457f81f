// Package all wires all built-in storage backends into the storage factory.
//
// This package exists purely for side effects: importing it (even as a blank
// import) causes the init functions of each concrete storage backend to run,
// which in turn register their factories with the storage package.
//
// Importing this package makes the following storage kinds available:
//
//   - "mysql"    (tripetl/internal/storage/mysql)
//   - "postgres" (tripetl/internal/storage/postgres)
//   - "mssql"    (tripetl/internal/storage/mssql)
//   - "sqlite"   (tripetl/internal/storage/sqlite)
//
// Typical usage (in cmd/tripetl or a similar wiring layer):
//
//	import _ "tripetl/internal/storage/all" // enable all built-in backends
//
//	repo, err := storage.New(ctx, storage.Config{
//	    Kind:  cfg.Storage.Kind,
//	    DSN:   cfg.Storage.DSN,
//	    Table: cfg.Storage.Table,
//	})
//	if err != nil {
//	    // handle error
//	}
//	defer repo.Close()
//
// A binary that needs only a subset of backends can import those packages
// directly instead.
package all

import (
	_ "tripetl/internal/storage/mssql"
	_ "tripetl/internal/storage/mysql"
	_ "tripetl/internal/storage/postgres"
	_ "tripetl/internal/storage/sqlite"
)
