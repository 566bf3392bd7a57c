package store

import (
	"context"
	"fmt"
)

// New opens the Postgres Store backend, mirroring the teacher's own
// resume.NewStore(backend, dir) factory (internal/pipeline/resume/store.go),
// which itself deprecated bolt and badger in favor of exactly this
// split (ADR-021 in the teacher's history: ship one production backend
// and one embedded dev backend, nothing in between).
//
// The sqlite backend lives in a sibling package (store/sqlitestore)
// rather than behind this same factory: sqlitestore imports this
// package for the Store interface and ClaimParams/UpsertTuple types, so
// this package cannot import sqlitestore back without a cycle.
// cmd/mediasearch's own small driver switch is the real dual-backend
// factory spec §11.7 describes; it picks between store.New (postgres)
// and sqlitestore.Open (sqlite) by inspecting DATABASE_URL's scheme.
func New(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "postgres", "":
		return NewPostgres(ctx, dsn)
	default:
		return nil, fmt.Errorf("store: unknown driver %q (use postgres, or construct sqlitestore.Open directly)", driver)
	}
}
