package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/landuse-cli/internal/config"
	"github.com/sells-group/landuse-cli/internal/store"
)

// initStore opens and migrates the run log selected by the config.
func initStore(ctx context.Context, c *config.Config) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch c.Store.Driver {
	case "sqlite":
		dsn := c.Store.DatabaseURL
		if dsn == "" {
			dsn = "landuse.db"
		}
		st, err = store.NewSQLite(dsn)
	case "postgres":
		st, err = store.NewPostgres(ctx, c.Store.DatabaseURL, c.PostGIS.MaxConns)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", c.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}
