package dbutil

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"os"

	"cloud.google.com/go/cloudsqlconn"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	log "github.com/sirupsen/logrus"
)

// Connectors are the accepted values of the sql_connector setting.
const (
	ConnectorPgx      = "pgx"
	ConnectorCloudSQL = "connector"
)

type cloudEnvSettings struct {
	dbUser,
	dbPwd,
	dbName,
	instanceConnectionName,
	usePrivate string
}

func (s *cloudEnvSettings) getenv() error {
	unset := []string{}
	getenv := func(k string) string {
		v := os.Getenv(k)
		if v == "" {
			unset = append(unset, k)
		}
		return v
	}

	s.dbUser = getenv("DB_USER")                                  // e.g. 'hostsel'
	s.dbPwd = getenv("DB_PASS")                                   // e.g. 'my-db-password'
	s.dbName = getenv("DB_NAME")                                  // e.g. 'hostsel'
	s.instanceConnectionName = getenv("INSTANCE_CONNECTION_NAME") // e.g. 'project:region:instance'
	s.usePrivate = os.Getenv("PRIVATE_IP")

	if len(unset) > 0 {
		return fmt.Errorf("cloudsqlconn: unset variables: %+v", unset)
	}
	return nil
}

func connectWithConnector(ctx context.Context, _ string) (*sql.DB, error) {
	env := &cloudEnvSettings{}
	if err := env.getenv(); err != nil {
		return nil, err
	}

	dsn := fmt.Sprintf("user=%s password=%s database=%s", env.dbUser, env.dbPwd, env.dbName)
	config, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	var opts []cloudsqlconn.Option
	if env.usePrivate != "" {
		opts = append(opts, cloudsqlconn.WithDefaultDialOptions(cloudsqlconn.WithPrivateIP()))
	}
	// The admin tool runs briefly and exits; refresh certificates on demand
	// rather than in the background.
	opts = append(opts, cloudsqlconn.WithLazyRefresh())
	d, err := cloudsqlconn.NewDialer(ctx, opts...)
	if err != nil {
		return nil, err
	}
	config.DialFunc = func(ctx context.Context, network, instance string) (net.Conn, error) {
		return d.Dial(ctx, env.instanceConnectionName)
	}
	dbURI := stdlib.RegisterConnConfig(config)
	dbPool, err := sql.Open("pgx", dbURI)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	return dbPool, nil
}

func connectWithPgx(_ context.Context, url string) (*sql.DB, error) {
	log.Debugf("Connecting to database at %s", url)
	if url == "" {
		return nil, errors.New("database URL is empty")
	}
	return sql.Open("pgx", url)
}

var factories = map[string]func(context.Context, string) (*sql.DB, error){
	ConnectorCloudSQL: connectWithConnector,
	ConnectorPgx:      connectWithPgx,
}

// Connect opens a database handle using the named connector.  url is only
// used by the pgx connector; the Cloud SQL connector reads its settings from
// the environment.
func Connect(ctx context.Context, connector, url string) (*sql.DB, error) {
	factory, ok := factories[connector]
	if !ok {
		return nil, fmt.Errorf("unknown sql_connector %q", connector)
	}
	return factory(ctx, url)
}
