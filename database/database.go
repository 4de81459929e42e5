// Package database - Handles all interaction with ArangoDB
package database

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/arangodb/go-driver/v2/arangodb"
	"github.com/arangodb/go-driver/v2/connection"
	"github.com/cenkalti/backoff"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cpedb/cpedb-backend/config"
)

var logger = InitLogger() // setup the logger

// DBConnection holds the database handle shared by the core components.
// It is passed explicitly into constructors so multiple pipelines (and test
// fixtures) can run without shared mutable globals.
type DBConnection struct {
	Client     arangodb.Client
	Database   arangodb.Database
	Collection string
	View       string
}

// InitLogger sets up the Zap Logger to log to the console in a human readable format
func InitLogger() *zap.Logger {
	prodConfig := zap.NewProductionConfig()
	prodConfig.Encoding = "console"
	prodConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	prodConfig.EncoderConfig.EncodeDuration = zapcore.StringDurationEncoder
	logger, _ := prodConfig.Build()
	return logger
}

func dbConnectionConfig(endpoint connection.Endpoint, dbuser string, dbpass string) connection.HttpConfiguration {
	return connection.HttpConfiguration{
		Authentication: connection.NewBasicAuth(dbuser, dbpass),
		Endpoint:       endpoint,
		ContentType:    connection.ApplicationJSON,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: true, // #nosec G402
			},
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 90 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

// InitializeDatabase connects to the db engine with backoff retry and
// ensures the database exists. Collection and search view creation happens
// in Store.EnsureIndex so a destructive recreate stays a separate step.
func InitializeDatabase(ctx context.Context, cfg config.ArangoConfig) (DBConnection, error) {
	const initialInterval = 2 * time.Second
	const maxInterval = 30 * time.Second
	const maxElapsed = 5 * time.Minute

	var client arangodb.Client

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initialInterval
	bo.MaxInterval = maxInterval
	bo.MaxElapsedTime = maxElapsed

	err := backoff.RetryNotify(func() error {
		endpoint := connection.NewRoundRobinEndpoints([]string{cfg.URL})
		conn := connection.NewHttpConnection(dbConnectionConfig(endpoint, cfg.User, cfg.Password))

		client = arangodb.NewClient(conn)

		versionInfo, err := client.Version(ctx)
		if err != nil {
			return err
		}

		logger.Sugar().Infof("Database has version '%s' and license '%s'", versionInfo.Version, versionInfo.License)
		return nil

	}, bo, func(err error, _ time.Duration) {
		logger.Sugar().Warnf("Retrying connection to ArangoDB: %v", err)
	})

	if err != nil {
		return DBConnection{}, fmt.Errorf("failed to connect to ArangoDB at %s: %w", cfg.URL, err)
	}

	var db arangodb.Database

	exists := false
	dblist, _ := client.Databases(ctx)
	for _, dbinfo := range dblist {
		if dbinfo.Name() == cfg.Database {
			exists = true
			break
		}
	}

	if exists {
		var options arangodb.GetDatabaseOptions
		if db, err = client.GetDatabase(ctx, cfg.Database, &options); err != nil {
			return DBConnection{}, fmt.Errorf("failed to get database: %w", err)
		}
	} else {
		if db, err = client.CreateDatabase(ctx, cfg.Database, nil); err != nil {
			return DBConnection{}, fmt.Errorf("failed to create database: %w", err)
		}
	}

	return DBConnection{
		Client:     client,
		Database:   db,
		Collection: cfg.Collection,
		View:       cfg.Collection + "_search",
	}, nil
}
