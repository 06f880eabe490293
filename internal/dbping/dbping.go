// Package dbping implements the engine-specific connectivity check from
// spec section 4.5 ("readiness/liveness probes that exec an
// engine-specific ping"), shared by the Kubernetes reconciler's
// wait-for-ready poll (internal/reconciler) and the region controller's
// BYOC database liveness sweep (internal/region).
package dbping

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/patr-cloud/patr-api/internal/db"
)

// pingTimeout bounds a single connectivity attempt; the caller (a 1s
// polling loop, or a daily liveness sweep) supplies the retry cadence.
const pingTimeout = 5 * time.Second

// Target is the connection info needed to ping one managed database.
type Target struct {
	Engine   db.ManagedDatabaseEngine
	Host     string
	Port     int
	DBName   string
	Username string
	Password string
}

// Ping opens a short-lived connection in the engine's own protocol and
// verifies it responds. Each branch mirrors the exec command spec
// section 4.5 names (psql -c 'SELECT 1', mongo --eval
// db.adminCommand('ping')) at the driver level instead of shelling out,
// since the caller here is the Go control plane, not a pod.
func Ping(ctx context.Context, t Target) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	switch t.Engine {
	case db.EnginePostgres:
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable connect_timeout=5",
			t.Host, t.Port, t.Username, t.Password, t.DBName)
		return sqlPing(ctx, "postgres", dsn)
	case db.EngineMySQL:
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?timeout=5s", t.Username, t.Password, t.Host, t.Port, t.DBName)
		return sqlPing(ctx, "mysql", dsn)
	case db.EngineMongo:
		return mongoPing(ctx, t)
	case db.EngineRedis:
		return redisPing(ctx, t)
	default:
		return fmt.Errorf("dbping: no ping implemented for engine %q", t.Engine)
	}
}

func sqlPing(ctx context.Context, driverName, dsn string) error {
	conn, err := sql.Open(driverName, dsn)
	if err != nil {
		return err
	}
	defer conn.Close()
	return conn.PingContext(ctx)
}

func mongoPing(ctx context.Context, t Target) error {
	uri := fmt.Sprintf("mongodb://%s:%s@%s:%d/?connectTimeoutMS=5000", t.Username, t.Password, t.Host, t.Port)
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return err
	}
	defer client.Disconnect(ctx)
	return client.Ping(ctx, nil)
}

func redisPing(ctx context.Context, t Target) error {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", t.Host, t.Port),
		Password: t.Password,
	})
	defer client.Close()
	return client.Ping(ctx).Err()
}
