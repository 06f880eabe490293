package dbping_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/patr-cloud/patr-api/internal/db"
	"github.com/patr-cloud/patr-api/internal/dbping"
)

// These targets all point at a closed port on localhost, so every
// engine's dial fails fast instead of hanging for the full 5s ping
// timeout — enough to exercise each branch of Ping without a live
// database of every engine.
const closedPort = 1

func TestPing_PostgresUnreachable(t *testing.T) {
	err := dbping.Ping(context.Background(), dbping.Target{
		Engine: db.EnginePostgres, Host: "127.0.0.1", Port: closedPort, DBName: "patr", Username: "patr", Password: "x",
	})
	assert.Error(t, err)
}

func TestPing_MySQLUnreachable(t *testing.T) {
	err := dbping.Ping(context.Background(), dbping.Target{
		Engine: db.EngineMySQL, Host: "127.0.0.1", Port: closedPort, DBName: "patr", Username: "patr", Password: "x",
	})
	assert.Error(t, err)
}

func TestPing_MongoUnreachable(t *testing.T) {
	err := dbping.Ping(context.Background(), dbping.Target{
		Engine: db.EngineMongo, Host: "127.0.0.1", Port: closedPort, DBName: "patr", Username: "patr", Password: "x",
	})
	assert.Error(t, err)
}

func TestPing_RedisUnreachable(t *testing.T) {
	err := dbping.Ping(context.Background(), dbping.Target{
		Engine: db.EngineRedis, Host: "127.0.0.1", Port: closedPort, Username: "", Password: "x",
	})
	assert.Error(t, err)
}

func TestPing_UnknownEngine(t *testing.T) {
	err := dbping.Ping(context.Background(), dbping.Target{Engine: "unknown"})
	assert.Error(t, err)
}
