//go:build integration

package datastore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"

	"github.com/tphakala/pneumodetect/internal/conf"
)

func TestMySQLStoreIntegration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	container, err := tcmysql.Run(ctx, "mysql:8.0.36",
		tcmysql.WithDatabase("pneumodetect"),
		tcmysql.WithUsername("pneumo"),
		tcmysql.WithPassword("pneumo-test"),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "3306/tcp")
	require.NoError(t, err)

	settings := &conf.Settings{}
	settings.Database.Type = conf.DatabaseMySQL
	settings.Database.MySQL = conf.MySQLSettings{
		Host:     host,
		Port:     port.Port(),
		Username: "pneumo",
		Password: "pneumo-test",
		Database: "pneumodetect",
	}

	ds, err := New(settings)
	require.NoError(t, err)
	require.NoError(t, ds.Open())
	t.Cleanup(func() { assert.NoError(t, ds.Close()) })

	alice := &User{Username: "alice", PasswordHash: "x"}
	require.NoError(t, ds.CreateUser(alice))
	assert.ErrorIs(t, ds.CreateUser(&User{Username: "alice", PasswordHash: "y"}), ErrUsernameTaken)

	id, err := ds.Record(&alice.ID, "m.png", ResultPneumonia, 82)
	require.NoError(t, err)

	got, err := ds.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "m.png", got.Filename)
	assert.InDelta(t, 82.0, got.ConfidenceValue(), 1e-9)

	list, err := ds.ListFor(alice.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, err = ds.Get(999999)
	assert.ErrorIs(t, err, ErrNotFound)
}
