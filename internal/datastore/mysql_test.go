package datastore

import (
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/pneumodetect/internal/conf"
)

func TestMySQLDSN(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		settings conf.MySQLSettings
		wantAddr string
	}{
		{
			name:     "plain",
			settings: conf.MySQLSettings{Host: "db", Port: "3307", Username: "app", Password: "secret", Database: "pneumo"},
			wantAddr: "db:3307",
		},
		{
			name:     "password with separators",
			settings: conf.MySQLSettings{Host: "db", Port: "3306", Username: "app", Password: "p@ss:w/rd?", Database: "pneumo"},
			wantAddr: "db:3306",
		},
		{
			name:     "default port",
			settings: conf.MySQLSettings{Host: "10.0.0.5", Username: "app", Database: "pneumo"},
			wantAddr: "10.0.0.5:3306",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg, err := mysql.ParseDSN(mysqlDSN(tt.settings))
			require.NoError(t, err)
			assert.Equal(t, tt.settings.Username, cfg.User)
			assert.Equal(t, tt.settings.Password, cfg.Passwd)
			assert.Equal(t, tt.wantAddr, cfg.Addr)
			assert.Equal(t, tt.settings.Database, cfg.DBName)
			assert.True(t, cfg.ParseTime)
			assert.Equal(t, time.UTC, cfg.Loc)
			assert.True(t, cfg.AllowNativePasswords)
		})
	}
}
