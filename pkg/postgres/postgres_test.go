package postgres

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDSNEscapesCredentials(t *testing.T) {
	c := NewChecker(Config{
		Host:           "postgres",
		Port:           "5432",
		Database:       "devdb",
		SSLMode:        "disable",
		ConnectTimeout: 5 * time.Second,
	})

	username := "v-token-readonly-x7"
	password := `p'ass word\with=odd#chars`

	u, err := url.Parse(c.dsn(username, password))
	require.NoError(t, err)

	assert.Equal(t, "postgres", u.Scheme)
	assert.Equal(t, "postgres:5432", u.Host)
	assert.Equal(t, "/devdb", u.Path)
	assert.Equal(t, username, u.User.Username())

	got, set := u.User.Password()
	require.True(t, set)
	assert.Equal(t, password, got)

	q := u.Query()
	assert.Equal(t, "disable", q.Get("sslmode"))
	assert.Equal(t, "5", q.Get("connect_timeout"))
}

func TestCheckerDefaults(t *testing.T) {
	c := NewChecker(Config{Host: "postgres", Port: "5432", Database: "devdb"})

	u, err := url.Parse(c.dsn("u", "p"))
	require.NoError(t, err)
	assert.Equal(t, "disable", u.Query().Get("sslmode"))
	assert.Equal(t, "5", u.Query().Get("connect_timeout"))
}
