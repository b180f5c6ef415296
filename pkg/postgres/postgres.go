package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	_ "github.com/lib/pq"
	log "github.com/sirupsen/logrus"
)

// Config locates the database the issued credentials are valid for.
// User and Password are the static bootstrap credentials used by the
// health probe only; dynamic credentials are supplied per check.
type Config struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	SSLMode        string
	ConnectTimeout time.Duration
}

// Checker verifies that a set of credentials can open a connection and
// run a query.
type Checker struct {
	cfg Config
}

func NewChecker(cfg Config) *Checker {
	if cfg.SSLMode == "" {
		cfg.SSLMode = "disable"
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	return &Checker{cfg: cfg}
}

// dsn builds a connection URL. Generated passwords can contain
// characters that break the key=value form, so credentials go through
// URL escaping.
func (c *Checker) dsn(username, password string) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(username, password),
		Host:   net.JoinHostPort(c.cfg.Host, c.cfg.Port),
		Path:   "/" + c.cfg.Database,
	}
	q := url.Values{}
	q.Set("sslmode", c.cfg.SSLMode)
	q.Set("connect_timeout", strconv.Itoa(int(c.cfg.ConnectTimeout.Seconds())))
	u.RawQuery = q.Encode()
	return u.String()
}

// Check opens a connection with the given credentials and runs a probe
// query.
func (c *Checker) Check(ctx context.Context, username, password string) error {
	db, err := sql.Open("postgres", c.dsn(username, password))
	if err != nil {
		return fmt.Errorf("error opening connection: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	var version string
	if err := db.QueryRowContext(ctx, "SELECT version()").Scan(&version); err != nil {
		return fmt.Errorf("error querying database: %w", err)
	}

	log.WithField("version", version).Debugf("database connection successful")
	return nil
}

// CheckStatic runs Check with the configured bootstrap credentials.
func (c *Checker) CheckStatic(ctx context.Context) error {
	return c.Check(ctx, c.cfg.User, c.cfg.Password)
}
