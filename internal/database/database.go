package database

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/term"

	_ "github.com/sijms/go-ora/v2"
)

// Kind selects which database a connection talks to. The three kinds carry
// different capability sets: the catalog is query-only, the GIS store also
// executes and transacts, and the enterprise database only accepts writes
// from this tool.
type Kind int

const (
	// KindCatalog is the central-catalog Postgres the extraction stage reads.
	KindCatalog Kind = iota
	// KindGIS is the GIS-hosted Postgres the reconciler mutates.
	KindGIS
	// KindEnterprise is the legacy Oracle database that receives run audits.
	KindEnterprise
)

func (k Kind) String() string {
	switch k {
	case KindCatalog:
		return "catalog"
	case KindGIS:
		return "gis"
	case KindEnterprise:
		return "enterprise"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Config holds connection parameters for a single database.
type Config struct {
	Host     string
	Port     string
	Name     string // database name, or Oracle service name
	User     string
	Password string
	SSLMode  string // postgres kinds only
}

// Conn is a tagged connection variant. Exactly one of Pool and SQL is set,
// depending on the kind it was opened with.
type Conn struct {
	Kind Kind
	Pool *pgxpool.Pool // catalog and gis kinds
	SQL  *sql.DB       // enterprise kind
}

var errCapability = errors.New("capability not supported by connection kind")

// Querier returns the pgx pool for kinds that support querying.
func (c *Conn) Querier() (*pgxpool.Pool, error) {
	if c.Pool == nil {
		return nil, fmt.Errorf("%s connection has no query capability: %w", c.Kind, errCapability)
	}
	return c.Pool, nil
}

// Execer returns the database/sql handle for the enterprise kind.
func (c *Conn) Execer() (*sql.DB, error) {
	if c.SQL == nil {
		return nil, fmt.Errorf("%s connection has no plain-SQL capability: %w", c.Kind, errCapability)
	}
	return c.SQL, nil
}

// Close releases whichever handle the connection holds.
func (c *Conn) Close() {
	if c.Pool != nil {
		c.Pool.Close()
	}
	if c.SQL != nil {
		c.SQL.Close()
	}
}

// Connect opens a connection of the given kind and verifies it with a ping.
// A stalled server fails the ping after ten seconds rather than blocking the
// whole run.
func Connect(ctx context.Context, kind Kind, cfg Config, log *zap.Logger) (*Conn, error) {
	if cfg.Password == "" {
		cfg.Password = promptPassword(fmt.Sprintf("%s password for %s@%s: ", kind, cfg.User, cfg.Host))
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	switch kind {
	case KindCatalog, KindGIS:
		pool, err := pgxpool.New(ctx, PostgresDSN(cfg))
		if err != nil {
			return nil, fmt.Errorf("open %s connection: %w", kind, err)
		}
		if err := pool.Ping(pingCtx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ping %s database %s/%s: %w", kind, cfg.Host, cfg.Name, err)
		}
		log.Debug("connected", zap.Stringer("kind", kind), zap.String("host", cfg.Host), zap.String("db", cfg.Name))
		return &Conn{Kind: kind, Pool: pool}, nil

	case KindEnterprise:
		db, err := sql.Open("oracle", OracleDSN(cfg))
		if err != nil {
			return nil, fmt.Errorf("open %s connection: %w", kind, err)
		}
		if err := db.PingContext(pingCtx); err != nil {
			db.Close()
			return nil, fmt.Errorf("ping %s database %s/%s: %w", kind, cfg.Host, cfg.Name, err)
		}
		log.Debug("connected", zap.Stringer("kind", kind), zap.String("host", cfg.Host), zap.String("service", cfg.Name))
		return &Conn{Kind: kind, SQL: db}, nil
	}

	return nil, fmt.Errorf("unsupported connection kind %d", int(kind))
}

// PostgresDSN builds a properly encoded connection URL for the Postgres kinds.
func PostgresDSN(cfg Config) string {
	sslmode := cfg.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return (&url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password), // escapes automatically
		Host:     cfg.Host + ":" + cfg.Port,
		Path:     "/" + cfg.Name,
		RawQuery: "sslmode=" + sslmode,
	}).String()
}

// OracleDSN builds the go-ora connection URL for the enterprise kind.
func OracleDSN(cfg Config) string {
	return (&url.URL{
		Scheme: "oracle",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   cfg.Host + ":" + cfg.Port,
		Path:   "/" + cfg.Name, // keep full service name
	}).String()
}

// promptPassword reads a password from the terminal without echo. When stdin
// is not a terminal (cron, CI) it returns an empty string and the connection
// attempt proceeds with whatever the server allows.
func promptPassword(label string) string {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return ""
	}
	fmt.Fprint(os.Stderr, label)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return ""
	}
	return string(b)
}

// LoadEnvFile reads KEY=value pairs from a .env file into the process
// environment. Values already present in the environment win.
func LoadEnvFile(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return err // File doesn't exist, which is okay
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue // Skip empty lines and comments
		}

		if idx := strings.Index(line, "="); idx > 0 {
			key := strings.TrimSpace(line[:idx])
			value := strings.TrimSpace(line[idx+1:])

			if len(value) >= 2 && (value[0] == '"' && value[len(value)-1] == '"') {
				value = value[1 : len(value)-1]
			}

			if os.Getenv(key) == "" {
				os.Setenv(key, value)
			}
		}
	}

	return scanner.Err()
}
