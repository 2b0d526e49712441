package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// tlsConfigName is the name used to register custom TLS configs with the MySQL driver.
const tlsConfigName = "resourcekit-custom"

// DriverName returns the database/sql driver name registered for d.Driver.
func (d *DatabaseConfig) DriverName() (string, error) {
	switch strings.ToLower(strings.TrimSpace(d.Driver)) {
	case "", "mysql", "tidb":
		return "mysql", nil
	case "postgres", "postgresql", "pgx":
		return "pgx", nil
	case "pq":
		return "postgres", nil
	case "sqlite", "sqlite3":
		return "sqlite3", nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", d.Driver)
	}
}

// Dialect returns the SQL dialect name for d.Driver, as understood by
// sqlutil.DialectFor.
func (d *DatabaseConfig) Dialect() string {
	name, err := d.DriverName()
	if err != nil {
		return d.Driver
	}
	switch name {
	case "pgx", "postgres":
		return "postgres"
	case "sqlite3":
		return "sqlite"
	default:
		return "mysql"
	}
}

// DSN returns the data source name for the configured driver. A configured
// ConnectionString wins over the discrete fields; MySQL DSNs are parsed and
// re-rendered so parseTime and the TLS mode are always applied.
func (d *DatabaseConfig) DSN() (string, error) {
	driver, err := d.DriverName()
	if err != nil {
		return "", err
	}
	switch driver {
	case "mysql":
		return d.mysqlDSN()
	case "pgx", "postgres":
		return d.postgresDSN(), nil
	default:
		if d.ConnectionString != "" {
			return d.ConnectionString, nil
		}
		return d.Database, nil
	}
}

func (d *DatabaseConfig) mysqlDSN() (string, error) {
	var cfg *mysql.Config
	if d.ConnectionString != "" {
		parsed, err := mysql.ParseDSN(d.ConnectionString)
		if err != nil {
			return "", fmt.Errorf("database.dsn is invalid: %w", err)
		}
		cfg = parsed
		if cfg.Passwd == "" && d.Password != "" {
			cfg.Passwd = d.Password
		}
	} else {
		cfg = mysql.NewConfig()
		cfg.User = d.User
		cfg.Passwd = d.Password
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
		cfg.DBName = d.Database
	}
	cfg.ParseTime = true
	if cfg.Loc == nil {
		cfg.Loc = time.UTC
	}
	if cfg.TLSConfig == "" {
		cfg.TLSConfig = d.mysqlTLSParam()
	}
	return cfg.FormatDSN(), nil
}

// mysqlTLSParam maps the TLS mode onto the driver's tls parameter.
func (d *DatabaseConfig) mysqlTLSParam() string {
	switch d.TLS.Mode {
	case "":
		return ""
	case "off":
		return "false"
	case "skip-verify":
		return "skip-verify"
	case "verify-ca", "verify-full":
		return tlsConfigName
	default:
		return d.TLS.Mode
	}
}

func (d *DatabaseConfig) postgresDSN() string {
	if d.ConnectionString != "" {
		return d.ConnectionString
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:   "/" + d.Database,
	}
	if d.Password != "" {
		u.User = url.UserPassword(d.User, d.Password)
	} else if d.User != "" {
		u.User = url.User(d.User)
	}

	q := url.Values{}
	switch d.TLS.Mode {
	case "off":
		q.Set("sslmode", "disable")
	case "skip-verify":
		q.Set("sslmode", "require")
	case "verify-ca", "verify-full":
		q.Set("sslmode", d.TLS.Mode)
		if d.TLS.CAFile != "" {
			q.Set("sslrootcert", d.TLS.CAFile)
		}
		if d.TLS.CertFile != "" {
			q.Set("sslcert", d.TLS.CertFile)
			q.Set("sslkey", d.TLS.KeyFile)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// RegisterTLS registers a custom TLS configuration with the MySQL driver.
// Must be called before opening a MySQL connection in verify-ca or
// verify-full mode; it is a no-op otherwise.
func (d *DatabaseConfig) RegisterTLS() error {
	if driver, _ := d.DriverName(); driver != "mysql" {
		return nil
	}
	if d.TLS.Mode != "verify-ca" && d.TLS.Mode != "verify-full" {
		return nil
	}

	tlsCfg, err := d.buildTLSConfig()
	if err != nil {
		return fmt.Errorf("failed to build TLS config: %w", err)
	}
	if err := mysql.RegisterTLSConfig(tlsConfigName, tlsCfg); err != nil {
		return fmt.Errorf("failed to register TLS config: %w", err)
	}
	return nil
}

func (d *DatabaseConfig) buildTLSConfig() (*tls.Config, error) {
	tlsCfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}

	if d.TLS.CAFile != "" {
		caCert, err := os.ReadFile(d.TLS.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file %q: %w", d.TLS.CAFile, err)
		}
		certPool := x509.NewCertPool()
		if !certPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate from %q", d.TLS.CAFile)
		}
		tlsCfg.RootCAs = certPool
	}

	if d.TLS.CertFile != "" && d.TLS.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(d.TLS.CertFile, d.TLS.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	} else if d.TLS.CertFile != "" || d.TLS.KeyFile != "" {
		return nil, fmt.Errorf("both cert_file and key_file must be specified for client certificate authentication")
	}

	if d.TLS.Mode == "verify-full" && d.TLS.ServerName != "" {
		tlsCfg.ServerName = d.TLS.ServerName
	}
	return tlsCfg, nil
}
