package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// ResolveDSN returns the connection string for the configured backend. An
// explicit DSN wins; otherwise one is assembled from host/port/user/password/
// name using the backend's native format.
func (p Pipeline) ResolveDSN() (string, error) {
	db := p.Storage.DB
	if strings.TrimSpace(db.DSN) != "" {
		return db.DSN, nil
	}
	if db.Host == "" && db.Name == "" {
		return "", fmt.Errorf("storage.db: neither dsn nor host/name configured")
	}

	switch p.Storage.Kind {
	case "mysql":
		c := mysql.NewConfig()
		c.User = db.User
		c.Passwd = db.Password
		c.Net = "tcp"
		c.Addr = net.JoinHostPort(orDefault(db.Host, "localhost"), orDefault(db.Port, "3306"))
		c.DBName = db.Name
		c.ParseTime = true
		c.MultiStatements = false
		return c.FormatDSN(), nil

	case "postgres":
		u := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(db.User, db.Password),
			Host:   net.JoinHostPort(orDefault(db.Host, "localhost"), orDefault(db.Port, "5432")),
			Path:   "/" + db.Name,
		}
		return u.String(), nil

	case "mssql":
		q := url.Values{}
		q.Set("database", db.Name)
		u := url.URL{
			Scheme:   "sqlserver",
			User:     url.UserPassword(db.User, db.Password),
			Host:     net.JoinHostPort(orDefault(db.Host, "localhost"), orDefault(db.Port, "1433")),
			RawQuery: q.Encode(),
		}
		return u.String(), nil

	case "sqlite":
		if db.Name == "" {
			return "", fmt.Errorf("storage.db.name: sqlite requires a database file name")
		}
		return db.Name, nil

	default:
		return "", fmt.Errorf("storage.kind=%q: cannot assemble DSN", p.Storage.Kind)
	}
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
