package database

import (
	"net"
	"net/url"
	"strconv"

	"github.com/rickgao/dbn-live/internal/config"
)

// BuildConnString builds a PostgreSQL connection URL from config.
// Credentials are escaped; sslmode defaults to prefer.
func BuildConnString(cfg config.DBConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}

	query := url.Values{"sslmode": {sslMode}}
	if secs := int(cfg.ConnectTimeout.Seconds()); secs > 0 {
		query.Set("connect_timeout", strconv.Itoa(secs))
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:     "/" + cfg.Name,
		RawQuery: query.Encode(),
	}
	return u.String()
}
