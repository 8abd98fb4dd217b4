package pgclient

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	postgresScheme        = "postgres"
	alternateScheme       = "postgresql"
	defaultHost           = "localhost"
	defaultPort           = 5432
	defaultDatabase       = "postgres"
	defaultApplication    = "replchecker"
	defaultConnectTimeout = 30 * time.Second
)

var hostPortExp = regexp.MustCompile("(.+):([0-9]+)$")

type connectInfo struct {
	host           string
	port           int
	database       string
	user           string
	creds          string
	ssl            bool
	connectTimeout time.Duration
	options        map[string]string
}

/*
parseConnectString parses a postgres URL into something we can use
internally. Query parameters that the server does not understand as
startup options ("user", "password", "ssl", "sslmode" and
"connect_timeout") are handled here and removed from the options.
*/
func parseConnectString(c string) (*connectInfo, error) {
	p, err := url.Parse(c)
	if err != nil {
		return nil, err
	}

	if p.Scheme != postgresScheme && p.Scheme != alternateScheme {
		return nil, fmt.Errorf("Invalid scheme %s", p.Scheme)
	}

	ci := &connectInfo{
		host:           defaultHost,
		port:           defaultPort,
		database:       defaultDatabase,
		connectTimeout: defaultConnectTimeout,
		options:        make(map[string]string),
	}

	match := hostPortExp.FindStringSubmatch(p.Host)
	if match == nil {
		if p.Host != "" {
			ci.host = p.Host
		}
	} else {
		ci.host = match[1]
		ci.port, err = strconv.Atoi(match[2])
		if err != nil {
			return nil, fmt.Errorf("Invalid port %s: %s", match[2], err)
		}
	}

	if p.Path != "" && p.Path != "/" {
		ci.database = p.Path[1:]
	}

	q := p.Query()
	for paramName := range q {
		ci.options[paramName] = q.Get(paramName)
	}

	if p.User != nil {
		ci.user = p.User.Username()
		ci.creds, _ = p.User.Password()
	}

	// "user" and "password" can override what we set before
	if v := takeOption(ci.options, "user"); v != "" {
		ci.user = v
	}
	if v := takeOption(ci.options, "password"); v != "" {
		ci.creds = v
	}

	if v := takeOption(ci.options, "ssl"); v != "" {
		ci.ssl = strings.EqualFold(v, "true")
	}
	switch takeOption(ci.options, "sslmode") {
	case "require", "verify-ca", "verify-full":
		ci.ssl = true
	}

	if v := takeOption(ci.options, "connect_timeout"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("Invalid connect_timeout %s: %s", v, err)
		}
		ci.connectTimeout = time.Duration(secs) * time.Second
	}

	if ci.options["application_name"] == "" {
		ci.options["application_name"] = defaultApplication
	}

	return ci, nil
}

func takeOption(opts map[string]string, name string) string {
	v := opts[name]
	delete(opts, name)
	return v
}
