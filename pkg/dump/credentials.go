package dump

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"
)

// passwordPattern matches password values in keyword/value connection strings and query parameters
var passwordPattern = regexp.MustCompile(`(?i)(password=)('(?:\\.|[^'])*'|[^\s&]*)`)

// postgresCredentials removes the password from dsn and returns it as PGPASSWORD environment entry.
func postgresCredentials(dsn string) (string, []string) {
	var password string
	if u, err := url.Parse(dsn); err == nil && (u.Scheme == "postgres" || u.Scheme == "postgresql") {
		changed := false
		if u.User != nil {
			if pw, ok := u.User.Password(); ok {
				password = pw
				u.User = url.User(u.User.Username())
				changed = true
			}
		}
		if q := u.Query(); q.Has("password") {
			if password == "" {
				password = q.Get("password")
			}
			q.Del("password")
			u.RawQuery = q.Encode()
			changed = true
		}
		if changed {
			dsn = u.String()
		}
	} else {
		dsn, password = stripKeyword(dsn, "password")
	}

	if password == "" {
		return dsn, nil
	}
	return dsn, []string{"PGPASSWORD=" + password}
}

// stripKeyword removes keyword from a keyword/value connection string and returns its unquoted value.
func stripKeyword(dsn, keyword string) (string, string) {
	var (
		kept  []string
		value string
	)
	for _, field := range splitFields(dsn) {
		k, v, _ := strings.Cut(field, "=")
		if strings.EqualFold(strings.TrimSpace(k), keyword) {
			value = unquote(v)
			continue
		}
		kept = append(kept, field)
	}
	return strings.Join(kept, " "), value
}

// splitFields splits on whitespace outside of single quotes, keeping quotes and escapes.
func splitFields(s string) []string {
	var (
		fields  []string
		current strings.Builder
		quoted  bool
		escaped bool
	)
	for _, r := range s {
		switch {
		case escaped:
			escaped = false
		case r == '\\':
			escaped = true
		case r == '\'':
			quoted = !quoted
		case unicode.IsSpace(r) && !quoted:
			if current.Len() > 0 {
				fields = append(fields, current.String())
				current.Reset()
			}
			continue
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		fields = append(fields, current.String())
	}
	return fields
}

func unquote(v string) string {
	if len(v) >= 2 && strings.HasPrefix(v, "'") && strings.HasSuffix(v, "'") {
		v = v[1 : len(v)-1]
	}
	var b strings.Builder
	escaped := false
	for _, r := range v {
		if r == '\\' && !escaped {
			escaped = true
			continue
		}
		escaped = false
		b.WriteRune(r)
	}
	return b.String()
}

// redactArgs hides passwords in command arguments before they are logged.
func redactArgs(args []string) []string {
	ret := make([]string, len(args))
	for i, arg := range args {
		if u, err := url.Parse(arg); err == nil && u.User != nil {
			arg = u.Redacted()
		}
		ret[i] = passwordPattern.ReplaceAllString(arg, "${1}xxxxx")
	}
	return ret
}
