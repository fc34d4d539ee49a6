package pool

import (
	"fmt"
	"net/url"
	"strconv"
)

// HostDescriptor describes one candidate node, normalized from a nil value,
// a URL string, or the struct itself.
type HostDescriptor struct {
	Host      string
	Port      int
	URLPrefix string
	UseSSL    bool
	HTTPAuth  string // "user:pass" or pre-built token, shaped by the caller
	APIKey    string
	Extra     map[string]any
}

// NormalizeHosts accepts nil, strings, or *HostDescriptor/HostDescriptor
// values and returns a normalized slice of HostDescriptor, defaulting to a
// single zero-value descriptor when hosts is empty.
func NormalizeHosts(hosts []any) ([]HostDescriptor, error) {
	if len(hosts) == 0 {
		return []HostDescriptor{{}}, nil
	}

	out := make([]HostDescriptor, 0, len(hosts))
	for _, h := range hosts {
		switch v := h.(type) {
		case nil:
			out = append(out, HostDescriptor{})
		case string:
			hd, err := parseHostURL(v)
			if err != nil {
				return nil, err
			}
			out = append(out, hd)
		case HostDescriptor:
			out = append(out, v)
		case *HostDescriptor:
			if v == nil {
				out = append(out, HostDescriptor{})
			} else {
				out = append(out, *v)
			}
		default:
			return nil, fmt.Errorf("pool: unsupported host descriptor type %T", h)
		}
	}
	return out, nil
}

func parseHostURL(raw string) (HostDescriptor, error) {
	s := raw
	if !hasScheme(s) {
		s = "//" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return HostDescriptor{}, fmt.Errorf("pool: invalid host %q: %w", raw, err)
	}

	hd := HostDescriptor{Host: u.Hostname()}
	if u.Scheme == "https" {
		hd.UseSSL = true
	}
	if p := u.Port(); p != "" {
		port, perr := strconv.Atoi(p)
		if perr != nil {
			return HostDescriptor{}, fmt.Errorf("pool: invalid port in %q: %w", raw, perr)
		}
		hd.Port = port
	} else if hd.UseSSL {
		hd.Port = 443
	}
	if u.User != nil {
		user := u.User.Username()
		pass, _ := u.User.Password()
		hd.HTTPAuth = user + ":" + pass
	}
	if u.Path != "" && u.Path != "/" {
		hd.URLPrefix = u.Path
	}
	return hd, nil
}

func hasScheme(s string) bool {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case ':':
			return i+2 < len(s) && s[i+1] == '/' && s[i+2] == '/'
		case '/', '.':
			return false
		}
	}
	return false
}
