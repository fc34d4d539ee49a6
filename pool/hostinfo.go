package pool

import (
	"strconv"
	"strings"
)

// NodeInfo is the subset of a node entry from GET /_nodes/_all/http that the
// pool cares about for sniffing.
type NodeInfo struct {
	Roles []string `json:"roles"`
	HTTP  struct {
		PublishAddress string `json:"publish_address"`
	} `json:"http"`
}

// NodesResponse is the top-level shape of GET /_nodes/_all/http.
type NodesResponse struct {
	Nodes map[string]NodeInfo `json:"nodes"`
}

// HostInfoCallback decides whether a sniffed node should be admitted to the
// pool, returning nil to skip it.
type HostInfoCallback func(nodeInfo NodeInfo, seq int) *HostDescriptor

// DefaultHostInfoCallback skips nodes whose roles are exactly ["master"]
// and otherwise parses host/port from the node's publish address.
func DefaultHostInfoCallback(nodeInfo NodeInfo, seq int) *HostDescriptor {
	if isMasterOnly(nodeInfo.Roles) {
		return nil
	}
	host, port, err := ParsePublishAddress(nodeInfo.HTTP.PublishAddress)
	if err != nil {
		return nil
	}
	return &HostDescriptor{Host: host, Port: port}
}

func isMasterOnly(roles []string) bool {
	return len(roles) == 1 && roles[0] == "master"
}

// ParsePublishAddress parses an Elasticsearch publish address in either of
// its two documented shapes:
//
//	"1.1.1.1:123"
//	"somehost.tld/1.1.1.1:123"
//
// In the latter shape the hostname before the slash wins; the port is
// whatever follows the final colon.
func ParsePublishAddress(addr string) (host string, port int, err error) {
	hostPart := addr
	if idx := strings.Index(addr, "/"); idx >= 0 {
		hostPart = addr[:idx]
		rest := addr[idx+1:]
		colon := strings.LastIndex(rest, ":")
		if colon < 0 {
			return "", 0, &ParseError{Addr: addr}
		}
		portStr := rest[colon+1:]
		p, perr := strconv.Atoi(portStr)
		if perr != nil {
			return "", 0, &ParseError{Addr: addr}
		}
		return hostPart, p, nil
	}

	colon := strings.LastIndex(hostPart, ":")
	if colon < 0 {
		return "", 0, &ParseError{Addr: addr}
	}
	host = hostPart[:colon]
	portStr := hostPart[colon+1:]
	p, perr := strconv.Atoi(portStr)
	if perr != nil {
		return "", 0, &ParseError{Addr: addr}
	}
	return host, p, nil
}

// ParseError indicates a publish address could not be parsed.
type ParseError struct{ Addr string }

func (e *ParseError) Error() string { return "pool: cannot parse publish address " + e.Addr }
