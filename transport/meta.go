package transport

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/truemilk/estransport/connection"
)

// ClientVersion is the estransport release identifier embedded in the
// x-elastic-client-meta header's "es=" token.
const ClientVersion = "1.0.0"

// metaHeaderValue builds x-elastic-client-meta:
// es=<client-version>,go=<runtime-version>,t=<backend-version>[,dm=<backend-meta>]
func metaHeaderValue(clientMeta [2]string) string {
	tokens := []string{
		"es=" + normalizeVersion(ClientVersion),
		"go=" + normalizeVersion(strings.TrimPrefix(runtime.Version(), "go")),
		"t=" + normalizeVersion(ClientVersion),
	}
	if clientMeta[0] != "" {
		tokens = append(tokens, fmt.Sprintf("%s=%s", clientMeta[0], normalizeVersion(clientMeta[1])))
	}
	return strings.Join(tokens, ",")
}

// normalizeVersion ensures a pre-release suffix ends in "p", matching
// elasticsearch-py's client-meta version normalization rule.
func normalizeVersion(v string) string {
	if strings.ContainsAny(v, "-+") && !strings.HasSuffix(v, "p") {
		return v + "p"
	}
	return v
}

// defaultClientMeta is the ("gn", go-runtime-version) backend tag appended
// to every x-elastic-client-meta header the transport sends.
var defaultClientMeta = connection.HTTPClientMeta
