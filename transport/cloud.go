package transport

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/truemilk/estransport/pool"
)

// decodeCloudID decodes an Elastic Cloud ID of the shape
// "<cluster>:base64(host$es_uuid$kibana_uuid)" into a single seed host
// descriptor pointing at the Elasticsearch endpoint.
func decodeCloudID(cloudID string) (pool.HostDescriptor, error) {
	parts := strings.SplitN(cloudID, ":", 2)
	if len(parts) != 2 {
		return pool.HostDescriptor{}, fmt.Errorf("transport: invalid cloud_id %q", cloudID)
	}

	decoded, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return pool.HostDescriptor{}, fmt.Errorf("transport: cloud_id payload is not valid base64: %w", err)
	}

	segments := strings.Split(string(decoded), "$")
	if len(segments) < 2 {
		return pool.HostDescriptor{}, fmt.Errorf("transport: cloud_id payload missing host$es_uuid segments")
	}
	domain := segments[0]
	esUUID := segments[1]

	return pool.HostDescriptor{
		Host:   esUUID + "." + domain,
		Port:   443,
		UseSSL: true,
	}, nil
}
