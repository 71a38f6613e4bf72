package activity

import (
	"fmt"
	"strings"
)

// feedSeparator joins a resource id and a stream type into a stream id.
// Resource ids use the platform's "type:tenant:key" shape, which never
// contains '#'.
const feedSeparator = "#"

// StreamID composes the stream identifier for one resource's feed of one
// stream type, e.g. "u:cam:abc123" + "activity" -> "u:cam:abc123#activity".
func StreamID(resourceID, streamType string) string {
	return resourceID + feedSeparator + streamType
}

// ParseStreamID splits a stream identifier into its owning resource id and
// stream type.
func ParseStreamID(streamID string) (resourceID, streamType string, err error) {
	i := strings.LastIndex(streamID, feedSeparator)
	if i <= 0 || i == len(streamID)-1 {
		return "", "", fmt.Errorf("stream id %q: want <resourceId>#<streamType>", streamID)
	}
	return streamID[:i], streamID[i+1:], nil
}

// TenantAlias extracts the tenant segment from a "type:tenant:key"
// resource id. The second return is false when the id does not carry a
// tenant segment.
func TenantAlias(resourceID string) (string, bool) {
	parts := strings.SplitN(resourceID, ":", 3)
	if len(parts) != 3 || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
