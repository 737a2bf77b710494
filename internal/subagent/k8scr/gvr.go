package k8scr

import (
	"fmt"
	"strings"
)

// ParseGVR parses "group/version/resource" into a GVR, the same compact
// form the control plane's own configuration file uses to name the custom
// resource kind a fleet's sub-agents are represented as.
func ParseGVR(s string) (GVR, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return GVR{}, fmt.Errorf("k8scr: %q: want group/version/resource", s)
	}
	return GVR{Group: parts[0], Version: parts[1], Resource: parts[2]}, nil
}
