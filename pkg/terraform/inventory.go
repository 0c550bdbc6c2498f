package terraform

import "github.com/openfroyo/infraforge/pkg/workflow"

// ResourceAddresses lists the resource addresses declared in artifact. It is a
// workflow.AddressExtractor; artifacts that do not parse fall back to a scan
// of the resource block headers.
func ResourceAddresses(artifact string) []string {
	m, diags := ParseString(artifact)
	if diags.HasErrors() || m == nil {
		return workflow.ScanResourceAddresses(artifact)
	}
	return m.Addresses()
}
