package hypervisor

import "strings"

// Version is the hypervisor version reported to guests. Release builds set
// it with -ldflags "-X github.com/hankjacobs/hypervisor.Version=...".
var Version = "0.1.0"

// ParseVersion returns the leading decimal digits of the first three
// dot-separated components of v. Missing components are zero.
func ParseVersion(v string) [3]uint32 {
	var out [3]uint32
	for i, part := range strings.SplitN(strings.TrimPrefix(v, "v"), ".", 3) {
		for _, c := range part {
			if c < '0' || c > '9' {
				break
			}
			out[i] = out[i]*10 + uint32(c-'0')
		}
	}
	return out
}
