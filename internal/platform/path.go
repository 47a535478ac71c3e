//go:build !windows

package platform

// LongPathname returns path unchanged; only Windows needs the extended
// length prefix treatment.
func LongPathname(path string) string {
	return path
}
