package version

// Version is the release version of patchbay. Overridden at build time via
// -ldflags "-X github.com/saworbit/patchbay/internal/version.Version=...".
var Version = "0.3.0-dev"
