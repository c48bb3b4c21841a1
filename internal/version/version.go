package version

// Version is the build version string, overridable at link time with
// -ldflags "-X agentcore/internal/version.Version=...".
var Version = "dev"
