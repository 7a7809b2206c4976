package version

// Version is overridden at build time with -ldflags "-X cardgen-go/internal/version.Version=...".
var Version = "dev"
