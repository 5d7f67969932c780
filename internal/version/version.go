package version

// Version is overridden at build time with -ldflags "-X crmdash-go/internal/version.Version=...".
var Version = "dev"
