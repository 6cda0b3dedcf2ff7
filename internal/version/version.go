package version

// These are set at build time with -ldflags "-X".
var (
	PackageName = "vsa"
	Version     = "undefined"
	CommitHash  = "undefined"
	BuildDate   = "undefined"
)
