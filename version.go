package maze

// Version information for this module. These are variables so that a
// build can override them with -ldflags "-X".
var (
	// Version is the current module version.
	Version = "development"

	// APIVersion is the current public API version.
	APIVersion = "v1alpha1"

	// BuildDate is set during build time.
	BuildDate = "development"

	// GitCommit is set during build time.
	GitCommit = "unknown"
)
