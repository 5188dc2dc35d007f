package buildconfig

// Set with -ldflags "-X github.com/Harshitk-cp/chainwatch/internal/buildconfig.version=..."
var (
	version = "dev"
	commit  = "unknown"
)

func Version() string {
	return version
}

func Commit() string {
	return commit
}

// UserAgent identifies chainwatch to upstream data and notification APIs.
func UserAgent() string {
	return "chainwatch/" + version + " (" + commit + ")"
}
