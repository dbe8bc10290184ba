package version

import (
	"runtime/debug"
)

// version set at build-time
var version = "main"

// Info describes the running binary.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Timestamp string `json:"timestamp"`
}

func CommitInfo() (string, string) {
	hash, timestamp := "unknown", "unknown"
	hashLen := 7

	info, ok := debug.ReadBuildInfo()
	if !ok {
		return hash, timestamp
	}

	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if len(s.Value) < hashLen {
				hashLen = len(s.Value)
			}
			hash = s.Value[:hashLen]
		case "vcs.time":
			timestamp = s.Value
		}
	}

	return hash, timestamp
}

// Version returns the version
func Version() string {
	if version == "" {
		return "main"
	}

	return version
}

// Get collects the version and VCS information of the binary.
func Get() Info {
	commit, ts := CommitInfo()

	return Info{
		Version:   Version(),
		Commit:    commit,
		Timestamp: ts,
	}
}
