package health

import (
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"time"
)

type BuildInfo struct {
	Version   string    `json:"version"`
	GitCommit string    `json:"git_commit"`
	BuildTime time.Time `json:"build_time"`
	GoVersion string    `json:"go_version"`
	OS        string    `json:"os"`
	Arch      string    `json:"arch"`
}

// ReadBuildInfo prefers BUILD_* environment overrides, then the VCS stamp
// embedded by the go tool.
func ReadBuildInfo() BuildInfo {
	info := BuildInfo{
		Version:   getEnvOrDefault("BUILD_VERSION", "dev"),
		GitCommit: getEnvOrDefault("BUILD_COMMIT", "unknown"),
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}

	if buildTime, err := time.Parse(time.RFC3339, os.Getenv("BUILD_TIME")); err == nil {
		info.BuildTime = buildTime
	}

	embedded, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}

	if info.Version == "dev" && embedded.Main.Version != "" && embedded.Main.Version != "(devel)" {
		info.Version = embedded.Main.Version
	}

	for _, setting := range embedded.Settings {
		switch setting.Key {
		case "vcs.revision":
			if info.GitCommit == "unknown" {
				info.GitCommit = setting.Value
			}
		case "vcs.time":
			if info.BuildTime.IsZero() {
				if buildTime, err := time.Parse(time.RFC3339, setting.Value); err == nil {
					info.BuildTime = buildTime
				}
			}
		}
	}

	return info
}

func getBuildInfo() string {
	info := ReadBuildInfo()
	return fmt.Sprintf("%s-%s (%s)", info.Version, info.GitCommit[:min(len(info.GitCommit), 7)], info.BuildTime.Format("2006-01-02"))
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
