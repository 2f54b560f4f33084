package bulkscan

import "os"

// Config holds bulk-scan/flashpoint-detector configuration that doesn't fit the struct-
// tag style root config — domain-local and rarely overridden, read the teacher's manual
// os.Getenv way rather than via internal/config.
type Config struct {
	// FlashpointArtifactPath points at an offline-optimized prompt artifact. Empty means
	// always use the base prompt.
	FlashpointArtifactPath string
}

// NewConfig builds a Config from the environment.
func NewConfig() *Config {
	return &Config{
		FlashpointArtifactPath: os.Getenv("FLASHPOINT_ARTIFACT_PATH"),
	}
}
