package config

import (
	"os"
	"sync"
)

// dockerMarker exists in every Docker container filesystem.
var dockerMarker = "/.dockerenv"

var (
	isDockerOnce   sync.Once
	isDockerResult bool
)

// IsRunningInDocker reports whether the process runs inside a Docker
// container. The result is cached after the first call.
func IsRunningInDocker() bool {
	isDockerOnce.Do(func() {
		isDockerResult = fileExists(dockerMarker)
	})
	return isDockerResult
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ResolveHostForDocker rewrites loopback hosts to host.docker.internal when
// running in Docker so that databases on the host machine stay reachable.
// Datasource adapters and the engine metadata URL both pass their host
// through it.
func ResolveHostForDocker(host string) string {
	return resolveHost(host, IsRunningInDocker())
}

func resolveHost(host string, inDocker bool) string {
	if !inDocker {
		return host
	}
	switch host {
	case "localhost", "127.0.0.1", "::1":
		return "host.docker.internal"
	}
	return host
}
