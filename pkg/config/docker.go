package config

import (
	"net"
	"net/url"
	"os"
	"sync"
)

var (
	isDockerOnce   sync.Once
	isDockerResult bool
)

// IsRunningInDocker returns true if the application is running inside a Docker container.
// Detection is based on the presence of /.dockerenv. The result is cached after the first call.
func IsRunningInDocker() bool {
	isDockerOnce.Do(func() {
		_, err := os.Stat("/.dockerenv")
		isDockerResult = err == nil
	})
	return isDockerResult
}

// ResolveDatabaseURLForDocker rewrites a localhost database host to
// host.docker.internal when running inside Docker, so a containerised
// server can reach a Postgres running on the developer's machine.
// Unparseable URLs and non-local hosts are returned unchanged.
func ResolveDatabaseURLForDocker(rawURL string) string {
	return resolveDatabaseURL(rawURL, IsRunningInDocker())
}

func resolveDatabaseURL(rawURL string, inDocker bool) string {
	if !inDocker {
		return rawURL
	}

	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}

	host := u.Hostname()
	if host != "localhost" && host != "127.0.0.1" {
		return rawURL
	}

	if port := u.Port(); port != "" {
		u.Host = net.JoinHostPort("host.docker.internal", port)
	} else {
		u.Host = "host.docker.internal"
	}
	return u.String()
}
