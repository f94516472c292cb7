package utils

import (
	"os"

	"github.com/denisbrodbeck/machineid"
)

// HostID is an app-scoped, hashed machine id. Falls back to the hostname when the
// platform does not expose a machine id (containers without /etc/machine-id).
var HostID = resolveHostID()

func resolveHostID() string {
	id, err := machineid.ProtectedID("backupd")
	if err == nil && id != "" {
		return id[:16]
	}

	hostname, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return hostname
}
