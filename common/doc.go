// Package common provides shared constants, sentinel errors, interfaces
// and the application logger used throughout the VPN bridge.
//
//   - Constants: tunnel defaults, file names, timeouts and backend names
//   - Errors: sentinel errors checked with errors.Is across packages
//   - Interfaces: the key-value store behind the tunnel state
//   - Logger: logrus-backed logging with size-based file rotation
//
// # Usage
//
//	common.LogInfo("Tunnel device %s established", name)
//
//	if errors.Is(err, common.ErrPermissionDenied) {
//	    // the VPN permission was revoked; do not retry
//	}
package common
