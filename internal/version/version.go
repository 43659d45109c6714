// Package version holds the build-time version string shared by every
// wanctl binary and surfaced on each daemon's health endpoint.
package version

// Version is overridden at build time with -ldflags "-X ... =vX.Y.Z".
var Version = "0.1.0-dev"
