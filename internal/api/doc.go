// Package api exposes the REST surface of the wallet daemon: submitting
// transfer jobs, inspecting their state, and reading the session policy the
// daemon is currently operating under.
package api
