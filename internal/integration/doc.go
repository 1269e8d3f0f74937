// Package integration runs the client against a real broker started with
// testcontainers. The tests need Docker and the integration build tag:
//
//	go test -tags integration ./internal/integration/...
package integration
