// Package cluster implements the HTTP client for the hub cluster's control
// plane: event identifier lookup, tunnel credential issuance, and best-effort
// init-status reporting. A Client is scoped to the cluster URL resolved for
// the current run.
package cluster
