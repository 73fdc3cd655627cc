// Package resolver discovers the currently active hub cluster for a robot.
//
// Two resolution strategies are provided:
//
//   - Client follows the fixed, authenticated redirect pointer. Basic auth
//     is re-applied on every hop since the chain may cross hosts, redirect
//     loops are detected, and the whole chain is retried on transient
//     failures. Auth rejections (401/403) are never retried.
//
//   - GitHubResolver reads the cluster URL from a per-robot file (falling
//     back to a catch-all file) in a GitHub repository, for fleets managed
//     through git instead of a pointer service.
//
// Both produce an interfaces.ClusterURL that is valid for a single run and
// never cached across runs.
package resolver
