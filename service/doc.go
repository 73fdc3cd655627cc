// Package service contains the reconciliation engine, the only component
// with branching logic. One Run per process invocation decides between skip
// and reconfigure:
//
//   - no persisted event identifier: reconfigure unconditionally, without
//     consulting the tunnel prober
//   - remote event differs from the persisted one: reconfigure, regardless
//     of tunnel health
//   - event unchanged but the tunnel is down: reconfigure
//   - event unchanged and tunnel healthy: skip, no side effects
//
// The persisted event identifier is written only after the configuration
// applier succeeds, so a failed run leaves the state untouched and the next
// invocation converges to the same decision a from-scratch run would make.
package service
