// Package preflight provides readiness checks for the external tools,
// services and filesystem paths pawluxe depends on.
//
// The export worker runs RunAll once at startup and refuses to start when a
// required directory is unusable. The CLI "pawluxe status" command renders
// the same results together with CheckSystemDeps.
package preflight
