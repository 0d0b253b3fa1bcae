// Package main hosts the pawluxe CLI entrypoint and command graph.
//
// One binary carries both long-running workers (track and export worker)
// alongside queue, camera and segment administration. Configuration
// resolution and logger setup live here so the internal packages stay free of
// flag handling.
package main
