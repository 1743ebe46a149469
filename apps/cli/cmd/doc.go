// Package cmd implements the flowspec CLI commands using Cobra.
//
// Available commands:
//   - run: Select testcases of a user and execute them in a worker process
//   - worker: Execute a runtime snapshot (hidden, started by run)
//   - validate: Check runtime snapshots and definition bundles
//   - list: Display the testcases stored for a user
//   - import: Load definition bundles into the definition store
//   - history: Show recent runs of a user
//   - init: Create a config file and an example definition bundle
//   - version: Show flowspec version information
//
// Every command reads the same layered settings: config file, .env file,
// FLOWSPEC_* environment variables and flags.
package cmd
