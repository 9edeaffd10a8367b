// Package marl is the Composition Root for the marl application.
//
// It connects the core business logic (Domain Layer) with the infrastructure
// adapters (Persistence Layer) using the Hexagonal Architecture pattern.
//
// Philosophy:
//
// marl mirrors a remote note service into a directory of plain text files
// and keeps both sides convergent. It treats the service as the source of
// truth for identity and the files as the editing surface, reconciling the
// two without ever trusting file timestamps.
//
// Features:
//
//   - **Hexagonal Architecture**: Core domain is isolated from transport and storage details.
//   - **Three-way Reconciliation**: Every note is merged from its last agreed state, the current remote state, and the current file.
//   - **Conflict Preservation**: Divergent edits are parked next to the live file instead of being overwritten.
//   - **Live Queries**: A cancelable search session built for as-you-type interfaces.
//   - **Default Adapter (FS)**: Out-of-the-box support for local Markdown-ish files with a filesystem watcher.
//   - **Extensible**: Designed to support other services via core.Remote.
//
// Usage:
//
//	// Open a mirror with functional options
//	app, err := marl.Open("./notes",
//		marl.WithRemote(client),
//		marl.WithLogger(logger),
//	)
//
//	// Reconcile once
//	err = app.Bootstrap(ctx)
//	err = app.Engine.Cycle(ctx)
package marl
