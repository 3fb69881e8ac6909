// Package cratespro holds the domain types shared by the crates-pro
// subsystems: programs, versions, dependency edges, advisories, queue
// payloads, and the derived-view rows served by the read API.
//
// The types in this package are plain data. Behavior lives in the subsystem
// packages: ingestion in queue, workspace and manifest; graph writes and
// traversal in graph; the relational mirror in datastore; derived views in
// views; version-range evaluation in rangematch.
package cratespro
