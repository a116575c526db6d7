// Package manager owns the single in-process model instance. It is
// structured into small files by concern:
//
//   - manager.go: core Manager type, constructor, simple getters.
//   - config.go: ManagerConfig and package defaults; NewWithConfig applies defaults.
//   - types.go: state types (State, ModelInfo, SharedInstance, Snapshot).
//   - errors.go: error values specific to the manager (ErrClosed).
//   - helpers.go: small utilities (file size, display name).
//   - ensure.go: GetOrLoad, the lazy first-writer-wins model load.
//   - admission.go: the single in-flight generation slot on SharedInstance.
//   - status_report.go: Status/Snapshot reporting helpers.
//   - ops.go: background warm-up.
//   - unload.go: Close, which drains the slot and frees the model.
//   - events.go, eventpub.go: lifecycle events and the log and memory publishers.
//
// Load failures are never cached: a later GetOrLoad retries from scratch.
// Once loaded, the model handle is read-only and lives until Close.
package manager
