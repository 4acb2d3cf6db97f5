// Package file provides file-based implementations of driven port interfaces.
// These adapters persist data to the local filesystem.
//
// Adapters:
//   - ConfigStore: TOML-based configuration storage with environment
//     overrides and change watching
//   - LoadSettings: maps configuration keys onto pipeline settings
package file
