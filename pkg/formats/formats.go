// Package formats reads and writes the interchange formats the fracture
// tool accepts for input meshes and emits for inspection.
package formats
