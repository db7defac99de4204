// fracturetool is a CLI utility for fracturing triangle meshes into
// hierarchies of chunks.
package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "slice":
		err = cmdSlice(args)
	case "chip":
		err = cmdChip(args)
	case "cutout":
		err = cmdCutout(args)
	case "info":
		err = cmdInfo(args)
	case "hull":
		err = cmdHull(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`fracturetool - hierarchical mesh fracturing

Usage:
  fracturetool <command> [options]

Commands:
  slice  [options] <mesh>            Fracture a mesh with noisy slicing surfaces
  chip   [options] <mesh> <image>    Carve a mesh with cutouts traced from an image
  cutout [options] <image>           Trace a cutout set and write a WebP preview
  info   <state.frs>                 Show a saved fracture state
  hull   [options] <mesh>            Build a collision hull for a mesh

A mesh is an OBJ file or a primitive: box:W,H,D  sphere:R  cylinder:H,R

Shared options:
  -config <file>   YAML config (defaults < file < flags)
  -seed <n>        Random seed
  -workers <n>     Parallel part workers
  -depth <n>       Maximum slice depth
  -out <dir>       Output directory
  -hull <method>   6dop, 10dop_x, ..., 26dop, wrap
  -debug           Debug logging

Examples:
  fracturetool slice -depth 2 -out chunks statue.obj
  fracturetool slice -config brick.yaml box:2,1,1
  fracturetool chip -out chipped wall.obj bricks.png
  fracturetool cutout -preview bricks.webp bricks.png
  fracturetool info chunks/state.frs`)
}
