/*
Package meshwarp is an image deformation library which lets a user warp an image by dragging the vertices of a triangular mesh laid over it.

A mesh is seeded over the opaque subject of the image as an equilateral lattice, triangulated by fanning around every node.
Each drag moves one node, and the triangles incident on it are re-rendered with the affine map taking their original vertices onto the modified ones.
Nodes are located with a 2D KD-tree.

The package provides a command line utility and an HTTP edit server.
Check the supported commands by typing:

	$ meshwarp --help

Example to warp an image programmatically and save the mesh as SVG:

	package main

	import (
		"os"

		"github.com/gino07172002/testMeshWarp"
		"gonum.org/v1/gonum/spatial/r2"
	)

	func main() {
		s, err := meshwarp.NewSession(srcImg, meshwarp.DefaultOptions())
		if err != nil {
			panic(err)
		}
		if _, ok := s.Press(r2.Vec{X: 120, Y: 80}); ok {
			s.Drag(r2.Vec{X: 130, Y: 90})
			s.Release(r2.Vec{X: 140, Y: 95})
		}
		warped := s.Output()

		f, _ := os.Create("mesh.svg")
		defer f.Close()
		meshwarp.WriteSVG(f, s.Mesh(), warped.Bounds().Dx(), warped.Bounds().Dy(), meshwarp.DefaultSVGOptions())
	}
*/
package meshwarp
