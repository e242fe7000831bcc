package readers

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/notargets/goamr/mesh"
	"github.com/notargets/goamr/types"
)

// ReadMeshFile reads a coarse mesh based on extension
func ReadMeshFile(filename string, opts ...mesh.Option) (*mesh.Triangulation, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext != ".msh" {
		return nil, fmt.Errorf("unsupported mesh format: %s", ext)
	}
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadGmsh22(file, opts...)
}

// gmshElement is one line of the $Elements section restricted to the types a cube hierarchy can use.
type gmshElement struct {
	dim         int
	physicalTag int
	nodes       []int // gmsh node ids
}

// Gmsh element type -> topological dimension of the linear line, quadrangle, hexahedron and point
var gmshElementDim22 = map[int]int{
	15: 0,
	1:  1,
	3:  2,
	5:  3,
}

// gmsh numbers quadrangle and hexahedron corners counterclockwise, cells here are lexicographic
var gmshToLexicographic = map[int][]int{
	0: {0},
	1: {0, 1},
	2: {0, 1, 3, 2},
	3: {0, 1, 3, 2, 4, 5, 7, 6},
}

// ReadGmsh22 reads an ASCII Gmsh MSH 2.2 file. The highest element dimension present is the mesh dimension;
// the physical tag of a cell becomes its material and that of a lower dimensional element its boundary id.
func ReadGmsh22(r io.Reader, opts ...mesh.Option) (*mesh.Triangulation, error) {
	var (
		scanner  = bufio.NewScanner(r)
		nodes    = make(map[int][3]float64)
		elements []gmshElement
		version  string
		err      error
	)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "$MeshFormat":
			if version, err = readMeshFormat22(scanner); err != nil {
				return nil, err
			}
		case "$Nodes":
			if err = readNodes22(scanner, nodes); err != nil {
				return nil, err
			}
		case "$Elements":
			if elements, err = readElements22(scanner); err != nil {
				return nil, err
			}
		default:
			if strings.HasPrefix(line, "$") && !strings.HasPrefix(line, "$End") {
				// Skip sections that carry nothing for the coarse mesh
				endMarker := "$End" + line[1:]
				for scanner.Scan() {
					if strings.TrimSpace(scanner.Text()) == endMarker {
						break
					}
				}
			}
		}
	}
	if err = scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanner error: %v", err)
	}
	if !strings.HasPrefix(version, "2.") {
		if version == "" {
			return nil, fmt.Errorf("could not find $MeshFormat section")
		}
		return nil, fmt.Errorf("unsupported Gmsh format version: %s", version)
	}
	return buildTriangulation(nodes, elements, opts...)
}

func buildTriangulation(nodes map[int][3]float64, elements []gmshElement, opts ...mesh.Option) (
	*mesh.Triangulation, error) {
	dim := 0
	for _, e := range elements {
		dim = max(dim, e.dim)
	}
	if dim == 0 {
		return nil, fmt.Errorf("no line, quadrangle or hexahedron elements: %w", types.ErrInvalidState)
	}
	var (
		index    = make(map[int]int) // gmsh node id -> vertex index, in order of first use by a cell
		vertices [][]float64
		cells    []mesh.CellData
		faces    []mesh.FaceData
	)
	lookup := func(e gmshElement, assign bool) (verts []int, err error) {
		for _, lex := range gmshToLexicographic[e.dim] {
			id := e.nodes[lex]
			v, ok := index[id]
			if !ok {
				p, found := nodes[id]
				if !found || !assign {
					return nil, fmt.Errorf("element references unknown node %d: %w", id, types.ErrOutOfRange)
				}
				v = len(vertices)
				index[id] = v
				vertices = append(vertices, append([]float64(nil), p[:dim]...))
			}
			verts = append(verts, v)
		}
		return
	}
	for _, e := range elements {
		if e.dim != dim {
			continue
		}
		verts, err := lookup(e, true)
		if err != nil {
			return nil, err
		}
		cells = append(cells, mesh.CellData{Vertices: verts, Material: types.MaterialID(e.physicalTag)})
	}
	for _, e := range elements {
		if e.dim != dim-1 || e.physicalTag <= 0 {
			continue
		}
		if e.physicalTag >= int(types.InteriorBoundary) {
			return nil, fmt.Errorf("physical tag %d does not fit a boundary id: %w", e.physicalTag,
				types.ErrOutOfRange)
		}
		verts, err := lookup(e, false)
		if err != nil {
			return nil, err
		}
		faces = append(faces, mesh.FaceData{Vertices: verts, Boundary: types.BoundaryID(e.physicalTag)})
	}
	return mesh.NewTriangulation(dim, vertices, cells, append(opts, mesh.WithBoundaryFaces(faces))...)
}

// readMeshFormat22 reads the MeshFormat section
func readMeshFormat22(scanner *bufio.Scanner) (version string, err error) {
	if !scanner.Scan() {
		return "", fmt.Errorf("unexpected EOF in MeshFormat")
	}
	parts := strings.Fields(scanner.Text())
	if len(parts) < 3 {
		return "", fmt.Errorf("invalid MeshFormat line")
	}
	if parts[1] != "0" {
		return "", fmt.Errorf("binary Gmsh files are not supported")
	}
	version = parts[0]
	skipTo(scanner, "$EndMeshFormat")
	return
}

// readNodes22 reads nodes in v2.2 format
func readNodes22(scanner *bufio.Scanner, nodes map[int][3]float64) error {
	if !scanner.Scan() {
		return fmt.Errorf("unexpected EOF in Nodes")
	}
	numNodes, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
	if err != nil {
		return fmt.Errorf("invalid node count: %v", err)
	}
	for i := 0; i < numNodes; i++ {
		if !scanner.Scan() {
			return fmt.Errorf("unexpected EOF reading nodes")
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) < 4 {
			return fmt.Errorf("invalid node line: %s", scanner.Text())
		}
		var (
			p      [3]float64
			nodeID int
		)
		if nodeID, err = strconv.Atoi(parts[0]); err != nil {
			return fmt.Errorf("invalid node line: %s", scanner.Text())
		}
		for j := range p {
			if p[j], err = strconv.ParseFloat(parts[1+j], 64); err != nil {
				return fmt.Errorf("invalid node line: %s", scanner.Text())
			}
		}
		nodes[nodeID] = p
	}
	skipTo(scanner, "$EndNodes")
	return nil
}

// readElements22 reads elements in v2.2 format, skipping types other than point, line, quad and hex
func readElements22(scanner *bufio.Scanner) (elements []gmshElement, err error) {
	if !scanner.Scan() {
		return nil, fmt.Errorf("unexpected EOF in Elements")
	}
	numElements, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
	if err != nil {
		return nil, fmt.Errorf("invalid element count: %v", err)
	}
	for i := 0; i < numElements; i++ {
		if !scanner.Scan() {
			return nil, fmt.Errorf("unexpected EOF reading elements")
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) < 4 {
			return nil, fmt.Errorf("invalid element line")
		}
		fields := make([]int, len(parts))
		for j, s := range parts {
			if fields[j], err = strconv.Atoi(s); err != nil {
				return nil, fmt.Errorf("invalid element line: %s", scanner.Text())
			}
		}
		elemID, elemType, numTags := fields[0], fields[1], fields[2]
		dim, ok := gmshElementDim22[elemType]
		if !ok {
			continue
		}
		var (
			nodeStart     = 3 + numTags
			expectedNodes = 1 << dim
		)
		if len(fields) < nodeStart+expectedNodes {
			return nil, fmt.Errorf("element %d: expected %d nodes, got %d",
				elemID, expectedNodes, len(fields)-nodeStart)
		}
		e := gmshElement{dim: dim, nodes: fields[nodeStart : nodeStart+expectedNodes]}
		if numTags > 0 {
			e.physicalTag = fields[3]
		}
		elements = append(elements, e)
	}
	skipTo(scanner, "$EndElements")
	return
}

func skipTo(scanner *bufio.Scanner, marker string) {
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) == marker {
			break
		}
	}
}
