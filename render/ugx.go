package render

import (
	"encoding/xml"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/nmorph/tubemesh/grid"
)

// ugxGrid mirrors the XML layout of the ugx grid exchange format used
// by ProMesh and ug4. Element lists are whitespace separated index runs
// stored as character data.
type ugxGrid struct {
	XMLName        xml.Name          `xml:"grid"`
	Name           string            `xml:"name,attr"`
	Vertices       *ugxVertices      `xml:"vertices"`
	Edges          *ugxIndices       `xml:"edges"`
	Triangles      *ugxIndices       `xml:"triangles"`
	Quadrilaterals *ugxIndices       `xml:"quadrilaterals"`
	Hexahedrons    *ugxIndices       `xml:"hexahedrons"`
	SubsetHandler  *ugxSubsetHandler `xml:"subset_handler"`
}

type ugxVertices struct {
	Coords int    `xml:"coords,attr"`
	Data   string `xml:",chardata"`
}

type ugxIndices struct {
	Data string `xml:",chardata"`
}

type ugxSubsetHandler struct {
	Name    string      `xml:"name,attr"`
	Subsets []ugxSubset `xml:"subset"`
}

type ugxSubset struct {
	Name     string      `xml:"name,attr"`
	Color    string      `xml:"color,attr"`
	State    int         `xml:"state,attr"`
	Vertices *ugxIndices `xml:"vertices"`
	Edges    *ugxIndices `xml:"edges"`
	Faces    *ugxIndices `xml:"faces"`
	Volumes  *ugxIndices `xml:"volumes"`
}

// CreateUGX writes grid g to a ugx file at path.
func CreateUGX(path string, g *grid.Grid) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return WriteUGX(file, g)
}

// WriteUGX writes grid g to w in the ugx grid exchange format read by
// ProMesh and ug4. Erased elements are skipped and the remaining ones
// renumbered consecutively. The format keeps triangles and
// quadrilaterals in separate element runs, so subsets refer to faces
// with all triangles numbered before all quadrilaterals.
func WriteUGX(w io.Writer, g *grid.Grid) error {
	doc := ugxGrid{Name: "defGrid"}

	vertIdx := make([]int, g.VertexSlots())
	var verts strings.Builder
	n := 0
	for v := range vertIdx {
		vertIdx[v] = -1
		if !g.VertexAlive(v) {
			continue
		}
		vertIdx[v] = n
		n++
		p := g.Pos(v)
		writeFloats(&verts, p.X, p.Y, p.Z)
	}
	doc.Vertices = &ugxVertices{Coords: 3, Data: verts.String()}

	edgeIdx := make([]int, g.EdgeSlots())
	var edges strings.Builder
	n = 0
	for e := range edgeIdx {
		edgeIdx[e] = -1
		if !g.EdgeAlive(e) {
			continue
		}
		edgeIdx[e] = n
		n++
		ev := g.Edge(e)
		writeInts(&edges, vertIdx[ev[0]], vertIdx[ev[1]])
	}
	if edges.Len() > 0 {
		doc.Edges = &ugxIndices{Data: edges.String()}
	}

	faceIdx := make([]int, g.FaceSlots())
	var tris, quads strings.Builder
	n = 0
	for f := range faceIdx {
		faceIdx[f] = -1
		if !g.FaceAlive(f) {
			continue
		}
		vs := g.FaceVertices(f)
		if len(vs) != 3 {
			continue
		}
		faceIdx[f] = n
		n++
		for _, v := range vs {
			writeInts(&tris, vertIdx[v])
		}
	}
	for f := range faceIdx {
		if !g.FaceAlive(f) {
			continue
		}
		vs := g.FaceVertices(f)
		if len(vs) != 4 {
			continue
		}
		faceIdx[f] = n
		n++
		for _, v := range vs {
			writeInts(&quads, vertIdx[v])
		}
	}
	if tris.Len() > 0 {
		doc.Triangles = &ugxIndices{Data: tris.String()}
	}
	if quads.Len() > 0 {
		doc.Quadrilaterals = &ugxIndices{Data: quads.String()}
	}

	volIdx := make([]int, g.VolumeSlots())
	var hexes strings.Builder
	n = 0
	for v := range volIdx {
		volIdx[v] = -1
		if !g.VolumeAlive(v) {
			continue
		}
		volIdx[v] = n
		n++
		corners := g.Volume(v)
		for _, c := range corners {
			writeInts(&hexes, vertIdx[c])
		}
	}
	if hexes.Len() > 0 {
		doc.Hexahedrons = &ugxIndices{Data: hexes.String()}
	}

	doc.SubsetHandler = subsetHandlerNode(g, vertIdx, edgeIdx, faceIdx, volIdx)

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "    ")
	if err := enc.Encode(&doc); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

func subsetHandlerNode(g *grid.Grid, vertIdx, edgeIdx, faceIdx, volIdx []int) *ugxSubsetHandler {
	ns := g.NumSubsets()
	subVerts := make([][]int, ns)
	subEdges := make([][]int, ns)
	subFaces := make([][]int, ns)
	subVols := make([][]int, ns)
	for v, fi := range vertIdx {
		if fi < 0 {
			continue
		}
		if si := g.VertexSubset(v); si >= 0 {
			subVerts[si] = append(subVerts[si], fi)
		}
	}
	for e, fi := range edgeIdx {
		if fi < 0 {
			continue
		}
		if si := g.EdgeSubset(e); si >= 0 {
			subEdges[si] = append(subEdges[si], fi)
		}
	}
	for f, fi := range faceIdx {
		if fi < 0 {
			continue
		}
		if si := g.FaceSubset(f); si >= 0 {
			subFaces[si] = append(subFaces[si], fi)
		}
	}
	for v, fi := range volIdx {
		if fi < 0 {
			continue
		}
		if si := g.VolumeSubset(v); si >= 0 {
			subVols[si] = append(subVols[si], fi)
		}
	}
	handler := &ugxSubsetHandler{Name: "defSH"}
	for si := 0; si < ns; si++ {
		c := g.SubsetColor(si)
		var color strings.Builder
		writeFloats(&color, c[0], c[1], c[2], c[3])
		handler.Subsets = append(handler.Subsets, ugxSubset{
			Name:     g.SubsetName(si),
			Color:    color.String(),
			Vertices: indexRun(subVerts[si]),
			Edges:    indexRun(subEdges[si]),
			Faces:    indexRun(subFaces[si]),
			Volumes:  indexRun(subVols[si]),
		})
	}
	return handler
}

func indexRun(ii []int) *ugxIndices {
	if len(ii) == 0 {
		return nil
	}
	var sb strings.Builder
	writeInts(&sb, ii...)
	return &ugxIndices{Data: sb.String()}
}

func writeInts(sb *strings.Builder, ii ...int) {
	for _, i := range ii {
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(strconv.Itoa(i))
	}
}

func writeFloats(sb *strings.Builder, ff ...float64) {
	for _, f := range ff {
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	}
}
