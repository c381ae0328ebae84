package grid

// Subset bookkeeping. Subsets partition grid elements into named regions.
// Indices are dense and shared by all element dimensions; a negative index
// means unassigned.

// SetVertexSubset assigns vertex v to subset si.
func (g *Grid) SetVertexSubset(v, si int) { g.vrtSub[v] = si; g.growSubsets(si) }

// VertexSubset returns the subset of vertex v.
func (g *Grid) VertexSubset(v int) int { return g.vrtSub[v] }

// SetEdgeSubset assigns edge e to subset si.
func (g *Grid) SetEdgeSubset(e, si int) { g.edgeSub[e] = si; g.growSubsets(si) }

// EdgeSubset returns the subset of edge e.
func (g *Grid) EdgeSubset(e int) int { return g.edgeSub[e] }

// SetFaceSubset assigns face f to subset si.
func (g *Grid) SetFaceSubset(f, si int) { g.faceSub[f] = si; g.growSubsets(si) }

// FaceSubset returns the subset of face f.
func (g *Grid) FaceSubset(f int) int { return g.faceSub[f] }

// SetVolumeSubset assigns volume v to subset si.
func (g *Grid) SetVolumeSubset(v, si int) { g.volSub[v] = si; g.growSubsets(si) }

// VolumeSubset returns the subset of volume v.
func (g *Grid) VolumeSubset(v int) int { return g.volSub[v] }

func (g *Grid) growSubsets(si int) {
	for len(g.subNames) <= si {
		g.subNames = append(g.subNames, "")
		g.subColors = append(g.subColors, [4]float64{})
	}
}

// NumSubsets returns the number of subsets, which is one more than the
// largest index ever assigned or named.
func (g *Grid) NumSubsets() int {
	n := len(g.subNames)
	for _, si := range g.vrtSub {
		if si >= n {
			n = si + 1
		}
	}
	for _, si := range g.edgeSub {
		if si >= n {
			n = si + 1
		}
	}
	for _, si := range g.faceSub {
		if si >= n {
			n = si + 1
		}
	}
	for _, si := range g.volSub {
		if si >= n {
			n = si + 1
		}
	}
	return n
}

// SetSubsetName names subset si.
func (g *Grid) SetSubsetName(si int, name string) {
	g.growSubsets(si)
	g.subNames[si] = name
}

// SubsetName returns the name of subset si, or the empty string.
func (g *Grid) SubsetName(si int) string {
	if si < 0 || si >= len(g.subNames) {
		return ""
	}
	return g.subNames[si]
}

// SubsetColor returns the display color of subset si as RGBA in [0,1].
func (g *Grid) SubsetColor(si int) [4]float64 {
	if si < 0 || si >= len(g.subColors) {
		return [4]float64{}
	}
	return g.subColors[si]
}

// subsetPalette is cycled through by AssignSubsetColors.
var subsetPalette = [][4]float64{
	{1.0, 0.0, 0.0, 1.0},
	{0.0, 1.0, 0.0, 1.0},
	{0.0, 0.0, 1.0, 1.0},
	{1.0, 1.0, 0.0, 1.0},
	{1.0, 0.0, 1.0, 1.0},
	{0.0, 1.0, 1.0, 1.0},
	{1.0, 0.5, 0.0, 1.0},
	{0.5, 0.0, 1.0, 1.0},
	{0.0, 0.5, 0.5, 1.0},
	{0.5, 0.5, 0.5, 1.0},
}

// AssignSubsetColors gives every subset a display color from a fixed
// palette, cycling when there are more subsets than palette entries.
func (g *Grid) AssignSubsetColors() {
	n := g.NumSubsets()
	g.growSubsets(n - 1)
	for si := 0; si < n; si++ {
		g.subColors[si] = subsetPalette[si%len(subsetPalette)]
	}
}

// subsetUsed reports per subset whether any live element is assigned to it.
func (g *Grid) subsetUsed() []bool {
	used := make([]bool, g.NumSubsets())
	for v, alive := range g.vrtAlive {
		if alive && g.vrtSub[v] >= 0 {
			used[g.vrtSub[v]] = true
		}
	}
	for e, alive := range g.edgeAlive {
		if alive && g.edgeSub[e] >= 0 {
			used[g.edgeSub[e]] = true
		}
	}
	for f, alive := range g.faceAlive {
		if alive && g.faceSub[f] >= 0 {
			used[g.faceSub[f]] = true
		}
	}
	for v, alive := range g.volAlive {
		if alive && g.volSub[v] >= 0 {
			used[g.volSub[v]] = true
		}
	}
	return used
}

// EraseEmptySubsets removes subsets that no live element is assigned to and
// renumbers the remaining subsets densely, keeping their order, names and
// colors.
func (g *Grid) EraseEmptySubsets() {
	used := g.subsetUsed()
	remap := make([]int, len(used))
	next := 0
	for si, u := range used {
		if u {
			remap[si] = next
			next++
		} else {
			remap[si] = -1
		}
	}
	apply := func(subs []int, alive []bool) {
		for i := range subs {
			if alive[i] && subs[i] >= 0 && remap[subs[i]] >= 0 {
				subs[i] = remap[subs[i]]
			}
		}
	}
	apply(g.vrtSub, g.vrtAlive)
	apply(g.edgeSub, g.edgeAlive)
	apply(g.faceSub, g.faceAlive)
	apply(g.volSub, g.volAlive)

	names := make([]string, next)
	colors := make([][4]float64, next)
	for si, u := range used {
		if u && si < len(g.subNames) {
			names[remap[si]] = g.subNames[si]
			colors[remap[si]] = g.subColors[si]
		}
	}
	g.subNames = names
	g.subColors = colors
	if g.defaultSub < len(remap) && remap[g.defaultSub] >= 0 {
		g.defaultSub = remap[g.defaultSub]
	} else {
		g.defaultSub = 0
	}
}
