package bbi

import (
	"fmt"
	"strconv"
	"strings"
)

type Chromo struct {
	Idx    int
	Name   string
	Length int
}

// Genome is the complete chromosome table of a file, ordered by id.
type Genome struct {
	Chrs    []Chromo
	Chr2Idx map[string]int
}

// NewGenome orders the name index leaves by id. Ids must be dense.
func NewGenome(leaves []NameLeaf) (*Genome, error) {
	g := &Genome{
		Chrs:    make([]Chromo, len(leaves)),
		Chr2Idx: make(map[string]int, len(leaves)),
	}
	seen := make([]bool, len(leaves))
	for _, l := range leaves {
		idx := int(l.ID)
		if idx >= len(leaves) || seen[idx] {
			return nil, corruptf(-1, fmt.Sprintf("chromosome id of %q", l.Key), fmt.Sprintf("unique id < %d", len(leaves)), l.ID)
		}
		seen[idx] = true
		g.Chrs[idx] = Chromo{idx, l.Key, int(l.ItemSize)}
		g.Chr2Idx[l.Key] = idx
	}
	return g, nil
}

func (g *Genome) Names() []string {
	names := make([]string, len(g.Chrs))
	for i, c := range g.Chrs {
		names[i] = c.Name
	}
	return names
}

// Region formats an interval on one chromosome as chr:start-end.
func (g *Genome) Region(idx, start, end int) string {
	return fmt.Sprintf("%s:%d-%d", g.Chrs[idx].Name, start, end)
}

// ParseRegion splits chr:start-end. A bare chromosome name means the whole
// chromosome and returns end == -1.
func ParseRegion(s string) (chrom string, start, end int, err error) {
	i := strings.LastIndexByte(s, ':')
	if i < 0 {
		if s == "" {
			return "", 0, 0, invalidf("empty region")
		}
		return s, 0, -1, nil
	}
	chrom = s[:i]
	from, to, ok := strings.Cut(strings.ReplaceAll(s[i+1:], ",", ""), "-")
	if !ok || chrom == "" {
		return "", 0, 0, invalidf("region %q is not chr:start-end", s)
	}
	if start, err = strconv.Atoi(from); err != nil {
		return "", 0, 0, invalidf("region %q: start: %v", s, err)
	}
	if end, err = strconv.Atoi(to); err != nil {
		return "", 0, 0, invalidf("region %q: end: %v", s, err)
	}
	if start < 0 || start > end {
		return "", 0, 0, invalidf("region %q: bad range", s)
	}
	return chrom, start, end, nil
}
