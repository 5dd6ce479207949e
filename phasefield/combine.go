package phasefield

import (
	"github.com/fennwald/polyphase/field"
	"github.com/fennwald/polyphase/grains"
	"github.com/fennwald/polyphase/grid"
)

// CombinePhaseFields absorbs, for every phase with combination enabled, all
// stable same-phase grains into the one with the largest volume. Used for
// coalescence studies where distinct grain identities of a phase stop
// mattering once established; off by default.
func (k *Kernel) CombinePhaseFields() {
	for p := range k.Phases {
		if !k.Phases[p].Combine {
			continue
		}

		majority := -1
		majorityVolume := 0.0
		nFields := 0
		for idx := range k.Reg.Grains {
			g := &k.Reg.Grains[idx]
			if g.Exist && g.Phase == p && g.Stage == grains.Stable {
				nFields++
				if g.Volume > majorityVolume {
					majority = idx
					majorityVolume = g.Volume
				}
			}
		}
		if majority < 0 || nFields < 2 {
			continue
		}

		s := k.Fields
		if k.Grid.Resolution == grid.Dual {
			s = k.FieldsDR
		}
		k.combineInto(s, p, majority)
	}
}

func (k *Kernel) combineInto(s *field.Storage, phase, majority int) {
	k.pool.Run(s.ExtLen(), func(_, start, end int) {
		for c := start; c < end; c++ {
			node := s.AtLinear(c)

			combined := 0.0
			for e := range node.Entries {
				entry := &node.Entries[e]
				if entry.Index == majority {
					continue
				}
				g := k.Reg.At(entry.Index)
				if g.Phase == phase && g.Stage == grains.Stable {
					combined += entry.Value
					entry.Value = 0.0
				}
			}
			if combined > field.Eps {
				node.AddValue(majority, combined)
			}
		}
	})
}
