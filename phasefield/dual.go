package phasefield

// fineChildren calls fn with the fine-grid coordinates of each of the
// 2^dim children of the coarse cell (i,j,m).
func (k *Kernel) fineChildren(i, j, m int, fn func(fi, fj, fk int)) {
	fx := 1 + k.Grid.DNx
	fy := 1 + k.Grid.DNy
	fz := 1 + k.Grid.DNz
	for di := -k.Grid.DNx; di <= k.Grid.DNx; di += 2 {
		for dj := -k.Grid.DNy; dj <= k.Grid.DNy; dj += 2 {
			for dk := -k.Grid.DNz; dk <= k.Grid.DNz; dk += 2 {
				fn(fx*i+(di+1)/2, fy*j+(dj+1)/2, fz*m+(dk+1)/2)
			}
		}
	}
}

// Coarsen rebuilds every wide-interface coarse cell as the arithmetic mean
// of its fine children. The mean is a convex combination of valid nodes,
// so bounds and the sum-to-one invariant carry over; finalize then prunes
// entries the averaging thinned out.
func (k *Kernel) Coarsen() {
	norm := 1.0 / float64(int(1)<<k.Grid.Dimensions)

	s := k.Fields
	k.pool.Run(s.ExtLen(), func(_, start, end int) {
		for c := start; c < end; c++ {
			i, j, m := s.Cell(c)
			if !s.InRange(i, j, m, 0) {
				continue
			}
			node := s.AtLinear(c)
			if !node.WideInterface() {
				continue
			}
			node.Clear()
			k.fineChildren(i, j, m, func(fi, fj, fk int) {
				child := k.FieldsDR.At(fi, fj, fk)
				for e := range child.Entries {
					node.AddValue(child.Entries[e].Index, child.Entries[e].Value)
				}
			})
			node.ScaleValues(norm)
			node.Finalize()
		}
	})
}

// CoarsenRates accumulates the fine-grid pair records into the coarse
// increment store with the same averaging norm. No finalize: rate records
// carry no sum invariant of their own.
func (k *Kernel) CoarsenRates() {
	norm := 1.0 / float64(int(1)<<k.Grid.Dimensions)

	rs := k.FieldsDot
	k.pool.Run(rs.ExtLen(), func(_, start, end int) {
		for c := start; c < end; c++ {
			i, j, m := rs.Cell(c)
			if !rs.InRange(i, j, m, 0) {
				continue
			}
			if !k.Fields.At(i, j, m).WideInterface() {
				continue
			}
			store := rs.AtLinear(c)
			store.Clear()
			k.fineChildren(i, j, m, func(fi, fj, fk int) {
				child := k.FieldsDotDR.At(fi, fj, fk)
				for r := range child.Rates {
					rec := &child.Rates[r]
					store.Add1(rec.A, rec.B, rec.Value1)
					store.Add2(rec.A, rec.B, rec.Value2)
				}
			})
			store.Scale(norm)
		}
	})
}

// Refine writes an interpolated copy of the coarse field into every fine
// child: each child samples the coarse field at quarter offsets toward its
// own octant. Exact for bulk cells, invariant-preserving for interface
// cells.
func (k *Kernel) Refine() {
	fx := 1 + k.Grid.DNx
	fy := 1 + k.Grid.DNy
	fz := 1 + k.Grid.DNz

	s := k.Fields
	k.pool.Run(s.ExtLen(), func(_, start, end int) {
		for c := start; c < end; c++ {
			i, j, m := s.Cell(c)
			if !s.InRange(i, j, m, 0) {
				continue
			}
			for di := -k.Grid.DNx; di <= k.Grid.DNx; di += 2 {
				for dj := -k.Grid.DNy; dj <= k.Grid.DNy; dj += 2 {
					for dk := -k.Grid.DNz; dk <= k.Grid.DNz; dk += 2 {
						sampled := s.Sample(
							float64(i)+0.25*float64(di),
							float64(j)+0.25*float64(dj),
							float64(m)+0.25*float64(dk),
						)
						child := k.FieldsDR.At(fx*i+(di+1)/2, fy*j+(dj+1)/2, fz*m+(dk+1)/2)
						child.CopyFrom(&sampled)
						child.Finalize()
					}
				}
			}
		}
	})
}
