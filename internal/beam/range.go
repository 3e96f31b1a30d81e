package beam

// RangeOptions configures an expanding-L range search (C10).
type RangeOptions struct {
	Range       float32 // keep only results with distance <= Range
	MinL        int
	MaxL        int
	MinBeam     int
	MaxBeam     int // clip(L/5, MinBeam, MaxBeam); spec default cap is 100
	Base        Options
}

// RangeSearch wraps Search in an expanding-L schedule: starting at
// MinL, doubling each iteration until either the hit count falls below
// L/2 or L exceeds MaxL, then returning every result within Range.
func (e *Engine) RangeSearch(query []float32, ropts RangeOptions) (Result, error) {
	if ropts.MaxBeam <= 0 {
		ropts.MaxBeam = 100
	}

	l := ropts.MinL
	if l <= 0 {
		l = 10
	}

	var last Result

	for {
		beam := l / 5
		if beam < ropts.MinBeam {
			beam = ropts.MinBeam
		}

		if beam > ropts.MaxBeam {
			beam = ropts.MaxBeam
		}

		opts := ropts.Base
		opts.L = l
		opts.K = l
		opts.BeamWidth = beam

		res, err := e.Search(query, opts)
		if err != nil {
			return Result{}, err
		}

		last = res

		hits := 0
		for _, d := range res.Dists {
			if d <= ropts.Range {
				hits++
			}
		}

		if hits < l/2 {
			break
		}

		l *= 2
		if l > ropts.MaxL {
			break
		}
	}

	var ids []uint32
	var dists []float32

	for i, d := range last.Dists {
		if d <= ropts.Range {
			ids = append(ids, last.IDs[i])
			dists = append(dists, d)
		}
	}

	return Result{IDs: ids, Dists: dists, Stats: last.Stats}, nil
}
