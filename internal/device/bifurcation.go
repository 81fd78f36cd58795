package device

import "github.com/asteralabs/retimerfw/internal/retimerfwerr"

// LinkParams describes one link within a bifurcation mode: its start lane,
// width, and link index.
type LinkParams struct {
	StartLane int
	LinkWidth int
	LinkID    int
}

// BifurcationMode names one row of BifurcationTable.
type BifurcationMode int

// Bifurcation mode tags, in the same order as the source lookup table
// (original_source/aries-fw-update/aries_bifurcation_params.c) so BifurcationTable
// can be indexed directly by tag instead of re-deriving the layout at
// runtime (spec.md §9: "global mutable lookup table" -> "a constant array of
// plain-data records indexed by the bifurcation tag; no re-initialization
// path").
const (
	BifurcationX16 BifurcationMode = iota
	BifurcationX8
	BifurcationX4
	BifurcationX8X8
	BifurcationX4X4X8
	BifurcationX8X4X4
	BifurcationX4X4X4X4
	BifurcationX2X2X2X2X2X2X2X2
	BifurcationX2X2X4X8
	BifurcationX4X2X2X8
	BifurcationX8X4X2X2
	BifurcationX8X2X2X4
	BifurcationX8X2X2X2X2
	BifurcationX2X2X2X2X8
	BifurcationX4X4X4X2X2
	BifurcationX4X4X2X2X4
	BifurcationX4X2X2X4X4
	BifurcationX2X2X4X4X4
	BifurcationX4X4X2X2X2X2
	BifurcationX4X2X2X4X2X2
	BifurcationX4X2X2X2X2X4
	BifurcationX2X2X4X4X2X2
	BifurcationX2X2X4X2X2X4
	BifurcationX4X4X4X4X2X2
	BifurcationX4X2X2X2X2X2X2
	BifurcationX2X2X4X2X2X2X2
	BifurcationX2X2X2X2X4X2X2
	BifurcationX2X2X2X2X2X2X4
	BifurcationX4X4
	BifurcationX4X2X2
	BifurcationX2X2X4
	BifurcationX2X2X2X2
	BifurcationX2X2
	BifurcationX4X8X4
	BifurcationX2
	BifurcationX1
)

// BifurcationTable is the constant lookup table of link-set layouts for
// every supported bifurcation mode, transliterated from
// original_source/aries-fw-update/aries_bifurcation_params.c. It is never
// mutated after package init.
var BifurcationTable = [...][]LinkParams{
	BifurcationX16:                 {{0, 16, 0}},
	BifurcationX8:                  {{0, 8, 0}},
	BifurcationX4:                  {{0, 4, 0}},
	BifurcationX8X8:                {{0, 8, 0}, {8, 8, 1}},
	BifurcationX4X4X8:              {{0, 4, 0}, {4, 4, 1}, {8, 8, 2}},
	BifurcationX8X4X4:              {{0, 8, 0}, {8, 4, 1}, {12, 4, 2}},
	BifurcationX4X4X4X4:            {{0, 4, 0}, {4, 4, 1}, {8, 4, 2}, {12, 4, 3}},
	BifurcationX2X2X2X2X2X2X2X2:    {{0, 2, 0}, {2, 2, 1}, {4, 2, 2}, {6, 2, 3}, {8, 2, 4}, {10, 2, 5}, {12, 2, 6}, {14, 2, 7}},
	BifurcationX2X2X4X8:            {{0, 2, 0}, {2, 2, 1}, {4, 4, 2}, {8, 8, 3}},
	BifurcationX4X2X2X8:            {{0, 4, 0}, {4, 2, 1}, {6, 2, 2}, {8, 8, 3}},
	BifurcationX8X4X2X2:            {{0, 8, 0}, {8, 4, 1}, {12, 2, 2}, {14, 2, 3}},
	BifurcationX8X2X2X4:            {{0, 8, 0}, {8, 2, 1}, {10, 2, 2}, {12, 4, 3}},
	BifurcationX8X2X2X2X2:          {{0, 8, 0}, {8, 2, 1}, {10, 2, 2}, {12, 2, 3}, {14, 2, 4}},
	BifurcationX2X2X2X2X8:          {{0, 2, 0}, {2, 2, 1}, {4, 2, 2}, {6, 2, 3}, {8, 8, 4}},
	BifurcationX4X4X4X2X2:          {{0, 4, 0}, {4, 4, 1}, {8, 4, 2}, {12, 2, 3}, {14, 2, 4}},
	BifurcationX4X4X2X2X4:          {{0, 4, 0}, {4, 4, 1}, {8, 2, 2}, {10, 2, 3}, {12, 4, 4}},
	BifurcationX4X2X2X4X4:          {{0, 4, 0}, {4, 2, 1}, {6, 2, 2}, {8, 4, 3}, {12, 4, 4}},
	BifurcationX2X2X4X4X4:          {{0, 2, 0}, {2, 2, 1}, {4, 4, 2}, {8, 4, 3}, {12, 4, 4}},
	BifurcationX4X4X2X2X2X2:        {{0, 4, 0}, {4, 4, 1}, {8, 2, 2}, {10, 2, 3}, {12, 2, 4}, {14, 2, 5}},
	BifurcationX4X2X2X4X2X2:        {{0, 4, 0}, {4, 2, 1}, {6, 2, 2}, {8, 4, 3}, {12, 2, 4}, {14, 2, 5}},
	BifurcationX4X2X2X2X2X4:        {{0, 4, 0}, {4, 2, 1}, {6, 2, 2}, {8, 2, 3}, {10, 2, 4}, {12, 4, 5}},
	BifurcationX2X2X4X4X2X2:        {{0, 2, 0}, {2, 2, 1}, {4, 4, 2}, {8, 4, 3}, {12, 2, 4}, {14, 2, 5}},
	BifurcationX2X2X4X2X2X4:        {{0, 2, 0}, {2, 2, 1}, {4, 4, 2}, {8, 2, 3}, {10, 2, 4}, {12, 4, 5}},
	BifurcationX4X4X4X4X2X2:        {{0, 4, 0}, {4, 4, 1}, {8, 4, 2}, {12, 4, 3}, {16, 2, 4}, {18, 2, 5}},
	BifurcationX4X2X2X2X2X2X2:      {{0, 4, 0}, {4, 2, 1}, {6, 2, 2}, {8, 2, 3}, {10, 2, 4}, {12, 2, 5}, {14, 2, 6}},
	BifurcationX2X2X4X2X2X2X2:      {{0, 2, 0}, {2, 2, 1}, {4, 4, 2}, {8, 2, 3}, {10, 2, 4}, {12, 2, 5}, {14, 2, 6}},
	BifurcationX2X2X2X2X4X2X2:      {{0, 2, 0}, {2, 2, 1}, {4, 2, 2}, {6, 2, 3}, {8, 4, 4}, {12, 2, 5}, {14, 2, 6}},
	BifurcationX2X2X2X2X2X2X4:      {{0, 2, 0}, {2, 2, 1}, {4, 2, 2}, {6, 2, 3}, {8, 2, 4}, {10, 2, 5}, {12, 4, 6}},
	BifurcationX4X4:                {{0, 4, 0}, {4, 4, 1}},
	BifurcationX4X2X2:              {{0, 4, 0}, {4, 2, 1}, {6, 2, 2}},
	BifurcationX2X2X4:              {{0, 2, 0}, {2, 2, 1}, {4, 4, 2}},
	BifurcationX2X2X2X2:            {{0, 2, 0}, {2, 2, 1}, {4, 2, 2}, {6, 2, 3}},
	BifurcationX2X2:                {{0, 2, 0}, {2, 2, 1}},
	BifurcationX4X8X4:              {{0, 4, 0}, {4, 8, 1}, {12, 4, 2}},
	BifurcationX2:                  {{0, 2, 0}},
	BifurcationX1:                  {{0, 1, 0}},
}

// ValidateStartLane reports LinkConfigInvalidError when startLane does not
// match the start lane of any link in mode's layout (spec.md §7).
func ValidateStartLane(mode BifurcationMode, startLane int) error {
	links := BifurcationTable[mode]
	for _, l := range links {
		if l.StartLane == startLane {
			return nil
		}
	}
	return &retimerfwerr.LinkConfigInvalidError{StartLane: startLane}
}
