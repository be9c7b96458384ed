package kanban

import "sort"

// IntegrityReport describes how far a sequence of positions is from 0..n-1.
type IntegrityReport struct {
	Scope      string `json:"scope"` // column or board
	ID         string `json:"id"`
	Count      int    `json:"count"`
	Gaps       []int  `json:"gaps"`       // Positions in 0..n-1 that nothing occupies
	Duplicates []int  `json:"duplicates"` // Positions held by more than one record
	OutOfRange []int  `json:"outOfRange"` // Positions < 0 or >= n
}

// OK reports whether the positions are exactly 0..n-1.
func (r IntegrityReport) OK() bool {
	return len(r.Gaps) == 0 && len(r.Duplicates) == 0 && len(r.OutOfRange) == 0
}

// CheckPositions inspects positions for gaps, duplicates and values outside
// 0..len(positions)-1.
func CheckPositions(positions []int) IntegrityReport {
	n := len(positions)
	report := IntegrityReport{
		Count:      n,
		Gaps:       []int{},
		Duplicates: []int{},
		OutOfRange: []int{},
	}

	seen := make(map[int]int, n)
	for _, p := range positions {
		seen[p]++
	}

	for p, count := range seen {
		if count > 1 {
			report.Duplicates = append(report.Duplicates, p)
		}
		if p < 0 || p >= n {
			report.OutOfRange = append(report.OutOfRange, p)
		}
	}
	for p := 0; p < n; p++ {
		if seen[p] == 0 {
			report.Gaps = append(report.Gaps, p)
		}
	}

	sort.Ints(report.Duplicates)
	sort.Ints(report.OutOfRange)
	return report
}

// CheckCards reports on the positions of cards that share a column.
func CheckCards(columnID string, cards []Card) IntegrityReport {
	positions := make([]int, len(cards))
	for i := range cards {
		positions[i] = cards[i].Position
	}
	r := CheckPositions(positions)
	r.Scope = "column"
	r.ID = columnID
	return r
}

// CheckColumns reports on the positions of columns that share a board.
func CheckColumns(boardID string, columns []Column) IntegrityReport {
	positions := make([]int, len(columns))
	for i := range columns {
		positions[i] = columns[i].Position
	}
	r := CheckPositions(positions)
	r.Scope = "board"
	r.ID = boardID
	return r
}
