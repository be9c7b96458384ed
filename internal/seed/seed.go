// Package seed loads YAML board fixtures and creates them through the
// services, so seeded data satisfies the same ordering rules as live data.
package seed

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/madhatter5501/taskboard"
	"github.com/madhatter5501/taskboard/kanban"

	"gopkg.in/yaml.v3"
)

// Fixture is the top level of a seed file.
type Fixture struct {
	Boards []BoardFixture `yaml:"boards"`
}

// BoardFixture describes one board and its columns.
type BoardFixture struct {
	Title       string          `yaml:"title"`
	Description string          `yaml:"description"`
	Columns     []ColumnFixture `yaml:"columns"`
}

// ColumnFixture describes a column and its cards in order.
type ColumnFixture struct {
	Title string        `yaml:"title"`
	Cards []CardFixture `yaml:"cards"`
}

// CardFixture describes a card. Labels are names, created on demand.
type CardFixture struct {
	Title                string   `yaml:"title"`
	Description          string   `yaml:"description"`
	TicketType           string   `yaml:"ticketType"`
	Priority             string   `yaml:"priority"`
	AssigneeID           string   `yaml:"assigneeId"`
	ReporterID           string   `yaml:"reporterId"`
	Labels               []string `yaml:"labels"`
	ActualTimeToComplete float64  `yaml:"actualTimeToComplete"`
}

// Summary counts what Apply created.
type Summary struct {
	Boards  int
	Columns int
	Cards   int
	Labels  int
}

// Parse decodes a fixture. Unknown keys are rejected.
func Parse(r io.Reader) (*Fixture, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f Fixture
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return &f, nil
		}
		return nil, fmt.Errorf("failed to parse fixture: %w", err)
	}
	return &f, nil
}

// LoadFile reads and parses a fixture file.
func LoadFile(path string) (*Fixture, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open fixture: %w", err)
	}
	defer file.Close()

	return Parse(file)
}

// Apply creates every board, column, label and card in f. It stops at the
// first error; records created before it remain.
func Apply(ctx context.Context, svc *taskboard.Service, f *Fixture) (*Summary, error) {
	sum := &Summary{}
	labelIDs := make(map[string]string)

	for _, bf := range f.Boards {
		board, err := svc.CreateBoard(ctx, taskboard.BoardInput{
			Title:       bf.Title,
			Description: bf.Description,
		})
		if err != nil {
			return sum, fmt.Errorf("board %q: %w", bf.Title, err)
		}
		sum.Boards++

		for _, cf := range bf.Columns {
			column, err := svc.CreateColumn(ctx, taskboard.ColumnInput{
				BoardID: board.ID,
				Title:   cf.Title,
			})
			if err != nil {
				return sum, fmt.Errorf("column %q: %w", cf.Title, err)
			}
			sum.Columns++

			for _, card := range cf.Cards {
				ids := make([]string, 0, len(card.Labels))
				for _, name := range card.Labels {
					key := board.ID + "\x00" + kanban.CanonicalLabelName(name)
					id, ok := labelIDs[key]
					if !ok {
						label, err := svc.FindOrCreateLabel(ctx, taskboard.LabelInput{
							Name:    name,
							BoardID: board.ID,
						})
						if err != nil {
							return sum, fmt.Errorf("label %q: %w", name, err)
						}
						id = label.ID
						labelIDs[key] = id
						sum.Labels++
					}
					ids = append(ids, id)
				}

				actual := card.ActualTimeToComplete
				_, err := svc.CreateCard(ctx, taskboard.CardInput{
					BoardID:              board.ID,
					ColumnID:             column.ID,
					Title:                card.Title,
					Description:          card.Description,
					AssigneeID:           card.AssigneeID,
					ReporterID:           card.ReporterID,
					Priority:             card.Priority,
					TicketType:           card.TicketType,
					Labels:               ids,
					ActualTimeToComplete: &actual,
				})
				if err != nil {
					return sum, fmt.Errorf("card %q: %w", card.Title, err)
				}
				sum.Cards++
			}
		}
	}

	return sum, nil
}
