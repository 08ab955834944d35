// Package declaration holds the business expense being composed in a chat
// session. State is a value; every change goes through Reduce.
package declaration

import (
	"declarations/models"

	"github.com/samber/lo"
)

type State struct {
	Title       string
	Description string
	Rows        []models.ExpenseRow
}

// Action is one change to a declaration.
type Action interface {
	action()
}

type AddRow struct {
	Row models.ExpenseRow
}

// UpdateRow replaces the row with the same ID. Unknown IDs leave the rows unchanged.
type UpdateRow struct {
	Row models.ExpenseRow
}

// RemoveRow deletes the row with ID if present.
type RemoveRow struct {
	ID string
}

type SetTitle struct {
	Title string
}

type SetDescription struct {
	Description string
}

func (AddRow) action()         {}
func (UpdateRow) action()      {}
func (RemoveRow) action()      {}
func (SetTitle) action()       {}
func (SetDescription) action() {}

// Reduce returns the state after applying a. The input state is never modified.
func Reduce(s State, a Action) State {
	next := State{
		Title:       s.Title,
		Description: s.Description,
		Rows:        append([]models.ExpenseRow(nil), s.Rows...),
	}

	switch a := a.(type) {
	case AddRow:
		next.Rows = append(next.Rows, a.Row)
	case UpdateRow:
		next.Rows = lo.Map(next.Rows, func(row models.ExpenseRow, _ int) models.ExpenseRow {
			if row.ID == a.Row.ID {
				return a.Row
			}
			return row
		})
	case RemoveRow:
		next.Rows = lo.Filter(next.Rows, func(row models.ExpenseRow, _ int) bool {
			return row.ID != a.ID
		})
	case SetTitle:
		next.Title = a.Title
	case SetDescription:
		next.Description = a.Description
	}

	return next
}

func (s State) Total() float64 {
	return lo.SumBy(s.Rows, func(row models.ExpenseRow) float64 { return row.Amount })
}
