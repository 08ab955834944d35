package client

import (
	"encoding/json"
	"fmt"

	"declarations/declaration"
	"declarations/models"
	"declarations/tools"

	"github.com/google/uuid"
)

// Dispatcher resolves the tool calls the client owns against the session's
// declaration and confirmation state.
type Dispatcher struct {
	registry *tools.Registry
	newID    func() string
}

func NewDispatcher(registry *tools.Registry, newID func() string) *Dispatcher {
	if newID == nil {
		newID = uuid.NewString
	}
	return &Dispatcher{registry: registry, newID: newID}
}

// Outcome is the effect of one dispatched call.
type Outcome struct {
	State  declaration.State
	Result string
	// ConfirmationRequested is set when the call opened a new confirmation.
	ConfirmationRequested bool
}

// Dispatch decodes and applies one call. ok is false for tools the server
// executes; their result arrives on the stream. Unknown tools and malformed
// arguments resolve to an error result and leave the state untouched.
func (d *Dispatcher) Dispatch(state declaration.State, confirmation *Confirmation, name string, args json.RawMessage) (out Outcome, ok bool) {
	def, err := d.registry.Lookup(name)
	if err != nil {
		return Outcome{State: state, Result: errorResult(err)}, true
	}
	if def.ServerSide() {
		return Outcome{}, false
	}

	call, err := def.Decode(args)
	if err != nil {
		return Outcome{State: state, Result: errorResult(err)}, true
	}
	return d.apply(state, confirmation, call), true
}

func (d *Dispatcher) apply(state declaration.State, confirmation *Confirmation, call tools.Call) Outcome {
	switch c := call.(type) {
	case tools.AddCostRowArgs:
		id := d.newID()
		row := models.ExpenseRow{ID: id, Title: c.ExpenseTitle, Amount: c.Amount, GifURL: c.GifURL}
		return Outcome{
			State:  declaration.Reduce(state, declaration.AddRow{Row: row}),
			Result: fmt.Sprintf("Added expense with %s", id),
		}

	case tools.UpdateExpenseRowArgs:
		row := models.ExpenseRow{ID: c.ExpenseID, Title: c.ExpenseTitle, Amount: c.Amount, GifURL: c.GifURL}
		return Outcome{
			State:  declaration.Reduce(state, declaration.UpdateRow{Row: row}),
			Result: fmt.Sprintf("Updated expense with %s", c.ExpenseID),
		}

	case tools.RemoveCostRowArgs:
		return Outcome{
			State:  declaration.Reduce(state, declaration.RemoveRow{ID: c.ExpenseID}),
			Result: fmt.Sprintf("Removed expense with %s", c.ExpenseID),
		}

	case tools.SetTitleArgs:
		return Outcome{
			State:  declaration.Reduce(state, declaration.SetTitle{Title: c.Title}),
			Result: fmt.Sprintf("Set title to %s", c.Title),
		}

	case tools.SetDescriptionArgs:
		return Outcome{
			State:  declaration.Reduce(state, declaration.SetDescription{Description: c.Description}),
			Result: fmt.Sprintf("Set description to %s", c.Description),
		}

	case tools.AskForConfirmationArgs:
		if err := confirmation.Request(d.newID()); err != nil {
			return Outcome{State: state, Result: errorResult(err)}
		}
		return Outcome{
			State:                 state,
			Result:                "Asking for confirmation, no result yet",
			ConfirmationRequested: true,
		}

	default:
		return Outcome{State: state, Result: errorResult(fmt.Errorf("%w: %q has no client handler", tools.ErrUnknownTool, call.Tool()))}
	}
}

func errorResult(err error) string {
	return fmt.Sprintf("Error: %v", err)
}
