package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/samber/lo"
)

// Name identifies a tool on the wire. The values keep the spelling the
// model is prompted with.
type Name string

const (
	AddCostRow                    Name = "addCostRow"
	UpdateExpenseRow              Name = "updateExpenseRow"
	RemoveCostRow                 Name = "removeCostRow"
	SetTitleOfBusinessExpense     Name = "setTitleOfBusinessExpense"
	SetBusinessExpenseDescription Name = "setBussinessExpenseDescription"
	SearchGif                     Name = "searchGif"
	AskForConfirmation            Name = "askForConfirmationOfBussinessExpense"
)

var (
	ErrUnknownTool          = errors.New("unknown tool")
	ErrInvalidArguments     = errors.New("invalid tool arguments")
	ErrNoGifFound           = errors.New("no gif found")
	ErrGifSearchUnavailable = errors.New("gif search is not configured")
)

// Executor resolves a call on the server without a round trip to the client.
type Executor func(ctx context.Context, call Call) (string, error)

type Definition struct {
	Name        Name
	Description string
	Schema      *jsonschema.Schema
	// Execute is nil for tools the client resolves against its own state.
	Execute Executor

	parameters map[string]any
	decode     func(raw json.RawMessage) (Call, error)
}

func (d Definition) ServerSide() bool {
	return d.Execute != nil
}

// Parameters returns the JSON schema of the tool arguments as a plain object.
func (d Definition) Parameters() map[string]any {
	return d.parameters
}

func (d Definition) Decode(raw json.RawMessage) (Call, error) {
	return d.decode(raw)
}

// define panics when T cannot be rendered as a schema; argument types are
// fixed at compile time, so this only fires on a broken struct tag.
func define[T Call](name Name, description string) Definition {
	schema := generateSchema[T]()
	parameters, err := schemaMap(schema)
	if err != nil {
		panic(fmt.Sprintf("tools: invalid schema for %s: %v", name, err))
	}
	required := schema.Required
	return Definition{
		Name:        name,
		Description: description,
		Schema:      schema,
		parameters:  parameters,
		decode: func(raw json.RawMessage) (Call, error) {
			return decodeArgs[T](name, required, raw)
		},
	}
}

// Registry is the fixed set of tools offered to the model. It is built once
// and only read afterwards.
type Registry struct {
	definitions map[Name]Definition
	order       []Name
}

// NewRegistry builds the declaration tool set. A nil searcher keeps
// searchGif registered as a server-side tool whose execution fails; clients
// use this to recognise calls they must not resolve themselves.
func NewRegistry(gifs GifSearcher) *Registry {
	searchGif := define[SearchGifArgs](SearchGif, "Search for a gif url.")
	searchGif.Execute = searchGifExecutor(gifs)

	definitions := []Definition{
		define[AddCostRowArgs](AddCostRow, "Add a row with costs to the business expense."),
		define[UpdateExpenseRowArgs](UpdateExpenseRow, "Update a row with costs to the business expense."),
		define[RemoveCostRowArgs](RemoveCostRow, "Remove a row with costs from the business expense."),
		define[SetTitleArgs](SetTitleOfBusinessExpense, "Set the title of a business expense."),
		define[SetDescriptionArgs](SetBusinessExpenseDescription, "Set the description of a business expense."),
		searchGif,
		define[AskForConfirmationArgs](AskForConfirmation, "Submit a business expense. Asks the user to confirm the declaration before it is submitted."),
	}

	r := &Registry{definitions: make(map[Name]Definition, len(definitions))}
	for _, def := range definitions {
		r.definitions[def.Name] = def
		r.order = append(r.order, def.Name)
	}
	return r
}

// Definitions returns the tools in registration order.
func (r *Registry) Definitions() []Definition {
	return lo.Map(r.order, func(name Name, _ int) Definition {
		return r.definitions[name]
	})
}

func (r *Registry) Names() []Name {
	return append([]Name(nil), r.order...)
}

// Lookup fails closed for names the registry does not declare.
func (r *Registry) Lookup(name string) (Definition, error) {
	if def, ok := r.definitions[Name(name)]; ok {
		return def, nil
	}
	if suggestion := r.suggest(name); suggestion != "" {
		return Definition{}, fmt.Errorf("%w: %q (did you mean %q?)", ErrUnknownTool, name, suggestion)
	}
	return Definition{}, fmt.Errorf("%w: %q", ErrUnknownTool, name)
}

// Decode looks up the tool and validates its arguments.
func (r *Registry) Decode(name string, raw json.RawMessage) (Call, error) {
	def, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	return def.Decode(raw)
}

func (r *Registry) suggest(name string) string {
	if name == "" {
		return ""
	}
	targets := lo.Map(r.order, func(n Name, _ int) string { return string(n) })

	if ranks := fuzzy.RankFindFold(name, targets); len(ranks) > 0 {
		best := lo.MinBy(ranks, func(a, b fuzzy.Rank) bool { return a.Distance < b.Distance })
		return best.Target
	}

	best := lo.MinBy(targets, func(a, b string) bool {
		return fuzzy.LevenshteinDistance(name, a) < fuzzy.LevenshteinDistance(name, b)
	})
	if fuzzy.LevenshteinDistance(name, best) <= 3 {
		return best
	}
	return ""
}
