package tools

// Call is one decoded tool invocation. The set of implementations is closed:
// every tool in the registry has exactly one argument type below.
type Call interface {
	Tool() Name
	sealed()
}

type AddCostRowArgs struct {
	Amount       float64 `json:"amount" jsonschema:"required,description=The amount of money that was spent in euros."`
	ExpenseTitle string  `json:"expenseTitle" jsonschema:"required,description=The title of the cost in the rows."`
	GifURL       string  `json:"gifUrl,omitempty" jsonschema:"description=The url of a gif to add to the expense. Always search for a gif"`
}

type UpdateExpenseRowArgs struct {
	ExpenseID    string  `json:"expenseId" jsonschema:"required,description=The id of the cost row to update."`
	Amount       float64 `json:"amount" jsonschema:"required,description=The new amount of money that was spent in euros."`
	ExpenseTitle string  `json:"expenseTitle" jsonschema:"required,description=The new title of the cost in the rows."`
	GifURL       string  `json:"gifUrl,omitempty" jsonschema:"description=The new url of a gif to add to the expense. Always search for a gif"`
}

type RemoveCostRowArgs struct {
	ExpenseID string `json:"expenseId" jsonschema:"required,description=The id of the cost row to remove."`
}

type SetTitleArgs struct {
	Title string `json:"title" jsonschema:"required,description=The new title of the expense."`
}

type SetDescriptionArgs struct {
	Description string `json:"description" jsonschema:"required,description=The new description of the expense."`
}

type SearchGifArgs struct {
	Query string `json:"query" jsonschema:"required,description=The search query for the gif."`
}

type AskForConfirmationArgs struct{}

func (AddCostRowArgs) Tool() Name         { return AddCostRow }
func (UpdateExpenseRowArgs) Tool() Name   { return UpdateExpenseRow }
func (RemoveCostRowArgs) Tool() Name      { return RemoveCostRow }
func (SetTitleArgs) Tool() Name           { return SetTitleOfBusinessExpense }
func (SetDescriptionArgs) Tool() Name     { return SetBusinessExpenseDescription }
func (SearchGifArgs) Tool() Name          { return SearchGif }
func (AskForConfirmationArgs) Tool() Name { return AskForConfirmation }

func (AddCostRowArgs) sealed()         {}
func (UpdateExpenseRowArgs) sealed()   {}
func (RemoveCostRowArgs) sealed()      {}
func (SetTitleArgs) sealed()           {}
func (SetDescriptionArgs) sealed()     {}
func (SearchGifArgs) sealed()          {}
func (AskForConfirmationArgs) sealed() {}
