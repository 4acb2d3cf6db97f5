package cli

import (
	"fmt"

	"github.com/custodia-labs/derivex/internal/core/domain"
)

// queryHelp is appended to commands that take a query.
const queryHelp = `The query is given with --query/-q or as the last argument. A query
starting with "-" reads as a flag, so pass it with -q or after "--":
  -q "-category:*"    or    -- "-category:*"`

// queryText picks the query from the --query flag or the positional args.
// Exactly one source must provide it.
func queryText(flag string, args []string) (string, error) {
	switch {
	case flag != "" && len(args) > 0:
		return "", fmt.Errorf("%w: query given both as --query and as an argument", domain.ErrInvalidInput)
	case flag != "":
		return flag, nil
	case len(args) == 1:
		return args[0], nil
	case len(args) > 1:
		return "", fmt.Errorf("%w: expected one query argument, got %d", domain.ErrInvalidInput, len(args))
	default:
		return "", fmt.Errorf("%w: a query is required", domain.ErrInvalidInput)
	}
}

// parseQueryArg resolves and parses the query. An absent query matches
// everything when optional is set.
func parseQueryArg(flag string, args []string, optional bool) (domain.Query, error) {
	if optional && flag == "" && len(args) == 0 {
		return domain.MatchAll(), nil
	}
	text, err := queryText(flag, args)
	if err != nil {
		return domain.Query{}, err
	}
	return domain.ParseQuery(text)
}
