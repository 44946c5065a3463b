package querysql

import (
	"strings"

	"github.com/roach88/relmap/internal/dialect"
	"github.com/roach88/relmap/internal/queryir"
)

// OrderBy renders a sort spec as an ORDER BY list in declaration order.
//
// Array keys sort by the array's index column. When the dialect needs
// ORDER BY expressions in a DISTINCT select list, the expressions are also
// returned in extra for the caller to append to its select list.
func OrderBy(spec *queryir.SortSpec, scope Scope, d dialect.Dialect) (clause string, extra []string, err error) {
	keys := spec.Keys()
	if len(keys) == 0 {
		return "", nil, nil
	}
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		var col string
		if k.Array != nil {
			col, err = scope.ArrayColumn(k.Array)
		} else {
			col, err = scope.FieldColumn(k.Field)
		}
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, col+" "+k.Dir.String())
		if d.Flags().OrderByInSelect {
			extra = append(extra, col)
		}
	}
	return strings.Join(parts, ", "), extra, nil
}
