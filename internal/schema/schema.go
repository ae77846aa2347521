// Package schema models a collection's schema: an ordered list of forward
// columns, an ordered list of index columns, and a monotonically increasing
// revision stamped on every write.
package schema

import (
	"reflect"

	"github.com/alibaba/proxima-sub000/internal/value"
)

// ForwardColumn is an opaque value carrier identified by name; forward
// columns are returned with query results but never searched on.
type ForwardColumn struct {
	Name string
}

// IndexColumn is a vector-valued column participating in kNN.
type IndexColumn struct {
	Name      string
	DataType  value.DataType
	Dimension int
	// Params carries free-form kernel parameters (metric type, quantization,
	// build parameters) as an unordered map of key/value pairs.
	Params map[string]string
}

// equalIndexColumns reports whether two index-column lists match
// bit-for-bit in name, type, dimension and params — the invariant
// Collection.UpdateSchema enforces.
func equalIndexColumns(a, b []IndexColumn) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name ||
			a[i].DataType != b[i].DataType ||
			a[i].Dimension != b[i].Dimension ||
			!reflect.DeepEqual(a[i].Params, b[i].Params) {
			return false
		}
	}
	return true
}

// Revision is an opaque, strictly increasing schema version stamped on
// every write so that readers can later resolve which forward-column names
// apply to a given row.
type Revision uint64

// Schema is one version of a collection's column layout.
type Schema struct {
	Revision       Revision
	ForwardColumns []ForwardColumn
	IndexColumns   []IndexColumn
}

// ForwardColumnNames returns the ordered forward-column name list, the
// value cached by query-side forward resolution keyed by revision.
func (s Schema) ForwardColumnNames() []string {
	names := make([]string, len(s.ForwardColumns))
	for i, c := range s.ForwardColumns {
		names[i] = c.Name
	}
	return names
}

// IndexColumn looks up an index column by name.
func (s Schema) IndexColumn(name string) (IndexColumn, bool) {
	for _, c := range s.IndexColumns {
		if c.Name == name {
			return c, true
		}
	}
	return IndexColumn{}, false
}

// CompatibleUpdate reports whether next is a valid schema update from s:
// only forward columns may change; index columns and their types must
// match bit-for-bit, and the revision must strictly increase.
func (s Schema) CompatibleUpdate(next Schema) bool {
	return next.Revision > s.Revision && equalIndexColumns(s.IndexColumns, next.IndexColumns)
}
