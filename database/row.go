package database

import (
	"fmt"
	"sort"
	"strconv"
)

// Row is one fetched or to-be-inserted record keyed by column name
type Row map[string]interface{}

func (r Row) Has(column string) bool {
	_, ok := r[column]
	return ok
}

func (r Row) IsNull(column string) bool {
	v, ok := r[column]
	return ok && v == nil
}

func (r Row) String(column string) string {
	switch v := r[column].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func (r Row) Int64(column string) (int64, bool) {
	switch v := r[column].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case uint64:
		return int64(v), true
	case float64:
		return int64(v), true
	case string:
		i, err := strconv.ParseInt(v, 10, 64)
		return i, err == nil
	case []byte:
		i, err := strconv.ParseInt(string(v), 10, 64)
		return i, err == nil
	}

	return 0, false
}

// Keys returns column names in a stable order
func (r Row) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Values follows the order of Keys
func (r Row) Values() []interface{} {
	keys := r.Keys()
	values := make([]interface{}, len(keys))
	for i, k := range keys {
		values[i] = r[k]
	}
	return values
}

func normalize(r Row) Row {
	for k, v := range r {
		if b, ok := v.([]byte); ok {
			r[k] = string(b)
		}
	}
	return r
}
