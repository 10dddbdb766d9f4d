package testutils

import (
	"fmt"
	"time"
)

func assign(dest, values []interface{}) error {
	if len(dest) != len(values) {
		return fmt.Errorf("scan: expected %d destinations, got %d", len(values), len(dest))
	}
	for i, v := range values {
		switch d := dest[i].(type) {
		case *string:
			s, ok := v.(string)
			if !ok {
				return fmt.Errorf("scan: column %d: cannot assign %T to *string", i, v)
			}
			*d = s
		case *uint64:
			u, ok := v.(uint64)
			if !ok {
				return fmt.Errorf("scan: column %d: cannot assign %T to *uint64", i, v)
			}
			*d = u
		case *int64:
			n, ok := v.(int64)
			if !ok {
				return fmt.Errorf("scan: column %d: cannot assign %T to *int64", i, v)
			}
			*d = n
		case *time.Time:
			ts, ok := v.(time.Time)
			if !ok {
				return fmt.Errorf("scan: column %d: cannot assign %T to *time.Time", i, v)
			}
			*d = ts
		default:
			return fmt.Errorf("scan: column %d: unsupported destination %T", i, dest[i])
		}
	}
	return nil
}
