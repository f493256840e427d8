package types

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"
)

// ToCell converts a value scanned from the warehouse into its CSV cell text.
// NULL becomes the empty string. Types the driver does not produce for
// supported column types are an error rather than a silent NULL.
func ToCell(v interface{}) (string, error) {
	switch i := v.(type) {
	case nil:
		return "", nil
	case []byte:
		return string(i), nil
	case sql.RawBytes:
		return string(i), nil
	case string:
		return i, nil
	case int64:
		return strconv.FormatInt(i, 10), nil
	case int:
		return strconv.Itoa(i), nil
	case int32:
		return strconv.FormatInt(int64(i), 10), nil
	case int16:
		return strconv.FormatInt(int64(i), 10), nil
	case int8:
		return strconv.FormatInt(int64(i), 10), nil
	case uint64:
		return strconv.FormatUint(i, 10), nil
	case uint:
		return strconv.FormatUint(uint64(i), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(i), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(i), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(i), 10), nil
	case float64:
		return strconv.FormatFloat(i, 'g', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(i), 'g', -1, 32), nil
	case bool:
		if i {
			return "1", nil
		}
		return "0", nil
	case time.Time:
		return i.UTC().Format(time.RFC3339), nil
	default:
		return "", fmt.Errorf("unsupported column value type %T", v)
	}
}
