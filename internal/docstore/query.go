package docstore

import (
	"fmt"
	"regexp"
	"strings"
)

var fieldNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

func validField(name string) error {
	if !fieldNameRe.MatchString(name) {
		return fmt.Errorf("invalid field name %q", name)
	}
	return nil
}

func validCollection(name string) error {
	if strings.TrimSpace(name) == "" || strings.ContainsAny(name, "/ \t\n") {
		return fmt.Errorf("invalid collection %q", name)
	}
	return nil
}

// compileQuery turns q into a SELECT over the documents table. Field paths are
// always bound as parameters.
func compileQuery(q Query) (string, []any, error) {
	if err := validCollection(q.Collection); err != nil {
		return "", nil, err
	}
	var sb strings.Builder
	sb.WriteString(`SELECT id, json, created_at_unixms, updated_at_unixms FROM documents WHERE collection = ?`)
	args := []any{q.Collection}

	for _, f := range q.Where {
		if err := validField(f.Field); err != nil {
			return "", nil, err
		}
		path := "$." + f.Field
		switch f.Op {
		case OpEq:
			if f.Value == nil {
				sb.WriteString(` AND json_extract(json, ?) IS NULL`)
				args = append(args, path)
				continue
			}
			v, err := sqlValue(f.Value)
			if err != nil {
				return "", nil, err
			}
			sb.WriteString(` AND json_extract(json, ?) = ?`)
			args = append(args, path, v)
		case OpArrayContains:
			v, err := sqlValue(f.Value)
			if err != nil {
				return "", nil, err
			}
			sb.WriteString(` AND EXISTS (SELECT 1 FROM json_each(documents.json, ?) AS je WHERE je.value = ?)`)
			args = append(args, path, v)
		default:
			return "", nil, fmt.Errorf("unsupported filter op %q", f.Op)
		}
	}

	dir := "ASC"
	if q.Desc {
		dir = "DESC"
	}
	if q.OrderBy != "" {
		if err := validField(q.OrderBy); err != nil {
			return "", nil, err
		}
		sb.WriteString(` ORDER BY json_extract(json, ?) ` + dir + `, created_seq ` + dir + `, id ` + dir)
		args = append(args, "$."+q.OrderBy)
	} else {
		// Snapshot order: creation order.
		sb.WriteString(` ORDER BY created_seq ASC, id ASC`)
	}
	if q.Limit > 0 {
		sb.WriteString(` LIMIT ?`)
		args = append(args, q.Limit)
	}
	return sb.String(), args, nil
}

// sqlValue maps a filter value onto what json_extract yields for the same JSON value.
func sqlValue(v any) (any, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case int:
		return int64(x), nil
	case int64:
		return x, nil
	case float64:
		if x == float64(int64(x)) {
			return int64(x), nil
		}
		return x, nil
	case fmt.Stringer:
		return x.String(), nil
	default:
		nv, err := normalizeValue(v)
		if err != nil {
			return nil, err
		}
		if s, ok := nv.(string); ok {
			return s, nil
		}
		return nil, fmt.Errorf("unsupported filter value %T", v)
	}
}
