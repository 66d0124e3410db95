package hive

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	keyLinePrefix   = "isolation "
	valueLineIndent = "  "
	noIsolation     = "-"
	defaultName     = "@"
)

// Parse reads one hive file and returns a synthetic root key whose
// subkeys form the hive's tree. Keys may appear in any order; missing
// ancestors are synthesized as intermediate keys.
func Parse(r io.Reader) (*Key, error) {
	root := NewKey("", "", false)
	var current *Key

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()

		if strings.TrimSpace(line) == "" {
			continue
		}

		if strings.HasPrefix(line, valueLineIndent) {
			if current == nil {
				return nil, fmt.Errorf("line %d: value before any key", lineNo)
			}
			value, err := parseValueLine(strings.TrimSpace(line))
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			current.Values = append(current.Values, value)
			continue
		}

		if !strings.HasPrefix(line, keyLinePrefix) {
			return nil, fmt.Errorf("line %d: malformed key line %q", lineNo, line)
		}

		rest := line[len(keyLinePrefix):]
		mode, path, ok := strings.Cut(rest, " ")
		if !ok || path == "" {
			return nil, fmt.Errorf("line %d: malformed key line %q", lineNo, line)
		}

		key := root.ensure(path)
		if mode == noIsolation {
			key.Intermediate = true
		} else {
			key.Isolation = mode
			key.Intermediate = false
		}
		current = key
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return root, nil
}

// ensure walks the path from the root, creating intermediate keys as
// needed, and returns the key at the full path.
func (k *Key) ensure(path string) *Key {
	current := k
	prefix := ""
	for _, segment := range strings.Split(path, `\`) {
		if prefix == "" {
			prefix = segment
		} else {
			prefix = prefix + `\` + segment
		}
		child, ok := current.Subkeys[segment]
		if !ok {
			child = NewKey(prefix, "", true)
			current.Subkeys[segment] = child
		}
		current = child
	}
	return current
}

func parseValueLine(line string) (*Value, error) {
	kind, rest, ok := strings.Cut(line, " ")
	if !ok {
		return nil, fmt.Errorf("malformed value line %q", line)
	}

	value := &Value{Kind: kind}

	// Value name: "@" for the default value, otherwise a quoted string.
	if strings.HasPrefix(rest, defaultName+" ") || rest == defaultName {
		rest = strings.TrimPrefix(strings.TrimPrefix(rest, defaultName), " ")
	} else {
		quoted, err := takeQuoted(&rest)
		if err != nil {
			return nil, fmt.Errorf("value name: %w", err)
		}
		value.Name = &quoted
	}

	data, err := takeQuoted(&rest)
	if err != nil {
		return nil, fmt.Errorf("value data: %w", err)
	}
	value.Data = data

	for _, flag := range strings.Fields(rest) {
		switch flag {
		case "expand-name":
			value.NameExpand = true
		case "expand-data":
			value.DataExpand = true
		default:
			return nil, fmt.Errorf("unknown value flag %q", flag)
		}
	}

	return value, nil
}

// takeQuoted consumes one leading quoted string from *rest and returns
// its unquoted form.
func takeQuoted(rest *string) (string, error) {
	s := strings.TrimLeft(*rest, " ")
	prefix, err := strconv.QuotedPrefix(s)
	if err != nil {
		return "", fmt.Errorf("expected quoted string at %q", s)
	}
	unquoted, err := strconv.Unquote(prefix)
	if err != nil {
		return "", err
	}
	*rest = s[len(prefix):]
	return unquoted, nil
}
