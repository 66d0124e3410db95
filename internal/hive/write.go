package hive

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
)

// Write serializes the tree under the given synthetic root in depth-first
// order with sorted siblings. The root itself is not written.
func Write(w io.Writer, root *Key) error {
	bw := bufio.NewWriter(w)
	for _, name := range root.SubkeyNames() {
		if err := writeKey(bw, root.Subkeys[name]); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func writeKey(w *bufio.Writer, key *Key) error {
	mode := key.Isolation
	if key.Intermediate || mode == "" {
		mode = noIsolation
	}

	if _, err := fmt.Fprintf(w, "%s%s %s\n", keyLinePrefix, mode, key.Path); err != nil {
		return err
	}

	for _, value := range sortedValues(key.Values) {
		if err := writeValue(w, value); err != nil {
			return err
		}
	}

	for _, name := range key.SubkeyNames() {
		if err := writeKey(w, key.Subkeys[name]); err != nil {
			return err
		}
	}
	return nil
}

func writeValue(w *bufio.Writer, value *Value) error {
	name := defaultName
	if value.Name != nil {
		name = strconv.Quote(*value.Name)
	}

	line := valueLineIndent + value.Kind + " " + name + " " + strconv.Quote(value.Data)
	if value.NameExpand {
		line += " expand-name"
	}
	if value.DataExpand {
		line += " expand-data"
	}

	_, err := fmt.Fprintln(w, line)
	return err
}
