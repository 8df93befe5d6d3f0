package main

import (
	"fmt"
	"strings"
)

// checkCString reports an error when s would be cut short by C.CString.
func checkCString(s string) error {
	if i := strings.IndexByte(s, 0); i >= 0 {
		return fmt.Errorf("text contains a NUL byte at offset %d of %d", i, len(s))
	}
	return nil
}
