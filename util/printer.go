// Package util provides small formatting helpers shared by the command line
// tools.
package util

import (
	"fmt"
	"strings"
)

// DumpByteSlice dumps a byte slice in xxd-like rows: a hex position, the
// bytes in hex, and the printable ASCII at the end of each row.
func DumpByteSlice(b []byte, bytesPerRow int) string {
	if bytesPerRow <= 0 {
		bytesPerRow = 16
	}
	var out strings.Builder
	for row := 0; row < len(b); row += bytesPerRow {
		fmt.Fprintf(&out, "%08x:", row)
		ascii := make([]byte, 0, bytesPerRow)
		for i := row; i < row+bytesPerRow; i++ {
			if i%2 == 0 {
				out.WriteByte(' ')
			}
			if i >= len(b) {
				out.WriteString("  ")
				continue
			}
			fmt.Fprintf(&out, "%02x", b[i])
			if b[i] >= 0x20 && b[i] < 0x7f {
				ascii = append(ascii, b[i])
			} else {
				ascii = append(ascii, '.')
			}
		}
		fmt.Fprintf(&out, "  %s\n", ascii)
	}
	return out.String()
}
