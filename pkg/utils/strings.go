package utils

import (
	"fmt"
	"strconv"
)

// Formats an uint value into a hex string, zero-padded to n characters
// when n is non-zero
func FormatUintHex(value uint64, chars int) string {
	if chars == 0 {
		return "0x" + strconv.FormatUint(value, 16)
	}
	leadingZerosFormat := "0x%0" + fmt.Sprint(chars) + "s"
	return fmt.Sprintf(leadingZerosFormat, strconv.FormatUint(value, 16))
}
