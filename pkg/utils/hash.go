package utils

import (
	"crypto/md5"
	"fmt"
	"strings"
)

func HashString(input string) string {
	hash := md5.Sum([]byte(input))
	return fmt.Sprintf("%x", hash)
}

// HashKey hashes parts joined with a separator that cannot appear in filter values.
func HashKey(parts ...string) string {
	return HashString(strings.Join(parts, "\x1f"))
}
