package sqlutil

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// MaxAliasLength keeps generated aliases under the 64 character identifier
// limit of MySQL with room for quoting.
const MaxAliasLength = 60

const aliasHashWidth = 16

// Alias derives the alias of a joined table from its parent alias and the
// relationship segment that reached it. Segments are length-prefixed so that
// ("a_b", "c") and ("a", "b_c") never produce the same alias.
func Alias(parent, segment string) string {
	alias := parent + "_" + strconv.Itoa(len(segment)) + segment
	if len(alias) <= MaxAliasLength {
		return alias
	}
	return shortenAlias(alias)
}

// AliasPath folds Alias over every segment of a path, starting at root.
func AliasPath(root string, segments ...string) string {
	alias := root
	for _, segment := range segments {
		alias = Alias(alias, segment)
	}
	return alias
}

func shortenAlias(alias string) string {
	sum := fmt.Sprintf("%016x", xxhash.Sum64String(alias))
	prefix := strings.TrimRight(alias[:MaxAliasLength-aliasHashWidth-1], "_")
	return prefix + "_" + sum
}
