// Package version carries build metadata stamped in with -ldflags.
package version

import "fmt"

var (
	Version = "0.1.0"
	Commit  = ""
	Date    = ""
)

// Product is the name used in the User-Agent and server info.
const Product = "dify-rag-mcp"

// UserAgent returns the header value sent to the upstream service.
func UserAgent() string {
	return Product + "/" + Version
}

// String renders the one-line version banner.
func String() string {
	return fmt.Sprintf("%s %s (commit=%s, date=%s)", Product, Version, Commit, Date)
}
