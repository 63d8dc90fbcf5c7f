//go:build tools

// Development tool dependencies, pinned in go.sum.
// Install them with: make install-tools
package tools

import (
	_ "github.com/golangci/golangci-lint/cmd/golangci-lint"
)
