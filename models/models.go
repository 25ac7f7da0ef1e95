// Package models embeds the default model definitions served when no model
// directory is configured.
package models

import "embed"

// FS holds the default model definitions
//
//go:embed *.yaml *.json
var FS embed.FS
