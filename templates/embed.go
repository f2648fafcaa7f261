// Package templates embeds the builtin parameter and task-schema
// definition files.
package templates

import "embed"

//go:embed parameters.yaml task_schemas.yaml
var FS embed.FS
