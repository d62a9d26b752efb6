package web

import "embed"

// Templates embeds HTML templates.
//
//go:embed templates/email/*.html
var Templates embed.FS
