package web

import "embed"

// FS holds the embedded dashboard assets served at /.
//
//go:embed *.html *.css *.js
var FS embed.FS
