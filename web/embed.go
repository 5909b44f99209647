package web

import "embed"

//go:embed all:templates
var Templates embed.FS

//go:embed content/*.md
var Content embed.FS
