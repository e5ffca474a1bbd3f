package web

import (
	"embed"
)

// staticFiles holds the embedded station page.
//
//go:embed static/*
var staticFiles embed.FS
