package web

import (
	"embed"
)

// staticFiles holds the monitor page.
//
//go:embed static/*
var staticFiles embed.FS
