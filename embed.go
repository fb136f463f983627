package euonia

import "embed"

// StaticFS contains the browser client: markup, script and styles.
//
//go:embed static/*
var StaticFS embed.FS
