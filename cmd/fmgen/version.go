package main

import "github.com/Grouvya/flatpak-manifest-generator/internal/config"

var (
	versionString = config.Version
	commitString  = config.Commit
	dateString    = config.Date
)
