package sigcheck

import "strings"

// Markup markers that have no business appearing inside an image or
// video container. Their presence usually means script content hidden in
// metadata segments.
var markupMarkers = []string{
	"<script",
	"javascript:",
	"vbscript:",
	"eval(",
	"onerror=",
	"onload=",
	"onclick=",
	"onmouseover=",
	"onfocus=",
}

// Shell and interpreter markers scanned for in every upload regardless
// of declared type.
var shellMarkers = []string{
	"#!/bin/",
	"#!/usr/bin/",
	"/bin/sh",
	"/bin/bash",
	"cmd.exe",
	"powershell",
	"<?php",
	"base64 -d",
	"$(curl",
	"$(wget",
}

// ScanMarkup scans data for embedded-script markers and returns the
// names of any that matched. Empty or binary-garbage input simply
// matches nothing.
func ScanMarkup(data []byte) []string {
	return scan(data, markupMarkers)
}

// ScanShell scans data for shell and interpreter markers.
func ScanShell(data []byte) []string {
	return scan(data, shellMarkers)
}

func scan(data []byte, markers []string) []string {
	if len(data) == 0 {
		return nil
	}

	// Lowercase once so obfuscation via casing does not slip through.
	haystack := strings.ToLower(string(data))

	var found []string
	for _, marker := range markers {
		if strings.Contains(haystack, marker) {
			found = append(found, marker)
		}
	}
	return found
}
