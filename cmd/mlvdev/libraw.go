//go:build libraw

package main

import "github.com/abworrall/mlvraw/pkg/debayer"

func init() {
	delegate = debayer.LibRawDelegate{}
}
