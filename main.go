package main

import "github.com/edgeflare/ctastream/cmd/ctastream"

func main() {
	ctastream.Main()
}
