// Package extract turns fetched listing and detail pages into the links and
// fields the crawl commands need.
//
// Parsing walks the golang.org/x/net/html token tree instead of matching raw
// markup, so attribute order and whitespace do not matter. Extracted text is
// NFC-normalized and whitespace-collapsed before it is returned.
package extract
