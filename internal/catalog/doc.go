// Package catalog is the content registry and the delivery addressing rules
// that map a code (and optional part number) to an origin message position.
package catalog
