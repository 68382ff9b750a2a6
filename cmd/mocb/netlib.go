//go:build netlib

package main

import (
	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/netlib/blas/netlib"
)

// cgo BLAS for large K×M feature products. Build with -tags netlib.
func init() {
	blas64.Use(netlib.Implementation{})
}
