// Package testsupport provides helpers for constructing test configurations,
// journal stores, and fixture files.
package testsupport
