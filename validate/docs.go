// Package validate holds the pure, synchronous field checks that flow guards run before a step is
// allowed to advance. Checks never mutate the fields they inspect; the caller decides whether a
// rejection blocks the transition.
package validate
