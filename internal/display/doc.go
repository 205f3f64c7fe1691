// Package display renders the committed transcript and provisional tail
// into the short fixed-width preview sent to clients after every cycle.
package display
