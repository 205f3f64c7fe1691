// Package stabilizer implements the transcript stabilization state machine:
// it reconciles per-window engine output with absolute stream time and
// decides which text is final and which is still provisional.
package stabilizer
