// Package classify maps MIME types onto the file categories the pipeline
// routes on.
package classify
