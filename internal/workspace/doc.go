// Package workspace manages the request-scoped working directories of the build pipeline.
//
// Every request gets its own uniquely named texbot-* directory under a base directory
// (os.TempDir() by default). The directory is removed on every exit path by Cleanup.
// SweepStale removes directories a killed process left behind.
package workspace
