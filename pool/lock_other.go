//go:build !unix

package pool

import "os"

// Platforms without flock(2) fall back to no advisory locking; single-writer
// deployments remain safe because writes are whole-file rewrites.

func lockShared(*os.File) error { return nil }

func lockExclusive(*os.File) error { return nil }

func unlock(*os.File) {}
