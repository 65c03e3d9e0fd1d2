package platform

import "os"

// Windows console apps do not reliably receive SIGTERM
var shutdownSignals = []os.Signal{os.Interrupt}
