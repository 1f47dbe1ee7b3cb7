package main

import "github.com/yuncengfeihou/usage-tracker2/internal/paths"

// DataPaths aliases [paths.DataDir] so commands can build data-dir paths
// without qualifying the internal package.
type DataPaths = paths.DataDir
