package ftlmngt

import "github.com/ehrlich-b/ftlmngt/internal/constants"

// Re-exported tunables for callers constructing Options.
const (
	DefaultBandBlocks          = constants.DefaultBandBlocks
	DefaultBlockSize           = constants.DefaultBlockSize
	DefaultNumBands            = constants.DefaultNumBands
	DefaultIOChannelQueueDepth = constants.DefaultIOChannelQueueDepth
	SelfTestChunkLBAs          = constants.SelfTestChunkLBAs
)
