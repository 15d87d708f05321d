package uringdev

import "github.com/ehrlich-b/ftlmngt/internal/collab"

var (
	_ collab.BlockDevice = (*BlockDevice)(nil)
	_ collab.IOChannel   = (*IOChannel)(nil)
	_ collab.NVCache     = (*NVCache)(nil)
)
