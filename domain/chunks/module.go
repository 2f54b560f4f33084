package chunks

import (
	"go.uber.org/fx"
)

// Module provides the Chunk/ChunkLink repository. It has no HTTP surface of its own —
// chunks are only ever created and linked through domain/chunking's pipeline.
var Module = fx.Module("chunks",
	fx.Provide(NewRepository),
)
