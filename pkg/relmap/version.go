package relmap

// Version is the relmap release version.
const Version = "0.1.0"

// ModulePath is the Go module path of relmap.
const ModulePath = "github.com/mesh-intelligence/relmap"
