package version

// Version is the current version of csv2pg.
// Can be overridden at build time with -ldflags "-X ...version.Version=..."
var Version = "0.9.0"

// Name is the application name.
const Name = "csv2pg"

// Description is a short description of the application.
const Description = "CSV to PostgreSQL bulk-load preparation tool"
