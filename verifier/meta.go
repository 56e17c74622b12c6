package verifier

// These variables will be linked in at build time
// and are to do with the build/source
var (
	BuildDate string
	Commit    string
	Version   string
)

// RecordFormat is the version of the election record layout this
// verifier reads.
const RecordFormat = "1.0"
