package trajstore

// Version is the trajstore release version.
const Version = "0.1.0"
