package marl

// Version exposes the version of the library.
const Version = "0.3.1"
