// Package memory provides map-backed identity and role stores for tests,
// demos and the load-test tool. Data lives for the life of the process.
package memory
