// Package adapters provides in-process DataSource and DataSink
// implementations: memory-backed adapters for tests and assembled inputs,
// and file-backed adapters reading JSON documents and appending JSON lines.
// Queue-backed adapters live in transports/rabbitmq.
package adapters
