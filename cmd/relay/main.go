// Relay is a transforming reverse proxy for MTE-encoded browser traffic.
//
// It sits in front of a single origin and, for every paired browser session:
//   - Decodes encoded request bodies, multipart forms and headers
//   - Forwards the plaintext request to the origin
//   - Encodes successful origin responses before they leave the relay
//   - Records an access record per request for the monthly usage report
//
// Usage:
//
//	# Start the relay
//	relay run --config /etc/relay/config.yaml
//
//	# Check a configuration and its certificates
//	relay validate --config /etc/relay/config.yaml
//
//	# Print the usage report for March
//	relay report --month 3
//
//	# Generate a session cookie secret
//	relay secret
package main

func main() {
	Execute()
}
