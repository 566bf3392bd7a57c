// Command mediasearch is the operator CLI for the media indexing
// pipeline (spec §6.1): library management, the scanner, and the
// three claiming worker roles (proxy, video-proxy, ai), all driving
// the same Queue/Lease Engine through internal/store.
package main

func main() {
	Execute()
}
