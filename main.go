// Command guardian scans a repository into a snapshot for coding agents and
// keeps it fresh as files change.
package main

func main() {
	Execute()
}
