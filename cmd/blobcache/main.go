package main

import "github.com/jobrun/blobcache/cmd/blobcache/cmd"

func main() {
	cmd.Execute()
}
