package main

import "github.com/hankjacobs/hypervisor/cmd/vmxctl/cmd"

func main() {
	cmd.Execute()
}
