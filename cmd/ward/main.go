// Command ward runs the multi-tenant Minecraft reverse proxy, or manages
// its ban list, depending on the subcommand invoked.
package main

import "go.wardproxy.dev/ward/cmd/ward/commands"

func main() {
	commands.Execute()
}
