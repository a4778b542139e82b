package main

import "github.com/rpggio/officedesk/cmd/deskctl/arg"

func main() {
	arg.Execute()
}
