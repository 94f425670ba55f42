package main

import (
	"os"

	"github.com/defenseunicorns/uds-preflight-scan/cmd"
)

func main() {
	cmd.Execute(os.Args[1:])
}
