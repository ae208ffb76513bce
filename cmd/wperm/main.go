package main

import (
	"context"
	"os"

	"github.com/vrcwmt/worldperm/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute(context.Background()))
}
