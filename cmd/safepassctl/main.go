package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dmitrijs2005/safepass/internal/ctl"
	"github.com/fatih/color"
)

func main() {

	if err := ctl.NewRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
		os.Exit(1)
	}

}
