// main is the entry point of the attendrisk CLI.
package main

import (
	"github.com/attendrisk/attendrisk/cmd"
	"github.com/attendrisk/attendrisk/internal/contract"
	"github.com/attendrisk/attendrisk/internal/iostore"
)

func main() {
	cmd.SetHistoryManager(iostore.Manager)
	defer iostore.CloseStores()
	if err := cmd.Execute(); err != nil {
		contract.LogFatal("Command failed", err)
	}
}
