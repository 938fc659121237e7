// Command journalbot runs the trading journal agent.
package main

import (
	"os"

	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
