// Command mqttv5ctl publishes, subscribes and makes request/response calls
// against an MQTT v5 broker.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
