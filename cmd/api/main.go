package main

import (
	"fmt"
	"os"

	"github.com/metinatakli/hostel-booking/internal/app"
)

func main() {
	err := app.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
