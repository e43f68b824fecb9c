// Command reconciler drains account purge tasks left behind by failed registrations and deletions.
package main

import (
	"log"

	"linkup/cmd/internal/app"
)

func main() {
	if err := app.RunReconciler(); err != nil {
		log.Fatal(err)
	}
}
