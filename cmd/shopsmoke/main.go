// Command shopsmoke runs browser smoke tests against the storefront.
package main

import "github.com/devicelab-dev/shopsmoke/pkg/cli"

func main() {
	cli.Execute()
}
