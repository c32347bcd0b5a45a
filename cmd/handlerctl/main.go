// Command handlerctl resolves workflow step handlers offline from YAML
// snapshots of an organisation, a record and a workflow.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
