// Ontolink learns network embeddings for ontologies.
//
// It turns an ontology export into a concept network, learns node vectors
// with biased random walks, evaluates link prediction and renders
// interactive similarity plots.
package main

import (
	"fmt"
	"os"

	"github.com/Benny93/ontolink-go/cmd"
)

func main() {
	cli := cmd.NewCLI()

	if err := cli.Execute(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
