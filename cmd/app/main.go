package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/curanet/fhird/internal/service"
)

func main() {
	root := &cobra.Command{
		Use:   "fhird",
		Short: "Clinical FHIR REST server with batch/transaction bundle processing",
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := service.NewFHIRService()
			if err != nil {
				return err
			}
			return svc.Start(context.Background())
		},
	}
	root.AddCommand(serve)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
