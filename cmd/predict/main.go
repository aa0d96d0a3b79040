package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"insurecharge/config"
	"insurecharge/ml"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("predict", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "config.yaml", "path to the YAML config file")
	for _, name := range ml.RequiredFields {
		fs.String(name, "", name+" of the insured person")
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "failed to load config: %v\n", err)
		return 1
	}

	// Only flags given on the command line count as present.
	fields := make(map[string]string, len(ml.RequiredFields))
	fs.Visit(func(f *flag.Flag) {
		if f.Name != "config" {
			fields[f.Name] = f.Value.String()
		}
	})

	store := ml.NewAssetStore(cfg.AssetSource())
	service := ml.NewService(store, cfg.Validation)
	charge, err := service.Predict(context.Background(), fields)
	if err != nil {
		var missing *ml.MissingFieldError
		switch {
		case errors.As(err, &missing):
			fmt.Fprintln(stderr, err)
		case ml.IsClientError(err):
			fmt.Fprintf(stderr, "Invalid input data: %v\n", err)
		default:
			fmt.Fprintf(stderr, "An error occurred: %v\n", err)
		}
		return 1
	}

	fmt.Fprintf(stdout, "%.2f\n", charge)
	return 0
}
