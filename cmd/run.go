package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/specfuzz/specfuzz/pkg/fuzzer"
)

var (
	specPath   string
	targetURL  string
	configPath string
)

func init() {

	flag.StringVar(&specPath, "s", "", "location of openapi `spec`")
	flag.StringVar(&targetURL, "u", "", "`url` of the api to fuzz")
	flag.StringVar(&configPath, "c", "", "optional `config` file")

}

func main() {
	flag.Parse()
	if specPath == "" || targetURL == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg := fuzzer.DefaultConfig()
	if configPath != "" {
		var err error
		cfg, err = fuzzer.LoadConfig(configPath)
		if err != nil {
			log.Fatalln(err)
		}
	}

	x, err := fuzzer.New(specPath, targetURL, cfg)
	if err != nil {
		log.Fatalln(err)
	}
	defer x.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := x.Fuzz(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalln(err)
	}
}
