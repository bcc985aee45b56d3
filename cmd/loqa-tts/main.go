package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/loqalabs/loqa-tts/internal/client"
	"github.com/loqalabs/loqa-tts/internal/config"
)

var version = "0.1.0-dev"

type textList []string

func (l *textList) String() string { return fmt.Sprint(*l) }

func (l *textList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func main() {
	var (
		configPath string
		serverURL  string
		outDir     string
		texts      textList
	)
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)
	validateCmd.StringVar(&configPath, "config", "loqa-tts.yaml", "Path to configuration file")

	sayCmd := flag.NewFlagSet("say", flag.ExitOnError)
	sayCmd.StringVar(&serverURL, "url", "http://localhost:39685", "Base URL of the tts service")
	sayCmd.StringVar(&outDir, "out", "", "Directory for the downloaded WAV (default: system temp dir)")
	sayCmd.Var(&texts, "text", "Text segment to speak (repeatable; remaining args are appended)")

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "expected 'say', 'validate' or 'version'")
		os.Exit(2)
	}

	switch os.Args[1] {
	case "say":
		sayCmd.Parse(os.Args[2:])
		texts = append(texts, sayCmd.Args()...)
		if err := runSay(serverURL, outDir, texts); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	case "validate":
		validateCmd.Parse(os.Args[2:])
		if _, err := config.Load(configPath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println("config valid")
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		os.Exit(2)
	}
}

func runSay(serverURL, outDir string, texts []string) error {
	c, err := client.New(client.Options{BaseURL: serverURL, OutputDir: outDir})
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out, err := c.Synthesize(ctx, texts)
	if err != nil {
		return err
	}
	fmt.Printf("%s (%.2fs)\n", out.Path, out.Duration.Seconds())
	return nil
}
