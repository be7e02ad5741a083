// Command assetmanifest builds and inspects asset manifests.
//
// Build a manifest for an asset tree:
//
//	assetmanifest -root ./Assets -out Assets/manifest.json
//
// Append .zst to the output path to compress it. Inspect an existing
// manifest:
//
//	assetmanifest -list Assets/manifest.json
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/orion-ecs/asset/manifest"
)

type config struct {
	root     string
	out      string
	list     string
	noHashes bool
}

func main() {
	cfg := parseFlags()

	switch {
	case cfg.list != "":
		if err := list(cfg.list); err != nil {
			log.Fatal(err)
		}
	case cfg.root != "":
		if err := build(cfg); err != nil {
			log.Fatal(err)
		}
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func parseFlags() config {
	var cfg config
	flag.StringVar(&cfg.root, "root", "", "asset tree to scan")
	flag.StringVar(&cfg.out, "out", "manifest.json", "output path (.zst compresses)")
	flag.StringVar(&cfg.list, "list", "", "manifest to list instead of building")
	flag.BoolVar(&cfg.noHashes, "no-hashes", false, "skip content digests")
	flag.Parse()
	return cfg
}

func build(cfg config) error {
	var opts []manifest.BuildOption
	if cfg.noHashes {
		opts = append(opts, manifest.WithoutHashes())
	}
	m, err := manifest.Build(cfg.root, opts...)
	if err != nil {
		return err
	}
	if err := m.Save(cfg.out); err != nil {
		return err
	}
	log.Printf("wrote %s: %d assets", cfg.out, m.Len())
	return nil
}

func list(path string) error {
	m, err := manifest.Load(path)
	if err != nil {
		return err
	}
	for _, p := range m.Paths() {
		a, _ := m.Info(p)
		fmt.Printf("%-12s %10d  %s\n", a.Type, a.Size, a.Path)
	}
	fmt.Printf("%d assets, generated %s\n", m.Len(), m.Generated.Format("2006-01-02 15:04:05 MST"))
	return nil
}
