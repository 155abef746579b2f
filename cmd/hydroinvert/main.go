package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"time"

	"hydroinvert/pkg/config"
	"hydroinvert/pkg/ncio"
	"hydroinvert/pkg/pipeline"
)

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "hydroinvert.yaml", "YAML configuration file")
	inputFile := flag.String("input", "", "netCDF scene with rhos_<band> variables (overrides the config)")
	outputDir := flag.String("output", "", "Directory for the maps and images (overrides the config)")
	numCores := flag.Int("cores", 0, "Number of CPU cores to use (default: config value)")
	writeConfig := flag.Bool("write-config", false, "Write the default configuration to -config and exit")
	simulate := flag.String("simulate", "", "Write a synthetic lake scene to this netCDF file and exit")
	rows := flag.Int("rows", 32, "Rows of the simulated scene")
	cols := flag.Int("cols", 32, "Columns of the simulated scene")
	flag.Parse()

	if *writeConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to write config: %v", err)
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *inputFile != "" {
		cfg.Input.File = *inputFile
	}
	if *outputDir != "" {
		cfg.Output.Dir = *outputDir
	}
	if *numCores > 0 {
		cfg.Processing.NumCores = *numCores
	}

	if *simulate != "" {
		if err := writeScene(cfg, *simulate, *rows, *cols); err != nil {
			log.Fatalf("Simulation failed: %v", err)
		}
		fmt.Printf("Synthetic %dx%d scene written to %s\n", *rows, *cols, *simulate)
		return
	}

	if cfg.Input.File == "" {
		flag.Usage()
		os.Exit(1)
	}

	fmt.Println("================================")
	fmt.Println("BIO-OPTICAL INVERSION OF WATER-LEAVING REFLECTANCE")
	fmt.Println("================================")

	p, err := pipeline.New(cfg)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("Inverting %s with %d cores...\n", cfg.Input.File, cfg.Processing.NumCores)
	startTime := time.Now()
	if err := p.Process(ctx); err != nil {
		log.Fatalf("Inversion failed: %v", err)
	}
	processingTime := time.Since(startTime)

	metrics := p.GetMetrics()
	fmt.Printf("\nInversion completed successfully in %.2f seconds!\n", processingTime.Seconds())
	fmt.Printf("Pixels: %d, kept by mask: %d\n", metrics.Pixels, metrics.Kept)
	fmt.Printf("Inverted: %d (unconverged %d), skipped: %d, failed: %d\n",
		metrics.Inverted, metrics.Unconverged, metrics.Skipped, metrics.Failed)
	fmt.Printf("Mean reduced chi-square: %.3g\n", metrics.MeanRedChi)

	names := make([]string, 0, len(metrics.Mean))
	for name := range metrics.Mean {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("- %s: mean %.4g, std %.4g\n", name, metrics.Mean[name], metrics.StdDev[name])
	}

	fmt.Println("\nFiles written:")
	for _, f := range p.Outputs() {
		fmt.Println(f)
	}
}

// writeScene simulates a round lake surrounded by land, with phytoplankton
// increasing towards the shore and CDOM increasing from west to east.
func writeScene(cfg *config.Config, path string, rows, cols int) error {
	model, err := pipeline.BuildModel(cfg)
	if err != nil {
		return err
	}
	cy, cx := float64(rows-1)/2, float64(cols-1)/2
	radius := 0.4 * float64(min(rows, cols))
	cube, err := pipeline.Simulate(model, cfg.Input.Bands, rows, cols, func(i, j int) map[string]float64 {
		dy, dx := float64(i)-cy, float64(j)-cx
		d2 := (dx*dx + dy*dy) / (radius * radius)
		if d2 > 1 {
			return nil
		}
		params := map[string]float64{"phyto": 0.5 + 4*d2, "cdom": 0.05 + 0.3*float64(j)/float64(cols)}
		for _, c := range cfg.Components {
			if _, ok := params[c.Name]; !ok && c.Type != config.TypeWater {
				params[c.Name] = 0
			}
		}
		return params
	})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return ncio.WriteCube(path, cfg.Input.Prefix, cube)
}
