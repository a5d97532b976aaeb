package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"ptychofft/internal/models"
	"ptychofft/pkg/config"
	"ptychofft/pkg/device"
	"ptychofft/pkg/ptycho"
	"ptychofft/pkg/simulation"
	"ptychofft/pkg/visualization"
)

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "ptychofft.yaml", "YAML configuration file (defaults are used when missing)")
	numWorkers := flag.Int("workers", 0, "Number of worker goroutines per launch (overrides config when > 0)")
	saveFrames := flag.Bool("save-frames", false, "Save detector frames and gradients as PNG images")
	framesDir := flag.String("frames-dir", "", "Directory to save frames (overrides config)")
	writeDefault := flag.Bool("write-default-config", false, "Write the default configuration to -config and exit")
	flag.Parse()

	if *writeDefault {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to write default config: %v", err)
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *numWorkers > 0 {
		cfg.Execution.NumWorkers = *numWorkers
	}
	if *saveFrames {
		cfg.Output.SaveFrames = true
	}
	if *framesDir != "" {
		cfg.Output.FramesDir = *framesDir
	}

	d := cfg.Operator
	fmt.Println("================================")
	fmt.Println("PTYCHOGRAPHY FORWARD/ADJOINT OPERATOR")
	fmt.Println("================================")
	fmt.Printf("Angles: %d, object: %dx%d, scans per angle: %d\n", d.Ntheta, d.Nz, d.N, d.Nscan)
	fmt.Printf("Probe: %dx%d, detector: %dx%d\n", d.Nprb, d.Nprb, d.Ndetx, d.Ndety)

	problem, err := simulation.NewProblem(simulation.Params{
		Dims:           d,
		ProbeSigma:     cfg.Simulation.ProbeSigma,
		ScanStep:       cfg.Simulation.ScanStep,
		Subpixel:       cfg.Simulation.Subpixel,
		Seed:           cfg.Simulation.Seed,
		ObjectContrast: cfg.Simulation.ObjectContrast,
	})
	if err != nil {
		log.Fatalf("Failed to build synthetic problem: %v", err)
	}

	ctx := device.NewContext(cfg.DeviceConfig())
	startTime := time.Now()
	op, err := ptycho.New(d,
		ptycho.WithContext(ctx),
		ptycho.WithLogger(log.New(os.Stderr, "", log.LstdFlags)),
		ptycho.WithVerbose(cfg.Output.Verbose),
		ptycho.WithBoundsCheck(cfg.Execution.BoundsCheck),
	)
	if err != nil {
		log.Fatalf("Failed to create operator: %v", err)
	}
	defer op.Close()
	setupTime := time.Since(startTime)

	validator, err := simulation.NewValidator(op, problem, cfg.Simulation.Seed+1)
	if err != nil {
		log.Fatalf("Failed to create validator: %v", err)
	}
	if err := validator.Run(); err != nil {
		log.Fatalf("Validation failed: %v", err)
	}

	metrics := validator.GetMetrics()
	stats := ctx.Stats()
	fmt.Printf("\nOperator ready in %.3f seconds (%d bytes reserved)\n", setupTime.Seconds(), op.Stats().Bytes)
	fmt.Printf("\nValidation Metrics:\n")
	fmt.Printf("=======================================\n")
	fmt.Printf("Adjoint mismatch (object): %.3e\n", metrics.AdjointObject)
	fmt.Printf("Linearity error: %.3e\n", metrics.Linearity)
	fmt.Printf("Intensity RMSE (linearity): %.3e\n", metrics.IntensityRMSE)
	fmt.Printf("Detector intensity mean/stddev/max: %.4g / %.4g / %.4g\n",
		metrics.IntensityMean, metrics.IntensityStdDev, metrics.IntensityMax)
	fmt.Printf("Object gradient norm: %.4g\n", metrics.ObjectGradNorm)
	fmt.Printf("Probe gradient norm: %.4g\n", metrics.ProbeGradNorm)

	fmt.Println("\nParallel processing performance:")
	fmt.Printf("- Used %d workers per launch\n", ctx.Workers())
	fmt.Printf("- Forward: %v, object adjoint: %v\n", metrics.ForwardTime, metrics.AdjointTime)
	fmt.Printf("- Kernel launches: %d, peak memory: %d bytes\n", stats.Launches, stats.Peak)

	if cfg.Output.SaveFrames {
		fmt.Println("\nSaving frames...")
		if err := saveAll(cfg.Output.FramesDir, d, validator); err != nil {
			log.Printf("Warning: Failed to save frames: %v", err)
		} else {
			fmt.Printf("Frames saved to: %s\n", cfg.Output.FramesDir)
		}
	}
}

// saveAll writes detector intensities and both gradients under dir.
func saveAll(dir string, d models.Dims, v *simulation.Validator) error {
	stacks := []struct {
		name       string
		data       []complex64
		rows, cols int
		count      int
		modes      []visualization.Mode
	}{
		{"detector", v.Detector(), d.Ndetx, d.Ndety, d.ScanLen(), []visualization.Mode{visualization.LogIntensity}},
		{"object_grad", v.ObjectGradient(), d.Nz, d.N, d.Ntheta, []visualization.Mode{visualization.Magnitude, visualization.Phase}},
		{"probe_grad", v.ProbeGradient(), d.Nprb, d.Nprb, d.Ntheta, []visualization.Mode{visualization.Magnitude, visualization.Phase}},
	}

	for _, s := range stacks {
		viewer, err := visualization.NewViewer(s.data, s.rows, s.cols, s.count)
		if err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
		for _, mode := range s.modes {
			if err := viewer.SaveFrameSequence(mode, filepath.Join(dir, s.name), s.name); err != nil {
				return fmt.Errorf("%s: %w", s.name, err)
			}
		}
	}
	return nil
}
