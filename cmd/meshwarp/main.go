package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	meshwarp "github.com/gino07172002/testMeshWarp"
	"github.com/gino07172002/testMeshWarp/config"
	"github.com/gino07172002/testMeshWarp/server"
	"github.com/gino07172002/testMeshWarp/utils"
	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"golang.org/x/term"
	"gonum.org/v1/gonum/spatial/r2"
)

const helperBanner = `
┌┬┐┌─┐┌─┐┬ ┬┬ ┬┌─┐┬─┐┌─┐
│││├┤ └─┐├─┤│││├─┤├┬┘├─┘
┴ ┴└─┘└─┘┴ ┴└┴┘┴ ┴┴└─┴

Interactive triangle mesh image warping.
`

var (
	// Flags
	source      = flag.String("in", "", "Source image (path or URL)")
	destination = flag.String("out", "", "Destination PNG")
	svgOut      = flag.String("svg", "", "Write the mesh wireframe as SVG")
	configFile  = flag.String("config", "", "YAML configuration file")
	snapshotIn  = flag.String("layer", "", "Apply a saved mesh snapshot")
	snapshotOut = flag.String("save-layer", "", "Save the mesh snapshot")
	drags       = flag.String("drag", "", "Drags to apply, as x0,y0:x1,y1 separated by ';'")
	gridSize    = flag.Int("grid", 40, "Lattice spacing in pixels")
	maxAngle    = flag.Float64("angle", meshwarp.DefaultMaxAngle, "Maximum triangle angle in degrees, <= 0 disables the filter")
	hitRadius   = flag.Float64("radius", 20, "Node pick radius in pixels")
	workers     = flag.Int("workers", 1, "Parallel remap bands")
	direct      = flag.Bool("direct", false, "Render through per-triangle masks")
	prune       = flag.Bool("prune", false, "Drop triangles over transparent pixels")
	wireframe   = flag.Int("wireframe", meshwarp.WithoutWireframe, "Wireframe mode: 0 none, 1 overlay, 2 wireframe only, 3 flat shaded")
	lineWidth   = flag.Float64("width", 1, "Wireframe line width")
	serve       = flag.Bool("serve", false, "Start the HTTP edit server")
	addr        = flag.String("addr", "", "Server listen address")
	logLevel    = flag.String("log", "", "Log level")
)

func main() {
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, helperBanner)
		flag.PrintDefaults()
	}
	flag.Parse()

	if len(*source) == 0 || (len(*destination) == 0 && len(*svgOut) == 0 && !*serve) {
		log.Fatal("Usage: meshwarp -in input.png -out warped.png [-svg mesh.svg] [-drag x0,y0:x1,y1] | -serve")
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	logger, err := cfg.Logger()
	if err != nil {
		log.Fatalf("Unable to create logger: %v", err)
	}
	defer logger.Sync()

	isTerminal := term.IsTerminal(int(os.Stderr.Fd()))

	img, err := openImage(*source)
	if err != nil {
		log.Fatalf("Unable to open source: %v", err)
	}

	var spinner *utils.Spinner
	if isTerminal && !*serve {
		spinner = utils.NewSpinner(os.Stderr, 100*time.Millisecond)
		spinner.Start("Seeding the mesh...")
	}
	start := time.Now()
	session, err := meshwarp.NewSession(img, cfg.SessionOptions(logger))
	if spinner != nil {
		spinner.Stop()
	}
	if err != nil {
		log.Fatalf("Unable to create session: %v", err)
	}

	if *snapshotIn != "" {
		if err := applySnapshot(session, *snapshotIn); err != nil {
			log.Fatalf("Unable to apply layer: %v", err)
		}
	}
	if *drags != "" {
		moves, err := parseDrags(*drags)
		if err != nil {
			log.Fatalf("Invalid -drag value: %v", err)
		}
		for _, mv := range moves {
			if _, found := session.Press(mv[0]); !found {
				logger.Warn("no node near drag start", zap.Float64("x", mv[0].X), zap.Float64("y", mv[0].Y))
				continue
			}
			if _, err := session.Release(mv[1]); err != nil {
				log.Fatalf("Unable to apply drag: %v", err)
			}
		}
	}

	if *serve {
		runServer(session, cfg, logger)
		return
	}

	if *destination != "" {
		o := meshwarp.DefaultDrawOptions()
		o.Wireframe = *wireframe
		o.LineWidth = cfg.LineWidth
		if err := writePNG(*destination, meshwarp.Render(session.Output(), session.Mesh(), o)); err != nil {
			log.Fatalf("Unable to save image: %v", err)
		}
	}
	if *svgOut != "" {
		if err := writeSVG(*svgOut, session); err != nil {
			log.Fatalf("Unable to save SVG: %v", err)
		}
	}
	if *snapshotOut != "" {
		if err := saveSnapshot(*snapshotOut, session); err != nil {
			log.Fatalf("Unable to save layer: %v", err)
		}
	}

	mesh := session.Mesh()
	fmt.Printf("\nGenerated in: %s\n", utils.Decorate(utils.FormatTime(time.Since(start)), utils.SuccessColor, isTerminal))
	fmt.Printf("Total number of %s triangles over %s nodes\n",
		utils.Decorate(fmt.Sprint(mesh.NumTriangles()), utils.SuccessColor, isTerminal),
		utils.Decorate(fmt.Sprint(mesh.NumNodes()), utils.SuccessColor, isTerminal),
	)
	for _, out := range []string{*destination, *svgOut, *snapshotOut} {
		if out != "" {
			fmt.Printf("Saved as: %s %s\n", filepath.Base(out), utils.Decorate("✓", utils.SuccessColor, isTerminal))
		}
	}
}

// loadConfig reads the optional config file, then applies the flags the
// user set explicitly.
func loadConfig() (config.Config, error) {
	cfg := config.Default()
	if *configFile != "" {
		var err error
		if cfg, err = config.Load(*configFile); err != nil {
			return cfg, err
		}
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "grid":
			cfg.GridSize = *gridSize
		case "angle":
			cfg.MaxAngle = *maxAngle
		case "radius":
			cfg.HitRadius = *hitRadius
		case "workers":
			cfg.Workers = *workers
		case "direct":
			cfg.Direct = *direct
		case "prune":
			cfg.PruneTransparent = *prune
		case "width":
			cfg.LineWidth = *lineWidth
		case "addr":
			cfg.Addr = *addr
		case "log":
			cfg.LogLevel = *logLevel
		}
	})
	return cfg, cfg.Validate()
}

func openImage(src string) (image.Image, error) {
	var (
		f   *os.File
		err error
	)
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if f, err = utils.DownloadImage(ctx, src); err != nil {
			return nil, err
		}
		defer os.Remove(f.Name())
	} else if f, err = os.Open(src); err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", src, err)
	}
	return img, nil
}

// parseDrags parses "x0,y0:x1,y1;..." into start and end points.
func parseDrags(s string) ([][2]r2.Vec, error) {
	var moves [][2]r2.Vec
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		var mv [2]r2.Vec
		if _, err := fmt.Sscanf(part, "%g,%g:%g,%g", &mv[0].X, &mv[0].Y, &mv[1].X, &mv[1].Y); err != nil {
			return nil, fmt.Errorf("%q: %w", part, err)
		}
		moves = append(moves, mv)
	}
	if len(moves) == 0 {
		return nil, errors.New("no drag given")
	}
	return moves, nil
}

func applySnapshot(s *meshwarp.Session, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	snap, err := meshwarp.DecodeSnapshot(f)
	if err != nil {
		return err
	}
	_, err = s.ApplySnapshot(snap)
	return err
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writePNG(path string, img image.Image) error {
	return writeFile(path, func(w io.Writer) error { return png.Encode(w, img) })
}

func writeSVG(path string, s *meshwarp.Session) error {
	b := s.Source().Bounds()
	return writeFile(path, func(w io.Writer) error {
		meshwarp.WriteSVG(w, s.Mesh(), b.Dx(), b.Dy(), meshwarp.DefaultSVGOptions())
		return nil
	})
}

func saveSnapshot(path string, s *meshwarp.Session) error {
	return writeFile(path, s.Snapshot().Encode)
}

func runServer(s *meshwarp.Session, cfg config.Config, logger *zap.Logger) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	srv := server.New(s, logger)
	o := meshwarp.DefaultDrawOptions()
	o.LineWidth = cfg.LineWidth
	srv.SetDrawOptions(o)

	logger.Info("session ready",
		zap.String("session", s.ID),
		zap.Int("nodes", s.Mesh().NumNodes()),
		zap.Int("triangles", s.Mesh().NumTriangles()),
	)
	if err := srv.Run(ctx, cfg.Addr); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
